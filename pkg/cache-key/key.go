package cachekey

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	methodSeparator = ":"
	varySeparator   = "\t"
	lineSeparator   = "\n"
)

// GetKeyPrefix returns the cache key for a request without the vary headers (i.e. a key prefix).
// The returned key is suitable for finding all stored response variants for a particular request.
// The key depends on the method and the absolute URL, without the fragment.
func GetKeyPrefix(r *http.Request) string {
	return r.Method + methodSeparator + RequestURL(r.URL) + varySeparator
}

// RequestURL returns the URL as used in cache keys, i.e. without the fragment.
func RequestURL(u *url.URL) string {
	noFragment := *u
	noFragment.Fragment = ""
	noFragment.RawFragment = ""
	return noFragment.String()
}

// AddVaryKeys returns the full cache key (including vary headers) based on a previously generated
// cache key prefix and the request and response involved.
// Every header named by Vary is recorded, also when the request does not carry it.
func AddVaryKeys(prefix string, req *http.Request, res *http.Response) string {
	key := prefix
	for _, name := range varyNames(res.Header) {
		key = key + lineSeparator + name + ": " + req.Header.Get(name)
	}
	return key
}

// Storable reports whether a response may be stored under a request key at all.
// A response that varies on everything can never be matched again.
func Storable(res *http.Response) bool {
	for _, name := range varyNames(res.Header) {
		if name == "*" {
			return false
		}
	}
	return true
}

// Matches reports whether a stored key is a match for the request,
// i.e. the prefixes are equal and all recorded vary headers have the same value.
func Matches(key string, r *http.Request) bool {
	if !strings.HasPrefix(key, GetKeyPrefix(r)) {
		return false
	}
	for name, values := range GetVaryHeaders(key) {
		if r.Header.Get(name) != values[0] {
			return false
		}
	}
	return true
}

// GetRequestFromKey generates a caching-wise equal request than the request that resulted in the
// provided key. This means it takes vary headers into account.
// It returns an error if the request cannot for some reason be deducted.
func GetRequestFromKey(key string) (*http.Request, error) {
	keyNoVary, _, found := strings.Cut(key, varySeparator)
	if !found {
		return nil, fmt.Errorf("Malformed key: %s", key)
	}
	method, uri, found := strings.Cut(keyNoVary, methodSeparator)
	if !found {
		return nil, fmt.Errorf("Malformed key: %s", key)
	}
	req, err := http.NewRequest(method, uri, nil)
	if err != nil {
		return req, err
	}
	req.Header = GetVaryHeaders(key)
	return req, nil
}

// GetVaryHeaders creates a http.Header instance containing all the vary keys included in a key.
func GetVaryHeaders(key string) http.Header {
	header := make(http.Header)
	lines := strings.Split(key, lineSeparator)
	for i := 1; i < len(lines); i++ {
		entry := strings.SplitN(lines[i], ": ", 2)
		if len(entry) == 2 {
			header.Add(entry[0], entry[1])
		}
	}
	return header
}

func varyNames(header http.Header) []string {
	names := make([]string, 0)
	for _, value := range header.Values("Vary") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
