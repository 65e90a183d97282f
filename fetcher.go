package offlinecache

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"

	serializer "github.com/always-cache/offline-cache/pkg/response-serializer"
	tee "github.com/always-cache/offline-cache/pkg/response-writer-tee"
)

// Fetcher is the network as seen by the worker.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// HTTPFetcher fetches over the network with an http.Client.
// Redirects are followed, and there is no timeout other than the context.
type HTTPFetcher struct {
	client   http.Client
	director func(*http.Request)
}

// NewHTTPFetcher creates a fetcher that sends requests for the scope to the origin.
// Requests for other hosts are sent as they are.
// originHost is used for the Host header and TLS negotiation, if the origin
// URL is e.g. just an IP address.
func NewHTTPFetcher(scope, origin url.URL, originHost string) *HTTPFetcher {
	f := &HTTPFetcher{
		director: createDirector(scope, origin, originHost),
	}
	if originHost != "" {
		f.client.Transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				ServerName: originHost,
			},
		}
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	f.director(out)
	return f.client.Do(out)
}

func createDirector(scope, origin url.URL, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		if !sameOrigin(req.URL, &scope) {
			return
		}
		req.URL.Scheme = origin.Scheme
		req.URL.Host = origin.Host
		req.Host = origin.Host
		if hostHeader != "" {
			req.Host = hostHeader
		}
	}
}

// HandlerFetcher serves requests from an in-process handler instead of the network.
type HandlerFetcher struct {
	Handler http.Handler
}

func (f HandlerFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs := tee.NewResponseSaver(nil)
	f.Handler.ServeHTTP(rs, req.Clone(ctx))
	return serializer.BytesToResponse(rs.Response(), req)
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
