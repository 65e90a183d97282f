package serializer

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
)

// Snapshot materializes the body of a response so that it can be both stored and returned.
// It returns the HTTP/1.1 representation of the response for storage.
// When it returns, res.Body is an independent in-memory copy of the same body,
// so the caller may consume it without affecting the stored bytes.
func Snapshot(res *http.Response) ([]byte, error) {
	var body []byte
	if res.Body != nil {
		bts, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return nil, err
		}
		body = bts
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))
	res.TransferEncoding = nil

	stored := *res
	stored.Proto, stored.ProtoMajor, stored.ProtoMinor = "HTTP/1.1", 1, 1
	stored.Body = io.NopCloser(bytes.NewReader(body))
	buf := &bytes.Buffer{}
	if err := stored.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BytesToResponse converts stored bytes back to a http.Response for the given request.
// Every call returns a response with its own body reader.
func BytesToResponse(b []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
}
