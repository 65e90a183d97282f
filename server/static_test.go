package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	filename := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filename, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "index.html", "<h1>Calculadora</h1>")
	writeFile(t, root, "styles-ios.css", "body {}")
	writeFile(t, root, "assets/icons/index.html", "icons")
	writeFile(t, root, "data.bin", "bin")
	return root
}

func get(t *testing.T, h http.Handler, path string) *http.Response {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
	return rr.Result()
}

func TestStaticFiles(t *testing.T) {
	h := NewStatic(newTestRoot(t))
	tests := []struct {
		path        string
		status      int
		contentType string
		body        string
	}{
		{"/", 200, "text/html", "<h1>Calculadora</h1>"},
		{"/index.html", 200, "text/html", "<h1>Calculadora</h1>"},
		{"/styles-ios.css", 200, "text/css", "body {}"},
		{"/assets/icons", 200, "text/html", "icons"},
		{"/data.bin", 200, "application/octet-stream", "bin"},
		{"/missing.js", 404, "text/plain", "404 Not Found"},
		{"/../../etc/passwd", 404, "text/plain", "404 Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := get(t, h, tt.path)
			if res.StatusCode != tt.status {
				t.Fatalf("Status is %d", res.StatusCode)
			}
			if ct := res.Header.Get("Content-Type"); ct != tt.contentType {
				t.Fatalf("Content-Type is %s", ct)
			}
			if body, _ := io.ReadAll(res.Body); string(body) != tt.body {
				t.Fatalf("Body is %s", body)
			}
		})
	}
}

func TestFilenameStaysInRoot(t *testing.T) {
	s := NewStatic("/srv/www")
	if f := s.filename("/../../etc/passwd"); f != filepath.Join("/srv/www", "etc", "passwd") {
		t.Fatalf("Filename is %s", f)
	}
}

func TestRouterLogsRequests(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).Level(zerolog.DebugLevel)
	h := Router(logger, NewStatic(newTestRoot(t)))

	res := get(t, h, "/styles-ios.css")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Status is %d", res.StatusCode)
	}
	if res.Header.Get("Request-Id") == "" {
		t.Fatal("No request id header")
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"url":"/styles-ios.css"`)) {
		t.Fatalf("Log is %s", buf.String())
	}
}
