// Package server serves the static assets of the application, i.e. the origin
// the offline cache fetches from.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const DefaultPort = 3000

var mimeTypes = map[string]string{
	".html": "text/html",
	".js":   "text/javascript",
	".css":  "text/css",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpg",
	".ico":  "image/x-icon",
}

// Static serves files below a root directory.
type Static struct {
	root string
}

func NewStatic(root string) *Static {
	return &Static{root: root}
}

// ServeHTTP implements the http.Handler interface.
// "/" and directories are served as their index.html.
func (s *Static) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filename := s.filename(r.URL.Path)
	if info, err := os.Stat(filename); err == nil && info.IsDir() {
		filename = filepath.Join(filename, "index.html")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		if errors.Is(err, fs.ErrNotExist) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("404 Not Found"))
			return
		}
		hlog.FromRequest(r).Error().Err(err).Str("file", filename).Msg("Could not read file")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Server Error: %s", errorCode(err))
		return
	}

	w.Header().Set("Content-Type", contentType(filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// filename maps a URL path to a file below the root.
// The path is cleaned first, so it can never point outside of the root.
func (s *Static) filename(urlPath string) string {
	clean := path.Clean("/" + urlPath)
	if clean == "/" {
		clean = "/index.html"
	}
	return filepath.Join(s.root, filepath.FromSlash(clean))
}

func contentType(filename string) string {
	if ct, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// errorCode returns the error code of a file error, e.g. "EACCES".
// Errors without an errno are described by their message.
func errorCode(err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if name := errnoName(errno); name != "" {
			return name
		}
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	return err.Error()
}

// Router wraps a handler with request logging.
func Router(logger zerolog.Logger, handler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))
	r.Mount("/", handler)
	return r
}
