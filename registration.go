package offlinecache

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// Registration decides which worker controls the scope.
// A new worker is installed while the active one keeps serving,
// and takes over all requests once it is activated.
type Registration struct {
	scope   url.URL
	fetcher Fetcher
	log     zerolog.Logger

	mutex  sync.RWMutex
	active *Worker
}

// NewRegistration creates a registration without an active worker.
// Until a worker is registered, requests go to the fetcher directly.
func NewRegistration(scope url.URL, fetcher Fetcher, logger *zerolog.Logger) *Registration {
	var log zerolog.Logger
	if logger == nil {
		log = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		log = *logger
	}
	return &Registration{
		scope:   scope,
		fetcher: fetcher,
		log:     log.With().Str("scope", scope.String()).Logger(),
	}
}

// Active returns the worker controlling the scope, or nil.
func (reg *Registration) Active() *Worker {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()
	return reg.active
}

// Register installs the worker and activates it, replacing the active worker.
// An installed worker never waits for the clients of the active one.
// If install fails, the active worker stays in control and the error is returned.
func (reg *Registration) Register(ctx context.Context, w *Worker) error {
	if err := w.Install(ctx); err != nil {
		return err
	}

	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	previous := reg.active
	if err := w.Activate(ctx); err != nil {
		return err
	}
	// claim: all further requests are handled by the new worker
	reg.active = w
	if previous != nil {
		previous.setState(StateRedundant)
	}
	reg.log.Info().Str("version", w.Version()).Msg("Worker activated")
	return nil
}

// ServeHTTP implements the http.Handler interface.
// It answers the request through the active worker and writes the response,
// or 502 if the request failed without fallback.
func (reg *Registration) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer reg.recover(w, r)

	req := reg.clientRequest(r)
	var res *http.Response
	var cs CacheStatus
	var err error
	if worker := reg.Active(); worker != nil {
		res, cs, err = worker.handle(r.Context(), req)
	} else {
		cs.Forward(CacheStatusFwdBypass)
		res, err = reg.fetcher.Fetch(r.Context(), req)
	}
	log := reg.requestLogger(r)
	if err != nil {
		log.Warn().Err(err).Str("url", req.URL.String()).Msg("Could not get response")
		http.Error(w, "Could not get response", http.StatusBadGateway)
		return
	}

	if err := send(w, res, cs); err != nil {
		log.Error().Err(err).Msg("Could not write response body to client")
	}
	logRequest(log, r, cs, res.StatusCode)
}

// requestLogger returns the logger from the request context,
// falling back to the registration logger.
func (reg *Registration) requestLogger(r *http.Request) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &reg.log
	}
	return logger
}

// recover recovers from panics and answers with a gateway error.
func (reg *Registration) recover(w http.ResponseWriter, r *http.Request) {
	if err := recover(); err != nil {
		reg.log.WithLevel(zerolog.PanicLevel).Interface("error", err).Str("path", r.URL.Path).Msg("Panic in cache handler")
		http.Error(w, "Could not get response", http.StatusBadGateway)
	}
}

// clientRequest turns an incoming server request into a request for the scope,
// i.e. what a page in the scope would have requested.
func (reg *Registration) clientRequest(r *http.Request) *http.Request {
	req := r.Clone(r.Context())
	req.RequestURI = ""
	req.URL.Scheme = reg.scope.Scheme
	req.URL.Host = reg.scope.Host
	req.Host = reg.scope.Host
	for k := range req.Header {
		if strings.HasPrefix(k, "X-Forwarded-") {
			req.Header.Del(k)
		}
	}
	return req
}

func send(w http.ResponseWriter, res *http.Response, cs CacheStatus) error {
	defer res.Body.Close()
	removeHopHeaders(res.Header)
	copyHeader(w.Header(), res.Header)
	w.Header().Set("Cache-Status", cs.String())
	w.WriteHeader(res.StatusCode)
	_, err := io.Copy(w, res.Body)
	return err
}

func logRequest(log *zerolog.Logger, r *http.Request, cs CacheStatus, statusCode int) {
	isHit := 0
	if cs.Status() == CacheStatusHit {
		isHit = 1
	}
	log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("sourceIp", getRequestSourceIp(r)).
		Int("code", statusCode).
		Str("status", string(cs.Status())).
		Str("fwd", string(cs.FwdReason())).
		Bool("stored", cs.Stored).
		Int("hit", isHit).
		Msg("Sending response to client")
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	// if not found, return
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}

// Hop-by-hop headers, which apply to a single connection only.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// removeHopHeaders deletes hop-by-hop headers, including those named in Connection.
func removeHopHeaders(h http.Header) {
	for _, value := range h.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
