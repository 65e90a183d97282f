package offlinecache

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	cachekey "github.com/always-cache/offline-cache/pkg/cache-key"
	serializer "github.com/always-cache/offline-cache/pkg/response-serializer"
	"github.com/always-cache/offline-cache/storage"

	"github.com/rs/zerolog"
)

// DefaultDynamicLimit is the entry ceiling of the dynamic generation if none is configured.
const DefaultDynamicLimit = 50

// fallbackPath is served to document requests when both cache and network fail.
const fallbackPath = "/index.html"

type Config struct {
	// Storage for cache generations.
	Storage storage.CacheStorage
	// Network used for precaching and on cache misses.
	Fetcher Fetcher
	// URL the worker controls. Manifest paths are resolved against it,
	// and requests for other origins are passed through uncached.
	Scope url.URL
	// Name of the precache generation.
	StaticCache string
	// Name of the runtime generation.
	DynamicCache string
	// Root-relative paths to precache at install.
	Manifest []string
	// Maximum number of entries in the dynamic generation.
	DynamicLimit int
	// Version of the worker. Only used for logging.
	Version string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Worker is an offline cache manager: it precaches a manifest on install,
// removes old generations on activation, and answers requests cache-first.
type Worker struct {
	storage      storage.CacheStorage
	fetcher      Fetcher
	scope        url.URL
	staticCache  string
	dynamicCache string
	manifest     []string
	dynamicLimit int
	version      string
	log          zerolog.Logger

	mutex sync.Mutex
	state State
	pending *pendingWork
}

// CreateWorker initializes a worker in the parsed state.
// Nothing is fetched or stored until Install is called.
func CreateWorker(config Config) *Worker {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("scope", config.Scope.String()).
		Str("version", config.Version).
		Logger()

	limit := config.DynamicLimit
	if limit <= 0 {
		limit = DefaultDynamicLimit
	}

	return &Worker{
		storage:      config.Storage,
		fetcher:      config.Fetcher,
		scope:        config.Scope,
		staticCache:  config.StaticCache,
		dynamicCache: config.DynamicCache,
		manifest:     config.Manifest,
		dynamicLimit: limit,
		version:      config.Version,
		log:          logger,
		state:        StateParsed,
		pending:      newPendingWork(),
	}
}

func (w *Worker) Version() string {
	return w.version
}

// Fetch answers a request: from cache if possible, else from the network,
// else with the offline fallback for documents.
// Responses produced by the worker carry a Cache-Status header.
func (w *Worker) Fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	res, cs, err := w.handle(ctx, r)
	if err != nil {
		return nil, err
	}
	if cs.FwdReason() != CacheStatusFwdBypass {
		if res.Header == nil {
			res.Header = make(http.Header)
		}
		res.Header.Set("Cache-Status", cs.String())
	}
	return res, nil
}

func (w *Worker) handle(ctx context.Context, r *http.Request) (*http.Response, CacheStatus, error) {
	var cs CacheStatus

	if !w.controls(r.URL) {
		cs.Forward(CacheStatusFwdBypass)
		res, err := w.fetcher.Fetch(ctx, r)
		return res, cs, err
	}

	log := w.log.With().Str("url", r.URL.String()).Logger()

	// cache read errors are not recovered from
	if res, err := w.match(r); err != nil {
		return nil, cs, err
	} else if res != nil {
		log.Trace().Msg("Cache hit")
		cs.Hit()
		return res, cs, nil
	}
	cs.Forward(CacheStatusFwdUriMiss)

	log.Trace().Msg("Cache miss, fetching from network")
	res, err := w.fetcher.Fetch(ctx, r)
	if err != nil {
		log.Debug().Err(err).Msg("Network request failed")
		return w.fallback(r, cs, err)
	}

	if !w.shouldStore(r, res) {
		return res, cs, nil
	}
	bts, err := serializer.Snapshot(res)
	if err != nil {
		log.Debug().Err(err).Msg("Could not read response body")
		return w.fallback(r, cs, err)
	}
	cs.Stored = w.store(r, res, bts)
	return res, cs, nil
}

// controls reports whether requests for u are handled by the cache at all.
func (w *Worker) controls(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return sameOrigin(u, &w.scope)
}

// match looks the request up in all generations, in creation order.
// It returns nil if no entry matches.
func (w *Worker) match(r *http.Request) (*http.Response, error) {
	if r.Method != http.MethodGet {
		return nil, nil
	}
	entries, err := w.storage.All(cachekey.GetKeyPrefix(r))
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	for _, e := range entries {
		if cachekey.Matches(e.Key, r) {
			res, err := serializer.BytesToResponse(e.Bytes, r)
			if err != nil {
				return nil, fmt.Errorf("read cached response %s: %w", e.Key, err)
			}
			return res, nil
		}
	}
	return nil, nil
}

func (w *Worker) shouldStore(r *http.Request, res *http.Response) bool {
	return r.Method == http.MethodGet && isOk(res.StatusCode) && cachekey.Storable(res)
}

// store writes a snapshot to the dynamic generation and schedules eviction.
// bts must be a copy independent of res.Body, see serializer.Snapshot.
// Write errors are logged only; the response is returned regardless.
func (w *Worker) store(r *http.Request, res *http.Response, bts []byte) bool {
	key := cachekey.AddVaryKeys(cachekey.GetKeyPrefix(r), r, res)
	cache, err := w.storage.Open(w.dynamicCache)
	if err == nil {
		err = cache.Put(storage.Entry{Key: key, StoredAt: time.Now(), Bytes: bts})
	}
	if err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not write to dynamic cache")
		return false
	}
	w.log.Trace().Str("key", key).Msg("Dynamic cache write")

	w.pending.add()
	go func() {
		defer w.pending.done()
		if err := w.trimCache(w.dynamicCache, w.dynamicLimit); err != nil {
			w.log.Error().Err(err).Str("cache", w.dynamicCache).Msg("Could not trim cache")
		}
	}()
	return true
}

// fallback is called when the network failed for a request that missed the cache.
// Documents get the cached root document, everything else gets the error.
func (w *Worker) fallback(r *http.Request, cs CacheStatus, fetchErr error) (*http.Response, CacheStatus, error) {
	if !acceptsHTML(r) {
		return nil, cs, fmt.Errorf("%w: %v", ErrNetwork, fetchErr)
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, w.resolve(fallbackPath), nil)
	if err != nil {
		return nil, cs, err
	}
	res, err := w.match(req)
	if err != nil {
		return nil, cs, err
	}
	if res == nil {
		return nil, cs, fmt.Errorf("%w: %v", ErrNoFallback, fetchErr)
	}
	w.log.Debug().Str("url", r.URL.String()).Msg("Serving offline fallback")
	cs.Hit()
	cs.Detail(detailOfflineFallback)
	return res, cs, nil
}

// resolve resolves a root-relative path against the scope.
func (w *Worker) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return w.scope.ResolveReference(&url.URL{Path: path}).String()
	}
	return w.scope.ResolveReference(ref).String()
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(strings.Join(r.Header.Values("Accept"), ","), "text/html")
}

// isOk reports whether a status is considered successful, i.e. 2xx.
func isOk(statusCode int) bool {
	return statusCode >= 200 && statusCode <= 299
}
