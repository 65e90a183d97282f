package offlinecache

import (
	"context"
	"net/http"
	"sync"
	"time"

	cachekey "github.com/always-cache/offline-cache/pkg/cache-key"
	serializer "github.com/always-cache/offline-cache/pkg/response-serializer"
	"github.com/always-cache/offline-cache/storage"
)

type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

func (w *Worker) State() State {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.state
}

func (w *Worker) setState(state State) {
	w.mutex.Lock()
	from := w.state
	w.state = state
	w.mutex.Unlock()
	w.log.Debug().Str("from", string(from)).Str("to", string(state)).Msg("Worker state changed")
}

// Settle blocks until background work (dynamic cache eviction) is done.
// Requests may keep adding work while Settle waits.
func (w *Worker) Settle() {
	w.pending.wait()
}

// pendingWork counts background work the worker must be kept alive for.
// Unlike sync.WaitGroup, work may be added while another goroutine waits.
type pendingWork struct {
	mutex sync.Mutex
	cond  *sync.Cond
	count int
}

func newPendingWork() *pendingWork {
	p := &pendingWork{}
	p.cond = sync.NewCond(&p.mutex)
	return p
}

func (p *pendingWork) add() {
	p.mutex.Lock()
	p.count++
	p.mutex.Unlock()
}

func (p *pendingWork) done() {
	p.mutex.Lock()
	p.count--
	if p.count == 0 {
		p.cond.Broadcast()
	}
	p.mutex.Unlock()
}

func (p *pendingWork) wait() {
	p.mutex.Lock()
	for p.count > 0 {
		p.cond.Wait()
	}
	p.mutex.Unlock()
}

// Install precaches the manifest into the static generation.
// All manifest responses are fetched before anything is written, and written in one batch:
// if any of them fails, nothing is stored and the worker becomes redundant.
func (w *Worker) Install(ctx context.Context) error {
	w.pending.add()
	defer w.pending.done()
	w.setState(StateInstalling)

	entries, err := w.precache(ctx)
	if err == nil {
		var cache storage.Cache
		if cache, err = w.storage.Open(w.staticCache); err == nil {
			err = cache.PutAll(entries)
		}
		if err != nil {
			err = &InstallError{Err: err}
		}
	}
	if err != nil {
		w.log.Error().Err(err).Msg("Install failed")
		w.setState(StateRedundant)
		return err
	}

	w.log.Info().Str("cache", w.staticCache).Int("entries", len(entries)).Msg("Installed")
	w.setState(StateInstalled)
	return nil
}

func (w *Worker) precache(ctx context.Context) ([]storage.Entry, error) {
	entries := make([]storage.Entry, len(w.manifest))
	errs := make([]error, len(w.manifest))
	var wg sync.WaitGroup
	for i, path := range w.manifest {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			entries[i], errs[i] = w.precacheEntry(ctx, path)
		}(i, path)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, &InstallError{Path: w.manifest[i], Err: err}
		}
	}
	return entries, nil
}

func (w *Worker) precacheEntry(ctx context.Context, path string) (storage.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.resolve(path), nil)
	if err != nil {
		return storage.Entry{}, err
	}
	res, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		return storage.Entry{}, err
	}
	if !isOk(res.StatusCode) {
		res.Body.Close()
		return storage.Entry{}, &statusError{res.StatusCode}
	}
	if !cachekey.Storable(res) {
		res.Body.Close()
		return storage.Entry{}, errVaryStar
	}
	bts, err := serializer.Snapshot(res)
	if err != nil {
		return storage.Entry{}, err
	}
	return storage.Entry{
		Key:      cachekey.AddVaryKeys(cachekey.GetKeyPrefix(req), req, res),
		StoredAt: time.Now(),
		Bytes:    bts,
	}, nil
}

// Activate deletes every generation that is neither the current static nor the
// current dynamic one. Cleanup errors are logged and do not fail activation.
func (w *Worker) Activate(ctx context.Context) error {
	if state := w.State(); state != StateInstalled {
		return ErrNotInstalled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.pending.add()
	defer w.pending.done()
	w.setState(StateActivating)

	if err := w.deleteStaleCaches(); err != nil {
		w.log.Warn().Err(err).Msg("Could not delete old caches")
	}

	w.setState(StateActivated)
	return nil
}

func (w *Worker) deleteStaleCaches() error {
	names, err := w.storage.Names()
	if err != nil {
		return err
	}
	var firstErr error
	for _, name := range names {
		if name == w.staticCache || name == w.dynamicCache {
			continue
		}
		if _, err := w.storage.Delete(name); err != nil {
			w.log.Warn().Err(err).Str("cache", name).Msg("Could not delete cache")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		w.log.Info().Str("cache", name).Msg("Deleted old cache")
	}
	return firstErr
}
