package offlinecache

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AdminPrefix is the path prefix of the routes that are not passed to the worker.
const AdminPrefix = "/.offline-cache"

// CacheInfo describes one stored generation.
type CacheInfo struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Current bool   `json:"current"`
}

// WorkerInfo describes the active worker and the generations in its storage.
type WorkerInfo struct {
	Version string      `json:"version"`
	State   State       `json:"state"`
	Caches  []CacheInfo `json:"caches"`
}

// Info lists the generations in the worker's storage.
// It only reads, so a generation deleted concurrently is never recreated.
func (w *Worker) Info() (WorkerInfo, error) {
	info := WorkerInfo{
		Version: w.version,
		State:   w.State(),
		Caches:  make([]CacheInfo, 0),
	}
	names, err := w.storage.Names()
	if err != nil {
		return info, err
	}
	entries, err := w.storage.All("")
	if err != nil {
		return info, err
	}
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Cache]++
	}
	for _, name := range names {
		info.Caches = append(info.Caches, CacheInfo{
			Name:    name,
			Entries: counts[name],
			Current: name == w.staticCache || name == w.dynamicCache,
		})
	}
	return info, nil
}

// Handler returns a handler serving the admin routes next to the registration:
//
//	GET  /.offline-cache/caches  lists the generations
//	POST /.offline-cache/update  installs and activates a worker created by newWorker
//
// All other requests are handled by the registration.
func (reg *Registration) Handler(newWorker func() *Worker) http.Handler {
	r := chi.NewRouter()
	r.Route(AdminPrefix, func(r chi.Router) {
		r.Get("/caches", reg.handleCaches)
		r.Post("/update", func(w http.ResponseWriter, r *http.Request) {
			worker := newWorker()
			if err := reg.Register(r.Context(), worker); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			reg.handleCaches(w, r)
		})
	})
	r.Handle("/*", reg)
	return r
}

func (reg *Registration) handleCaches(w http.ResponseWriter, r *http.Request) {
	worker := reg.Active()
	if worker == nil {
		http.Error(w, "No active worker", http.StatusServiceUnavailable)
		return
	}
	info, err := worker.Info()
	if err != nil {
		reg.requestLogger(r).Error().Err(err).Msg("Could not list caches")
		http.Error(w, "Could not list caches", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		reg.requestLogger(r).Error().Err(err).Msg("Could not write cache list to client")
	}
}
