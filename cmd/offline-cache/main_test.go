package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	offlinecache "github.com/always-cache/offline-cache"
	"github.com/always-cache/offline-cache/pkg/config"
	"github.com/always-cache/offline-cache/server"
)

func TestWorkerFromConfig(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>Calculadora</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := openStorage(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := config.Default()
	cfg.Manifest = []string{"/", "/index.html"}
	scope, err := cfg.ScopeURL()
	if err != nil {
		t.Fatal(err)
	}
	fetcher := offlinecache.HandlerFetcher{Handler: server.NewStatic(root)}
	reg := offlinecache.NewRegistration(*scope, fetcher, nil)

	if err := reg.Register(context.Background(), createWorker(cfg, store, fetcher, *scope)); err != nil {
		t.Fatal(err)
	}

	names, err := store.Names()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != cfg.Caches.Static {
		t.Fatalf("Caches are %q", names)
	}
	req, _ := http.NewRequest("GET", (&url.URL{Scheme: scope.Scheme, Host: scope.Host, Path: "/"}).String(), nil)
	res, err := reg.Active().Fetch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if cs := res.Header.Get("Cache-Status"); cs != "OfflineCache; hit" {
		t.Fatalf("Cache-Status is %s", cs)
	}
}

func TestOpenMemoryStorage(t *testing.T) {
	store, err := openStorage("memory")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, err := store.Open("calc-static"); err != nil {
		t.Fatal(err)
	}
	if ok, err := store.Has("calc-static"); err != nil || !ok {
		t.Fatalf("Cache not found: %v", err)
	}
}
