package main

import (
	"fmt"
	"net/http"
	"net/url"

	offlinecache "github.com/always-cache/offline-cache"
	"github.com/always-cache/offline-cache/pkg/config"
	"github.com/always-cache/offline-cache/server"
	"github.com/always-cache/offline-cache/storage"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		listenFlag string
		originFlag string
		hostFlag   string
		dirFlag    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the app cache-first, falling back to the origin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if listenFlag != "" {
				cfg.Listen = listenFlag
			}
			if originFlag != "" {
				cfg.Origin = originFlag
			}

			scope, err := cfg.ScopeURL()
			if err != nil {
				return err
			}

			var fetcher offlinecache.Fetcher
			if dirFlag != "" {
				fetcher = offlinecache.HandlerFetcher{Handler: server.NewStatic(dirFlag)}
				log.Info().Msgf("Serving origin from directory %s", dirFlag)
			} else {
				originUrl, err := url.Parse(cfg.Origin)
				if err != nil {
					return fmt.Errorf("could not parse origin: %w", err)
				}
				fetcher = offlinecache.NewHTTPFetcher(*scope, *originUrl, hostFlag)
			}

			store, err := openStorage(cfg.DB)
			if err != nil {
				return err
			}
			defer store.Close()

			newWorker := func() *offlinecache.Worker {
				return createWorker(cfg, store, fetcher, *scope)
			}
			reg := offlinecache.NewRegistration(*scope, fetcher, &log.Logger)
			if err := reg.Register(cmd.Context(), newWorker()); err != nil {
				// keep serving, requests are passed to the origin until an update succeeds
				log.Error().Err(err).Msgf("Could not register worker, retry with POST %s/update", offlinecache.AdminPrefix)
			}

			log.Info().Msgf("Serving %s on %s (origin %s)", scope.String(), cfg.Listen, cfg.Origin)
			return http.ListenAndServe(cfg.Listen, server.Router(log.Logger, reg.Handler(newWorker)))
		},
	}
	cmd.Flags().StringVar(&listenFlag, "listen", "", "Address to listen on (overrides config)")
	cmd.Flags().StringVar(&originFlag, "origin", "", "Origin URL to fetch from (overrides config)")
	cmd.Flags().StringVar(&hostFlag, "host", "", "Hostname of origin, if origin is an IP address")
	cmd.Flags().StringVar(&dirFlag, "dir", "", "Serve the origin in-process from this directory instead of fetching it")
	return cmd
}

func createWorker(cfg *config.Config, store storage.CacheStorage, fetcher offlinecache.Fetcher, scope url.URL) *offlinecache.Worker {
	return offlinecache.CreateWorker(offlinecache.Config{
		Storage:      store,
		Fetcher:      fetcher,
		Scope:        scope,
		StaticCache:  cfg.Caches.Static,
		DynamicCache: cfg.Caches.Dynamic,
		Manifest:     cfg.Manifest,
		DynamicLimit: cfg.DynamicLimit,
		Version:      version,
		Logger:       &log.Logger,
	})
}
