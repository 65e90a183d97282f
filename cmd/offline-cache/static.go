package main

import (
	"fmt"
	"net/http"

	"github.com/always-cache/offline-cache/server"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newStaticCmd(opts *rootOptions) *cobra.Command {
	var (
		portFlag int
		dirFlag  string
	)

	cmd := &cobra.Command{
		Use:   "static",
		Short: "Serve the app's static files, i.e. run the origin",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := dirFlag
			if dir == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				dir = cfg.Root
			}
			log.Info().Msgf("Server running at http://localhost:%d/ (serving %s)", portFlag, dir)
			return http.ListenAndServe(fmt.Sprintf(":%d", portFlag), server.Router(log.Logger, server.NewStatic(dir)))
		},
	}
	cmd.Flags().IntVar(&portFlag, "port", server.DefaultPort, "Port to listen on")
	cmd.Flags().StringVar(&dirFlag, "dir", "", "Directory to serve (overrides config root)")
	return cmd
}
