package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	cachekey "github.com/always-cache/offline-cache/pkg/cache-key"
	"github.com/always-cache/offline-cache/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCachesCmd(opts *rootOptions) *cobra.Command {
	var entriesFlag bool

	cmd := &cobra.Command{
		Use:   "caches",
		Short: "List the stored cache generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := openStorage(cfg.DB)
			if err != nil {
				return err
			}
			defer store.Close()

			names, err := store.Names()
			if err != nil {
				return err
			}
			entries, err := store.All("")
			if err != nil {
				return err
			}
			counts := make(map[string]int)
			sizes := make(map[string]uint64)
			for _, e := range entries {
				counts[e.Cache]++
				sizes[e.Cache] += uint64(len(e.Bytes))
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tENTRIES\tSIZE\tCURRENT")
			for _, name := range names {
				current := name == cfg.Caches.Static || name == cfg.Caches.Dynamic
				fmt.Fprintf(tw, "%s\t%d\t%s\t%t\n", name, counts[name], humanize.Bytes(sizes[name]), current)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if entriesFlag {
				fmt.Println()
				return printEntries(entries)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&entriesFlag, "entries", false, "Also list the stored requests")
	return cmd
}

func printEntries(entries []storage.Entry) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CACHE\tMETHOD\tURL\tVARY\tSTORED")
	for _, e := range entries {
		req, err := cachekey.GetRequestFromKey(e.Key)
		if err != nil {
			return err
		}
		vary := make([]string, 0)
		for name := range req.Header {
			vary = append(vary, name+"="+req.Header.Get(name))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Cache, req.Method, req.URL, strings.Join(vary, ","), humanize.Time(e.StoredAt))
	}
	return tw.Flush()
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [name...]",
		Short: "Delete cache generations (all of them if no name is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := openStorage(cfg.DB)
			if err != nil {
				return err
			}
			defer store.Close()

			names := args
			if len(names) == 0 {
				if names, err = store.Names(); err != nil {
					return err
				}
			}
			for _, name := range names {
				deleted, err := store.Delete(name)
				if err != nil {
					return err
				}
				if deleted {
					fmt.Printf("Deleted %s\n", name)
				} else {
					fmt.Printf("No cache named %s\n", name)
				}
			}
			return nil
		},
	}
}
