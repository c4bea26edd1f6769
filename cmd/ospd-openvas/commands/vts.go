package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janowagner/ospd-openvas/cmd/ospd-openvas/internal/format"
	"github.com/janowagner/ospd-openvas/pkg/kb"
	"github.com/janowagner/ospd-openvas/pkg/vtcache"
)

// NewVTsCommand constructs the 'vts' command, listing the loaded VT table
// and the feed version.
func NewVTsCommand() *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "vts",
		Short: "List the VT table and feed version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store := kb.NewMemoryStore(cfg.KB.Indices)
			cache := vtcache.NewCache(store, nil)
			if err := cache.Load(ctx); err != nil {
				return fmt.Errorf("load VT table: %w", err)
			}

			formatter := format.New(cmd.OutOrStdout())
			if family != "" {
				byFamily := cache.ByFamily()
				oids, ok := byFamily[family]
				if !ok {
					return fmt.Errorf("unknown VT family %q", family)
				}
				for _, oid := range oids {
					fmt.Fprintln(cmd.OutOrStdout(), oid)
				}
				return nil
			}
			formatter.VTTable(cache)
			return nil
		},
	}

	cmd.Flags().StringVar(&family, "family", "", "List only the OIDs of one VT family")
	return cmd
}
