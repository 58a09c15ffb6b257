package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCollectCmd() *cobra.Command {
	var clearCache bool
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Remove orphaned rows and untracked files from the download root once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadServices()
			if err != nil {
				return err
			}
			defer rt.Close()

			if clearCache {
				if err := rt.db.ClearCache(); err != nil {
					return err
				}
			}
			if err := rt.dir.Prepare(); err != nil {
				return err
			}
			res, err := rt.engine.Collect()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d orphaned downloads and %d files\n", res.RowsDeleted, res.FilesDeleted)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearCache, "clear-cache", false, "Also drop every cached metadata response")
	return cmd
}
