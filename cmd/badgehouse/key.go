package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key NAME...",
		Short: "Print the storage key of badge names",
		Long: `Print the storage key and file name of each badge name, e.g. to locate a
badge in the storage backend.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range args {
				key := badge.KeyOf(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", name, key, key.FileName())
			}
		},
	}
}
