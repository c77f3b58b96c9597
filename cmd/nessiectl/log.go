package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newffy/nessie/internal/refs"
	"github.com/newffy/nessie/internal/readpath"
)

var (
	logRef   string
	logLimit int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the commit history of a reference",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ptr, err := refs.New(backing, cfg, nil).NamedRef(cmd.Context(), logRef)
		if err != nil {
			return err
		}

		r := readpath.New(backing)
		page, err := r.CommitLog(cmd.Context(), ptr.Hash, logLimit)
		if err != nil {
			return err
		}
		for _, e := range page.Entries {
			fmt.Printf("%s\t%d\t%s\n", e.Hash, e.CreatedTime, string(e.Metadata))
		}
		return nil
	},
}

func init() {
	logCmd.Flags().StringVar(&logRef, "ref", "main", "reference to read history from")
	logCmd.Flags().IntVar(&logLimit, "limit", 20, "maximum number of commits to print")
}
