package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newffy/nessie/internal/hashid"
	"github.com/newffy/nessie/internal/readpath"
)

var (
	diffFrom string
	diffTo   string
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show the row-level differences between two commits",
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, err := hashid.Parse(diffFrom)
		if err != nil {
			return fmt.Errorf("parsing --from: %w", err)
		}
		to, err := hashid.Parse(diffTo)
		if err != nil {
			return fmt.Errorf("parsing --to: %w", err)
		}

		r := readpath.New(backing)
		ops, err := r.Diff(cmd.Context(), from, to, nil)
		if err != nil {
			return err
		}
		for _, op := range ops {
			switch {
			case op.FromCID == "":
				fmt.Printf("+ %s\t%s\n", op.Key, op.ToCID)
			case op.ToCID == "":
				fmt.Printf("- %s\t%s\n", op.Key, op.FromCID)
			default:
				fmt.Printf("~ %s\t%s -> %s\n", op.Key, op.FromCID, op.ToCID)
			}
		}
		return nil
	},
}

func init() {
	diffCmd.Flags().StringVar(&diffFrom, "from", "", "hash to diff from")
	diffCmd.Flags().StringVar(&diffTo, "to", "", "hash to diff to")
}
