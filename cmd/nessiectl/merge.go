package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newffy/nessie/internal/commitengine"
)

var (
	mergeFrom    string
	mergeInto    string
	mergeMessage string
	mergeDryRun  bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Replay one reference's history since its common ancestor onto another",
	RunE: func(cmd *cobra.Command, _ []string) error {
		req := commitengine.MergeRequest{
			FromRef: mergeFrom,
			IntoRef: mergeInto,
			DryRun:  mergeDryRun,
		}
		if mergeMessage != "" {
			req.Metadata = []byte(mergeMessage)
		}

		eng := commitengine.New(backing, cfg, nil)
		res, err := eng.Merge(cmd.Context(), req)
		if err != nil {
			return err
		}
		if len(res.Conflicts) > 0 {
			for _, c := range res.Conflicts {
				fmt.Printf("conflict: %s base=%s from=%s into=%s\n", c.Key, c.BaseCID, c.FromCID, c.IntoCID)
			}
			return nil
		}
		for _, h := range res.Hashes {
			fmt.Println(h.String())
		}
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringVar(&mergeFrom, "from", "", "reference to merge from")
	mergeCmd.Flags().StringVar(&mergeInto, "into", "main", "reference to merge into")
	mergeCmd.Flags().StringVar(&mergeMessage, "message", "", "overrides every replayed commit's metadata; omit to keep each commit's own")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "compute conflicts without committing")
}
