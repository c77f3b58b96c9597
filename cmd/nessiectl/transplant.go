package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newffy/nessie/internal/commitengine"
	"github.com/newffy/nessie/internal/hashid"
)

var (
	transplantInto    string
	transplantCommits string
	transplantMessage string
)

var transplantCmd = &cobra.Command{
	Use:   "transplant",
	Short: "Replay a caller-chosen, comma-separated list of commits onto a reference",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var commits []hashid.Hash
		for _, s := range strings.Split(transplantCommits, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			h, err := hashid.Parse(s)
			if err != nil {
				return fmt.Errorf("parsing commit hash %q: %w", s, err)
			}
			commits = append(commits, h)
		}

		req := commitengine.TransplantRequest{
			IntoRef: transplantInto,
			Commits: commits,
		}
		if transplantMessage != "" {
			req.Rewriter = func([]byte) []byte { return []byte(transplantMessage) }
		}

		eng := commitengine.New(backing, cfg, nil)
		results, err := eng.Transplant(cmd.Context(), req)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Println(r.Hash.String())
		}
		return nil
	},
}

func init() {
	transplantCmd.Flags().StringVar(&transplantInto, "into", "main", "reference to transplant onto")
	transplantCmd.Flags().StringVar(&transplantCommits, "commits", "", "comma-separated list of commit hashes to replay, in application order")
	transplantCmd.Flags().StringVar(&transplantMessage, "message", "", "overrides every replayed commit's metadata; omit to keep each commit's own")
}
