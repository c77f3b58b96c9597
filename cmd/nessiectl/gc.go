package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newffy/nessie/internal/gc"
)

var gcCutoffMicros int64

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Build the live-set as of a cutoff time and report content no longer live",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := gc.New(backing, cfg)
		live, err := c.BuildLiveSet(cmd.Context(), gcCutoffMicros)
		if err != nil {
			return err
		}
		for name, derr := range live.Degraded {
			fmt.Printf("degraded: %s: %v\n", name, derr)
		}

		expired, err := c.ExpiredContent(cmd.Context(), live)
		if err != nil {
			return err
		}
		for _, e := range expired {
			fmt.Printf("%s\t%s\t%s\t%s\n", e.CID, e.Ref, e.Commit, e.Key.String())
		}
		return nil
	},
}

func init() {
	gcCmd.Flags().Int64Var(&gcCutoffMicros, "cutoff", 0, "cutoff time in microseconds since epoch; commits and puts at or after this time are always kept live")
}
