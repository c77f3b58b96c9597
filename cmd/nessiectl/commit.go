package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newffy/nessie/internal/commitengine"
	"github.com/newffy/nessie/internal/types"
)

var (
	commitRef     string
	commitMessage string
	commitPuts    []string
	commitDeletes []string
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Apply puts/deletes to a reference as a single commit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		puts, err := parsePuts(commitPuts)
		if err != nil {
			return err
		}
		deletes := make([]types.Delete, 0, len(commitDeletes))
		for _, k := range commitDeletes {
			deletes = append(deletes, types.Delete{Key: types.NewKey(strings.Split(k, ".")...)})
		}

		eng := commitengine.New(backing, cfg, nil)
		res, err := eng.Commit(cmd.Context(), commitengine.CommitRequest{
			RefName:  commitRef,
			Metadata: []byte(commitMessage),
			Puts:     puts,
			Deletes:  deletes,
		})
		if err != nil {
			return err
		}
		fmt.Println(res.Hash.String())
		return nil
	},
}

func parsePuts(raw []string) ([]types.Put, error) {
	puts := make([]types.Put, 0, len(raw))
	for _, p := range raw {
		keyAndCID := strings.SplitN(p, "=", 2)
		if len(keyAndCID) != 2 {
			return nil, fmt.Errorf("invalid --put %q, expected key=cid", p)
		}
		puts = append(puts, types.Put{
			Key: types.NewKey(strings.Split(keyAndCID[0], ".")...),
			CID: types.CID(keyAndCID[1]),
		})
	}
	return puts, nil
}

func init() {
	commitCmd.Flags().StringVar(&commitRef, "ref", "main", "reference to commit onto")
	commitCmd.Flags().StringVar(&commitMessage, "message", "", "commit metadata")
	commitCmd.Flags().StringArrayVar(&commitPuts, "put", nil, "key=cid, may be repeated")
	commitCmd.Flags().StringArrayVar(&commitDeletes, "delete", nil, "key to delete, may be repeated")
}
