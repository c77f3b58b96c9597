// Command nessiectl is a thin CLI wrapper around the adapter packages
// (commitengine, refs, readpath, gc), in the style of the teacher's
// cmd/bd: every subcommand does flag parsing and output formatting
// only, delegating all adapter logic to internal/*.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newffy/nessie/internal/nessconfig"
	"github.com/newffy/nessie/internal/store"
	"github.com/newffy/nessie/internal/store/memstore"
	"github.com/newffy/nessie/internal/store/sqlstore"
)

var (
	cfgPath string
	dsn     string
	cfg     *nessconfig.Config
	backing store.Store
)

var rootCmd = &cobra.Command{
	Use:   "nessiectl",
	Short: "Inspect and mutate a nessie-style versioned metadata catalog",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := nessconfig.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded

		if dsn != "" {
			cfg.StoreDSN = dsn
		}
		if cfg.StoreDSN == "" {
			backing = memstore.New()
			return nil
		}
		s, err := sqlstore.Open(cmd.Context(), sqlstore.Config{DSN: cfg.StoreDSN, RepositoryID: cfg.RepositoryID})
		if err != nil {
			return fmt.Errorf("connecting to store: %w", err)
		}
		backing = s
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to nessie.toml")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "store DSN; empty uses an in-memory store")

	rootCmd.AddCommand(initCmd, eraseCmd, commitCmd, logCmd, diffCmd, mergeCmd, transplantCmd, gcCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
