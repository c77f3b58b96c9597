package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newffy/nessie/internal/refs"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the repository's default branch",
	RunE: func(cmd *cobra.Command, _ []string) error {
		m := refs.New(backing, cfg, nil)
		if err := m.InitializeRepo(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("initialized repository", cfg.RepositoryID)
		return nil
	},
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase every record belonging to the configured repository",
	RunE: func(cmd *cobra.Command, _ []string) error {
		m := refs.New(backing, cfg, nil)
		if err := m.EraseRepo(cmd.Context(), cfg.RepositoryID); err != nil {
			return err
		}
		fmt.Println("erased repository", cfg.RepositoryID)
		return nil
	},
}
