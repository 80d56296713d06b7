package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivelab/comb/internal/scaffold"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Comb deployment",
	Long: `Initialize a new Comb deployment with a starter configuration.

Creates:
  • comb.yml - Deployment configuration with example elements

Use --force to reinitialize an existing deployment (WARNING: overwrites existing configuration).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Force reinitialization (removes existing comb.yml)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	// Check for existing files (unless --force)
	if !forceInit {
		if err := scaffold.CheckExisting(); err != nil {
			return err
		}
	}

	if err := scaffold.Initialize(forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess()

	return nil
}
