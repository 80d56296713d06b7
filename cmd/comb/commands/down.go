package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivelab/comb/internal/config"
	"github.com/hivelab/comb/internal/printer"
	"github.com/hivelab/comb/internal/sandbox"
)

var (
	downDeploymentName string
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop a Comb deployment",
	Long: `Stop and remove all Docker resources associated with a Comb deployment.

This includes:
  • All containers (Redis, hived, drones)
  • Docker network

The deployment name comes from comb.yml in the current directory if not
specified. The command does not prompt for confirmation and executes
immediately.

Examples:
  # Stop the deployment configured in this directory
  comb down

  # Stop a specific deployment
  comb down --name spring-fair`,
	RunE: runDown,
}

func init() {
	downCmd.Flags().StringVarP(&downDeploymentName, "name", "n", "", "Target deployment name (read from comb.yml if omitted)")
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := sandbox.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	targetName, err := resolveDeploymentName(downDeploymentName)
	if err != nil {
		return err
	}

	containers, err := sandbox.DeploymentContainers(ctx, cli, targetName)
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return printer.Error(
			fmt.Sprintf("deployment '%s' not found", targetName),
			fmt.Sprintf("No containers found with deployment name '%s'.", targetName),
			[]string{"Run 'comb list' to see available deployments"},
		)
	}

	if err := sandbox.RemoveDeployment(ctx, cli, targetName, printer.Step); err != nil {
		return err
	}

	printer.Success("\nDeployment '%s' removed successfully\n", targetName)

	return nil
}

// resolveDeploymentName resolves the target deployment from a flag value,
// falling back to the comb.yml in the current directory.
func resolveDeploymentName(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	cfg, err := config.Load("comb.yml")
	if err != nil {
		return "", printer.Error(
			"no deployment specified",
			"No --name flag given and no comb.yml found in the current directory.",
			[]string{
				"Specify a deployment:\n  comb down --name <deployment-name>",
				"List deployments:\n  comb list",
			},
		)
	}

	return cfg.Deployment.Name, nil
}
