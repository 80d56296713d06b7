package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hivelab/comb/internal/config"
	"github.com/hivelab/comb/internal/sandbox"
	"github.com/hivelab/comb/pkg/manifest"
)

var (
	upDeploymentName string
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start a Comb deployment",
	Long: `Start a new Comb deployment from the comb.yml in the current directory.

Creates and starts:
  • Isolated Docker network
  • Redis container (mailbox and state storage)
  • hived container (host daemon serving the bridge)
  • One drone container per element instance

The deployment name comes from comb.yml unless overridden with --name.`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringVar(&upDeploymentName, "name", "", "Deployment name (defaults to deployment.name in comb.yml)")
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Phase 1: Configuration validation
	cfg, err := config.Load("comb.yml")
	if err != nil {
		return fmt.Errorf(`comb.yml not found or invalid

No configuration file found in the current directory.

Initialize your deployment first:
  comb init

Then retry: comb up

Error details: %w`, err)
	}

	// Validate element references against the catalog
	registry := manifest.Default()
	if err := cfg.ValidateElements(registry); err != nil {
		return fmt.Errorf("comb.yml validation failed: %w", err)
	}

	cli, err := sandbox.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	// Phase 2: Deployment name determination
	targetName := upDeploymentName
	if targetName == "" {
		targetName = cfg.Deployment.Name
	}
	if targetName == "" {
		targetName, err = sandbox.GenerateDefaultName(ctx, cli)
		if err != nil {
			return fmt.Errorf("failed to generate deployment name: %w", err)
		}
	}

	if err := sandbox.ValidateName(targetName); err != nil {
		return err
	}

	nameCollision, err := sandbox.CheckNameCollision(ctx, cli, targetName)
	if err != nil {
		return err
	}
	if nameCollision {
		return fmt.Errorf(`deployment '%s' already exists

Found existing containers with this deployment name.

Either:
  1. Stop the existing deployment: comb down --name %s
  2. Choose a different name: comb up --name other-name`, targetName, targetName)
	}

	// Phase 3: Resource creation
	configDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	configDir, err = filepath.Abs(configDir)
	if err != nil {
		return fmt.Errorf("failed to resolve config directory: %w", err)
	}

	redisPort, err := sandbox.FindNextAvailablePort(ctx, cli)
	if err != nil {
		return fmt.Errorf("failed to allocate Redis port: %w", err)
	}
	fmt.Printf("✓ Allocated Redis port: %d\n", redisPort)

	opts := sandbox.CreateOptions{
		DeploymentName: targetName,
		RunID:          sandbox.GenerateRunID(),
		ConfigDir:      configDir,
		RedisPort:      redisPort,
	}

	if err := sandbox.CreateDeployment(ctx, cli, cfg, opts); err != nil {
		// Attempt rollback on failure
		fmt.Printf("\nResource creation failed. Rolling back...\n")
		if rollbackErr := sandbox.RemoveDeployment(ctx, cli, targetName, func(format string, args ...any) {
			fmt.Printf(format, args...)
		}); rollbackErr != nil {
			fmt.Printf("Warning: rollback encountered errors: %v\n", rollbackErr)
		}
		return fmt.Errorf("failed to create deployment: %w", err)
	}

	printUpSuccess(cfg, targetName, redisPort)

	return nil
}

func printUpSuccess(cfg *config.CombConfig, deploymentName string, redisPort int) {
	fmt.Printf("\n✓ Deployment '%s' started successfully\n\n", deploymentName)
	fmt.Printf("Containers:\n")
	fmt.Printf("  • %s (running)\n", sandbox.RedisContainerName(deploymentName))
	fmt.Printf("  • %s (running)\n", sandbox.HivedContainerName(deploymentName))
	for instanceName := range cfg.Elements {
		fmt.Printf("  • %s (running)\n", sandbox.DroneContainerName(deploymentName, instanceName))
	}
	fmt.Printf("\n")
	fmt.Printf("Network:\n")
	fmt.Printf("  • %s\n", sandbox.NetworkName(deploymentName))
	fmt.Printf("\n")
	fmt.Printf("Redis: localhost:%d\n", redisPort)
	fmt.Printf("\n")
	fmt.Printf("Next steps:\n")
	fmt.Printf("  comb list           # see deployment status\n")
	fmt.Printf("  comb watch          # stream mailbox updates\n")
	fmt.Printf("  comb down --name %s # stop the deployment\n", deploymentName)
}
