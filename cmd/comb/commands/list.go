package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivelab/comb/internal/sandbox"
)

var (
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all Comb deployments",
	Long: `List all Comb deployments by querying Docker for containers with the comb.project label.

For each deployment, displays:
  • Deployment name
  • Status (Running/Degraded/Stopped)
  • Redis port
  • Element count
  • Uptime (for running deployments)

Use --json for machine-readable output.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := sandbox.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	infos, err := sandbox.ListDeployments(ctx, cli)
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}

	if len(infos) == 0 {
		if !listJSON {
			fmt.Println("No Comb deployments found.")
			fmt.Println()
			fmt.Println("Run 'comb up' to start a new deployment.")
		} else {
			fmt.Println("[]")
		}
		return nil
	}

	if listJSON {
		outputJSON(infos)
	} else {
		outputTable(infos)
	}

	return nil
}

func outputJSON(infos []sandbox.DeploymentInfo) {
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func outputTable(infos []sandbox.DeploymentInfo) {
	fmt.Printf("%-20s %-10s %-8s %-10s %s\n", "DEPLOYMENT", "STATUS", "REDIS", "ELEMENTS", "UPTIME")

	for _, info := range infos {
		redisPort := "-"
		if info.RedisPort > 0 {
			redisPort = fmt.Sprintf("%d", info.RedisPort)
		}
		fmt.Printf("%-20s %-10s %-8s %-10d %s\n", info.Name, info.Status, redisPort, info.Elements, info.Uptime)
	}
}
