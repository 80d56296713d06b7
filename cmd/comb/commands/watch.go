package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hivelab/comb/internal/printer"
	"github.com/hivelab/comb/internal/watch"
)

var (
	watchDeploymentName string
	watchOutputFormat   string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream mailbox updates in real time",
	Long: `Stream a deployment's connection updates as they are announced.

Each update names the deployment that published it and the state paths
that changed. Press Ctrl+C to stop.

Output Formats:
  default - Human-readable lines with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch the deployment configured in this directory
  comb watch

  # Watch a specific deployment
  comb watch --name spring-fair

  # Export updates as JSON
  comb watch --output=json > updates.jsonl`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchDeploymentName, "name", "n", "", "Target deployment name (read from comb.yml if omitted)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	targetName, err := resolveDeploymentName(watchDeploymentName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	box, err := connectMailbox(ctx, targetName)
	if err != nil {
		return err
	}
	defer box.Close()

	// Ctrl+C cancels the stream cleanly
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return watch.StreamUpdates(ctx, box, outputFormat, os.Stdout)
}
