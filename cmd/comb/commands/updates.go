package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hivelab/comb/internal/filter"
	"github.com/hivelab/comb/internal/printer"
	"github.com/hivelab/comb/internal/resolver"
	"github.com/hivelab/comb/internal/timespec"
	"github.com/hivelab/comb/internal/updates"
)

var (
	updatesDeploymentName string
	updatesOutputFormat   string
	updatesSince          string
	updatesUntil          string
	updatesPath           string
	updatesSource         string
	updatesShowValues     bool
)

var updatesCmd = &cobra.Command{
	Use:   "updates [UPDATE_ID]",
	Short: "Inspect a deployment's mailbox",
	Long: `Inspect the connection updates in a deployment's mailbox.

List Mode (no UPDATE_ID):
  Displays the updates currently retained in the mailbox as a table or
  line-delimited JSON. Mailboxes are capped, so only recent updates appear.

Get Mode (with UPDATE_ID):
  Displays complete details of a single update as pretty-printed JSON.
  Short ID prefixes (6+ characters) are accepted.

Filters (list mode only):
  --since/--until  Time bounds (duration like '1h30m' or RFC3339)
  --path           Glob matched against changed state paths
  --source         Exact source deployment name

Examples:
  # List retained updates
  comb updates --name spring-fair

  # Updates from the last hour touching shared state
  comb updates --name spring-fair --since 1h --path 'shared.*'

  # Resolved connection values instead of updates
  comb updates --name spring-fair --values

  # Full details of one update
  comb updates 0c7f9d4e --name spring-fair

  # Export as JSONL for jq
  comb updates --name spring-fair --output=jsonl | jq .id`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpdates,
}

func init() {
	updatesCmd.Flags().StringVarP(&updatesDeploymentName, "name", "n", "", "Target deployment name (read from comb.yml if omitted)")
	updatesCmd.Flags().StringVarP(&updatesOutputFormat, "output", "o", "default", "Output format: default or jsonl (ignored in get mode)")
	updatesCmd.Flags().StringVar(&updatesSince, "since", "", "Only updates at or after this time")
	updatesCmd.Flags().StringVar(&updatesUntil, "until", "", "Only updates at or before this time")
	updatesCmd.Flags().StringVar(&updatesPath, "path", "", "Glob filter on changed state paths")
	updatesCmd.Flags().StringVar(&updatesSource, "source", "", "Filter by source deployment")
	updatesCmd.Flags().BoolVar(&updatesShowValues, "values", false, "Show resolved connection values instead of updates")
	rootCmd.AddCommand(updatesCmd)
}

func runUpdates(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	isGetMode := len(args) > 0

	var outputFormat updates.OutputFormat
	if !isGetMode {
		switch updatesOutputFormat {
		case "default":
			outputFormat = updates.OutputFormatDefault
		case "jsonl":
			outputFormat = updates.OutputFormatJSONL
		default:
			return printer.Error(
				"invalid output format",
				fmt.Sprintf("Unknown format: %s", updatesOutputFormat),
				[]string{"Valid formats: default, jsonl"},
			)
		}
	}

	targetName, err := resolveDeploymentName(updatesDeploymentName)
	if err != nil {
		return err
	}

	box, err := connectMailbox(ctx, targetName)
	if err != nil {
		return err
	}
	defer box.Close()

	if isGetMode {
		updateID, err := resolver.ResolveUpdateID(ctx, box, args[0])
		if err != nil {
			if ambiguous, ok := err.(*resolver.AmbiguousError); ok {
				fmt.Fprintln(os.Stderr, resolver.FormatAmbiguousError(ambiguous))
				return fmt.Errorf("ambiguous short ID")
			}
			return err
		}
		return updates.GetUpdate(ctx, box, updateID, os.Stdout)
	}

	if updatesShowValues {
		return updates.ListValues(ctx, box, os.Stdout)
	}

	sinceMS, untilMS, err := timespec.ParseRange(updatesSince, updatesUntil)
	if err != nil {
		return err
	}

	criteria := &filter.Criteria{
		SinceTimestampMs: sinceMS,
		UntilTimestampMs: untilMS,
		PathGlob:         updatesPath,
		SourceDeployment: updatesSource,
	}

	return updates.ListUpdates(ctx, box, outputFormat, criteria, os.Stdout)
}
