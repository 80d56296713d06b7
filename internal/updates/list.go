package updates

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/hivelab/comb/internal/filter"
	"github.com/hivelab/comb/pkg/mailbox"
)

// OutputFormat specifies how to format the update list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated paths
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete updates as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ListUpdates retrieves the mailbox updates for a deployment and writes them
// to the provided writer. Applies filter criteria if provided. Output is
// sorted oldest first for chronological reading.
func ListUpdates(ctx context.Context, box *mailbox.Client, format OutputFormat, criteria *filter.Criteria, w io.Writer) error {
	all, err := box.Updates(ctx)
	if err != nil {
		return fmt.Errorf("failed to read mailbox: %w", err)
	}

	var updates []*mailbox.ConnectionUpdate
	for _, u := range all {
		if criteria != nil && !criteria.Matches(u) {
			continue
		}
		updates = append(updates, u)
	}

	// Mailbox reads come back newest first, flip for chronological output
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].TimestampMs < updates[j].TimestampMs
	})

	switch format {
	case OutputFormatDefault:
		FormatUpdateTable(w, updates, box.DeploymentName())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, updates); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}

// ListValues retrieves the resolved connection values for a deployment and
// writes them as a table to the provided writer. Values are sorted by
// element then input path for stable output.
func ListValues(ctx context.Context, box *mailbox.Client, w io.Writer) error {
	values, err := box.Values(ctx)
	if err != nil {
		return fmt.Errorf("failed to read resolved values: %w", err)
	}

	sort.Slice(values, func(i, j int) bool {
		if values[i].ElementID != values[j].ElementID {
			return values[i].ElementID < values[j].ElementID
		}
		return values[i].InputPath < values[j].InputPath
	})

	FormatValueTable(w, values, box.DeploymentName())
	return nil
}
