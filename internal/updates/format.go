package updates

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hivelab/comb/pkg/mailbox"
)

// FormatUpdateTable writes connection updates as a formatted table to the provided writer.
// The table includes columns: ID, SOURCE, AGE, and PATHS (truncated).
// Returns the number of updates formatted.
func FormatUpdateTable(w io.Writer, updates []*mailbox.ConnectionUpdate, deploymentName string) int {
	if len(updates) == 0 {
		fmt.Fprintf(w, "No updates found for deployment '%s'\n", deploymentName)
		return 0
	}

	fmt.Fprintf(w, "Connection updates for deployment '%s':\n\n", deploymentName)

	fmt.Fprintf(w, "%-10s %-18s %-8s %s\n",
		"ID", "SOURCE", "AGE", "PATHS")
	fmt.Fprintf(w, "%-10s %-18s %-8s %s\n",
		"----------", "------------------", "--------", "----------------------------------------")

	for _, u := range updates {
		fmt.Fprintf(w, "%-10s %-18s %-8s %s\n",
			formatID(u.ID),
			formatSource(u.SourceDeploymentID),
			formatTimestamp(u.TimestampMs),
			formatPaths(u.ChangedPaths),
		)
	}

	countMsg := "update"
	if len(updates) != 1 {
		countMsg = "updates"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(updates), countMsg)

	return len(updates)
}

// FormatValueTable writes resolved connection values as a formatted table.
// The table includes columns: ELEMENT, INPUT, SOURCE, AGE, and VALUE (truncated).
// Returns the number of values formatted.
func FormatValueTable(w io.Writer, values []*mailbox.ConnectionValue, deploymentName string) int {
	if len(values) == 0 {
		fmt.Fprintf(w, "No resolved values found for deployment '%s'\n", deploymentName)
		return 0
	}

	fmt.Fprintf(w, "Resolved connection values for deployment '%s':\n\n", deploymentName)

	fmt.Fprintf(w, "%-18s %-16s %-18s %-8s %s\n",
		"ELEMENT", "INPUT", "SOURCE", "AGE", "VALUE")
	fmt.Fprintf(w, "%-18s %-16s %-18s %-8s %s\n",
		"------------------", "----------------", "------------------", "--------", "------------------------------")

	for _, v := range values {
		fmt.Fprintf(w, "%-18s %-16s %-18s %-8s %s\n",
			formatSource(v.ElementID),
			v.InputPath,
			formatSource(v.SourceDeploymentID),
			formatTimestamp(v.ResolvedAtMs),
			formatValue(v.Value),
		)
	}

	countMsg := "value"
	if len(values) != 1 {
		countMsg = "values"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(values), countMsg)

	return len(values)
}

// FormatJSONL writes updates as line-delimited JSON (JSONL) to the provided writer.
// Each update is written as a single JSON object on its own line.
// This format is ideal for streaming and processing with tools like jq.
func FormatJSONL(w io.Writer, updates []*mailbox.ConnectionUpdate) error {
	for _, u := range updates {
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to marshal update to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// FormatSingleJSON writes a single update as pretty-printed JSON to the provided writer.
// Used in get mode to display complete update details.
func FormatSingleJSON(w io.Writer, u *mailbox.ConnectionUpdate) error {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal update to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	fmt.Fprintln(w)

	return nil
}

// formatID truncates an update ID to first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatSource formats a deployment or element name for table display.
// Empty values return "-". Long names are truncated.
func formatSource(name string) string {
	if name == "" {
		return "-"
	}
	if len(name) > 18 {
		return name[:15] + "..."
	}
	return name
}

// formatPaths joins changed state paths for table display, truncated to 40 chars.
// The wildcard path renders as "* (full resync)".
func formatPaths(paths []string) string {
	if len(paths) == 0 {
		return "-"
	}
	if len(paths) == 1 && paths[0] == "*" {
		return "* (full resync)"
	}

	joined := strings.Join(paths, ", ")
	if len(joined) > 40 {
		return joined[:37] + "..."
	}
	return joined
}

// formatValue truncates a raw JSON value to max 30 characters for table display.
// Empty values return "-".
func formatValue(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "-"
	}
	if len(s) > 30 {
		return s[:27] + "..."
	}
	return s
}

// formatTimestamp formats Unix timestamp in milliseconds to human-readable time.
// Shows relative time like "2m ago", "1h ago", etc.
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	t := time.Unix(timestampMs/1000, (timestampMs%1000)*1000000)
	diff := time.Since(t)

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}
