package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hivelab/comb/pkg/mailbox"
)

// OutputFormat specifies how to render streamed updates.
type OutputFormat string

const (
	// OutputFormatDefault uses human-readable lines with timestamps
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON outputs updates as line-delimited JSON
	OutputFormatJSON OutputFormat = "json"
)

// StreamUpdates subscribes to a deployment's mailbox and writes each
// announced update to the provided writer until the context is cancelled.
// Subscription errors end the stream.
func StreamUpdates(ctx context.Context, box *mailbox.Client, format OutputFormat, w io.Writer) error {
	sub, err := box.SubscribeUpdates(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to mailbox: %w", err)
	}
	defer sub.Close()

	if format == OutputFormatDefault {
		fmt.Fprintf(w, "Watching deployment '%s' (Ctrl+C to stop)...\n\n", box.DeploymentName())
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			return fmt.Errorf("subscription error: %w", err)

		case u, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeUpdate(w, u, format); err != nil {
				return err
			}
		}
	}
}

func writeUpdate(w io.Writer, u *mailbox.ConnectionUpdate, format OutputFormat) error {
	switch format {
	case OutputFormatJSON:
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to marshal update: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err

	case OutputFormatDefault:
		_, err := fmt.Fprintln(w, FormatUpdateLine(u))
		return err

	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// FormatUpdateLine renders one update as a human-readable line, for example:
//
//	📬 14:03:22 update 0c7f9d4e from spring-fair: shared.votes
func FormatUpdateLine(u *mailbox.ConnectionUpdate) string {
	ts := time.Unix(u.TimestampMs/1000, (u.TimestampMs%1000)*1000000)

	paths := strings.Join(u.ChangedPaths, ", ")
	if len(u.ChangedPaths) == 1 && u.ChangedPaths[0] == "*" {
		paths = "* (full resync)"
	}

	id := u.ID
	if len(id) > 8 {
		id = id[:8]
	}

	return fmt.Sprintf("📬 %s update %s from %s: %s",
		ts.Format("15:04:05"), id, u.SourceDeploymentID, paths)
}
