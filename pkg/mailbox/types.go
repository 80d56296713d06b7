// Package mailbox provides type-safe Go definitions and Redis schema patterns
// for the per-deployment connection mailbox. The mailbox is the shared channel
// through which connected deployments announce state changes and exchange
// resolved connection values.
//
// All Redis keys and channels are namespaced by deployment name so that many
// deployments can safely coexist on a single Redis server.
package mailbox

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ConnectionUpdate announces that a deployment's shared state changed in a way
// that can affect connected elements. Updates are small signals, not payloads:
// consumers react by re-resolving the values they care about.
type ConnectionUpdate struct {
	ID                 string   `json:"id"`                   // UUID - unique identifier for this update
	SourceDeploymentID string   `json:"source_deployment_id"` // Deployment whose state changed
	ChangedPaths       []string `json:"changed_paths"`        // Dotted state paths, or ["*"] for everything
	TimestampMs        int64    `json:"timestamp_ms"`         // Unix timestamp in milliseconds
}

// ConnectionValue is a resolved value for one connected input of one element.
// Values are written by the host after re-resolution and read by subscribers.
type ConnectionValue struct {
	ElementID          string          `json:"element_id"`           // Target element identifier
	InputPath          string          `json:"input_path"`           // Input the value feeds
	Value              json.RawMessage `json:"value"`                // Resolved value, JSON-encoded
	SourceDeploymentID string          `json:"source_deployment_id"` // Deployment the value came from
	ResolvedAtMs       int64           `json:"resolved_at_ms"`       // Unix timestamp in milliseconds
}

// InstanceState is the host-side record of one element instance's state.
// Shared state is visible to every viewer; personal state is keyed by user ID.
// Seq increments on every accepted write and orders state pushes to guests.
type InstanceState struct {
	InstanceID  string                    `json:"instance_id"`
	ElementID   string                    `json:"element_id"`
	Shared      map[string]any            `json:"shared"`
	Personal    map[string]map[string]any `json:"personal"`
	Seq         uint64                    `json:"seq"`
	UpdatedAtMs int64                     `json:"updated_at_ms"`
}

// Validate checks that the update is well-formed.
// Returns a descriptive error for the first problem found.
func (u *ConnectionUpdate) Validate() error {
	if _, err := uuid.Parse(u.ID); err != nil {
		return fmt.Errorf("invalid update ID (must be UUID): %w", err)
	}
	if u.SourceDeploymentID == "" {
		return fmt.Errorf("source deployment ID cannot be empty")
	}
	if len(u.ChangedPaths) == 0 {
		return fmt.Errorf("changed paths cannot be empty")
	}
	for i, p := range u.ChangedPaths {
		if p == "" {
			return fmt.Errorf("changed path at index %d is empty", i)
		}
	}
	if u.TimestampMs <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	return nil
}

// Validate checks that the value is well-formed.
func (v *ConnectionValue) Validate() error {
	if v.ElementID == "" {
		return fmt.Errorf("element ID cannot be empty")
	}
	if v.InputPath == "" {
		return fmt.Errorf("input path cannot be empty")
	}
	if len(v.Value) == 0 {
		return fmt.Errorf("value cannot be empty (use JSON null for absent values)")
	}
	if v.SourceDeploymentID == "" {
		return fmt.Errorf("source deployment ID cannot be empty")
	}
	return nil
}

// Validate checks that the instance state record is well-formed.
func (s *InstanceState) Validate() error {
	if s.InstanceID == "" {
		return fmt.Errorf("instance ID cannot be empty")
	}
	if s.ElementID == "" {
		return fmt.Errorf("element ID cannot be empty")
	}
	return nil
}

// NewUpdate constructs a validated update with a fresh UUID.
func NewUpdate(sourceDeploymentID string, changedPaths []string, timestampMs int64) (*ConnectionUpdate, error) {
	u := &ConnectionUpdate{
		ID:                 uuid.New().String(),
		SourceDeploymentID: sourceDeploymentID,
		ChangedPaths:       changedPaths,
		TimestampMs:        timestampMs,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}
