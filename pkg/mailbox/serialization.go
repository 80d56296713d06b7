package mailbox

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Map-valued fields are
// JSON-encoded into single hash fields. This keeps scalar fields individually
// queryable while map fields stay flexible.

// InstanceStateToHash converts an InstanceState to Redis hash format.
// The shared and personal maps are JSON-encoded.
func InstanceStateToHash(s *InstanceState) (map[string]interface{}, error) {
	shared := s.Shared
	if shared == nil {
		shared = map[string]any{}
	}
	sharedJSON, err := json.Marshal(shared)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal shared state: %w", err)
	}

	personal := s.Personal
	if personal == nil {
		personal = map[string]map[string]any{}
	}
	personalJSON, err := json.Marshal(personal)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal personal state: %w", err)
	}

	hash := map[string]interface{}{
		"instance_id":   s.InstanceID,
		"element_id":    s.ElementID,
		"shared":        string(sharedJSON),
		"personal":      string(personalJSON),
		"seq":           strconv.FormatUint(s.Seq, 10),
		"updated_at_ms": s.UpdatedAtMs,
	}

	return hash, nil
}

// HashToInstanceState converts a Redis hash back to an InstanceState.
func HashToInstanceState(hash map[string]string) (*InstanceState, error) {
	seq, err := strconv.ParseUint(hash["seq"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid seq field: %w", err)
	}

	shared := map[string]any{}
	if sharedJSON := hash["shared"]; sharedJSON != "" {
		if err := json.Unmarshal([]byte(sharedJSON), &shared); err != nil {
			return nil, fmt.Errorf("failed to unmarshal shared state: %w", err)
		}
	}

	personal := map[string]map[string]any{}
	if personalJSON := hash["personal"]; personalJSON != "" {
		if err := json.Unmarshal([]byte(personalJSON), &personal); err != nil {
			return nil, fmt.Errorf("failed to unmarshal personal state: %w", err)
		}
	}

	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)

	return &InstanceState{
		InstanceID:  hash["instance_id"],
		ElementID:   hash["element_id"],
		Shared:      shared,
		Personal:    personal,
		Seq:         seq,
		UpdatedAtMs: updatedAtMs,
	}, nil
}
