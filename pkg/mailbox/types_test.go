package mailbox

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionUpdateValidate(t *testing.T) {
	valid := func() *ConnectionUpdate {
		return &ConnectionUpdate{
			ID:                 uuid.New().String(),
			SourceDeploymentID: "fair",
			ChangedPaths:       []string{"shared.votes"},
			TimestampMs:        1234,
		}
	}

	t.Run("valid update passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("wildcard path is valid", func(t *testing.T) {
		u := valid()
		u.ChangedPaths = []string{"*"}
		assert.NoError(t, u.Validate())
	})

	tests := []struct {
		name    string
		mutate  func(*ConnectionUpdate)
		wantErr string
	}{
		{"non-UUID id", func(u *ConnectionUpdate) { u.ID = "not-a-uuid" }, "invalid update ID"},
		{"empty source", func(u *ConnectionUpdate) { u.SourceDeploymentID = "" }, "source deployment ID cannot be empty"},
		{"no paths", func(u *ConnectionUpdate) { u.ChangedPaths = nil }, "changed paths cannot be empty"},
		{"empty path entry", func(u *ConnectionUpdate) { u.ChangedPaths = []string{"shared.votes", ""} }, "changed path at index 1"},
		{"zero timestamp", func(u *ConnectionUpdate) { u.TimestampMs = 0 }, "timestamp must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := valid()
			tt.mutate(u)
			err := u.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConnectionValueValidate(t *testing.T) {
	valid := func() *ConnectionValue {
		return &ConnectionValue{
			ElementID:          "event-list",
			InputPath:          "events",
			Value:              json.RawMessage(`[]`),
			SourceDeploymentID: "fair",
			ResolvedAtMs:       1234,
		}
	}

	t.Run("valid value passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("JSON null is an acceptable value", func(t *testing.T) {
		v := valid()
		v.Value = json.RawMessage(`null`)
		assert.NoError(t, v.Validate())
	})

	tests := []struct {
		name    string
		mutate  func(*ConnectionValue)
		wantErr string
	}{
		{"empty element", func(v *ConnectionValue) { v.ElementID = "" }, "element ID cannot be empty"},
		{"empty input path", func(v *ConnectionValue) { v.InputPath = "" }, "input path cannot be empty"},
		{"empty value", func(v *ConnectionValue) { v.Value = nil }, "value cannot be empty"},
		{"empty source", func(v *ConnectionValue) { v.SourceDeploymentID = "" }, "source deployment ID cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := valid()
			tt.mutate(v)
			err := v.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewUpdate(t *testing.T) {
	t.Run("assigns a fresh UUID", func(t *testing.T) {
		u, err := NewUpdate("fair", []string{"*"}, 1234)
		require.NoError(t, err)
		_, err = uuid.Parse(u.ID)
		assert.NoError(t, err)
	})

	t.Run("validates inputs", func(t *testing.T) {
		_, err := NewUpdate("fair", nil, 1234)
		assert.Error(t, err)
	})
}

func TestInstanceStateValidate(t *testing.T) {
	t.Run("valid state passes", func(t *testing.T) {
		s := &InstanceState{InstanceID: "i1", ElementID: "poll-element"}
		assert.NoError(t, s.Validate())
	})

	t.Run("missing fields fail", func(t *testing.T) {
		assert.Error(t, (&InstanceState{ElementID: "poll-element"}).Validate())
		assert.Error(t, (&InstanceState{InstanceID: "i1"}).Validate())
	})
}
