package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceStateToHash(t *testing.T) {
	t.Run("encodes maps as JSON fields", func(t *testing.T) {
		s := &InstanceState{
			InstanceID:  "i1",
			ElementID:   "poll-element",
			Shared:      map[string]any{"question": "Pizza night?"},
			Personal:    map[string]map[string]any{"user-1": {"myVote": "yes"}},
			Seq:         3,
			UpdatedAtMs: 9999,
		}

		hash, err := InstanceStateToHash(s)
		require.NoError(t, err)
		assert.Equal(t, "i1", hash["instance_id"])
		assert.Equal(t, "poll-element", hash["element_id"])
		assert.Equal(t, "3", hash["seq"])
		assert.JSONEq(t, `{"question":"Pizza night?"}`, hash["shared"].(string))
		assert.JSONEq(t, `{"user-1":{"myVote":"yes"}}`, hash["personal"].(string))
	})

	t.Run("nil maps encode as empty objects", func(t *testing.T) {
		s := &InstanceState{InstanceID: "i1", ElementID: "poll-element"}

		hash, err := InstanceStateToHash(s)
		require.NoError(t, err)
		assert.Equal(t, "{}", hash["shared"])
		assert.Equal(t, "{}", hash["personal"])
	})
}

func TestHashToInstanceState(t *testing.T) {
	t.Run("round trips", func(t *testing.T) {
		original := &InstanceState{
			InstanceID:  "i1",
			ElementID:   "leaderboard",
			Shared:      map[string]any{"scores": map[string]any{"ada": float64(10)}},
			Personal:    map[string]map[string]any{},
			Seq:         42,
			UpdatedAtMs: 5555,
		}

		hash, err := InstanceStateToHash(original)
		require.NoError(t, err)

		// HSet stores everything as strings; simulate the read-back shape.
		stringHash := map[string]string{
			"instance_id":   hash["instance_id"].(string),
			"element_id":    hash["element_id"].(string),
			"shared":        hash["shared"].(string),
			"personal":      hash["personal"].(string),
			"seq":           hash["seq"].(string),
			"updated_at_ms": "5555",
		}

		loaded, err := HashToInstanceState(stringHash)
		require.NoError(t, err)
		assert.Equal(t, original.InstanceID, loaded.InstanceID)
		assert.Equal(t, original.Seq, loaded.Seq)
		assert.Equal(t, original.UpdatedAtMs, loaded.UpdatedAtMs)
		assert.Equal(t, float64(10), loaded.Shared["scores"].(map[string]any)["ada"])
	})

	t.Run("rejects malformed seq", func(t *testing.T) {
		_, err := HashToInstanceState(map[string]string{"seq": "not-a-number"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid seq field")
	})

	t.Run("empty JSON fields default to empty maps", func(t *testing.T) {
		loaded, err := HashToInstanceState(map[string]string{
			"instance_id": "i1",
			"element_id":  "poll-element",
			"seq":         "0",
		})
		require.NoError(t, err)
		assert.NotNil(t, loaded.Shared)
		assert.NotNil(t, loaded.Personal)
	})
}
