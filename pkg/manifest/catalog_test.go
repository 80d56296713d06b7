package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	r := Default()

	t.Run("builds without panicking and is non-empty", func(t *testing.T) {
		assert.NotEmpty(t, r.All())
	})

	t.Run("every manifest passes its own validation", func(t *testing.T) {
		for _, m := range r.All() {
			assert.NoError(t, m.Validate(), "element %q", m.ElementID)
		}
	})

	t.Run("context-free elements are universal", func(t *testing.T) {
		for _, m := range r.All() {
			if m.ConnectionRequirements == nil {
				assert.Equal(t, TierUniversal, m.Tier, "element %q", m.ElementID)
			}
		}
	})

	t.Run("every alias round-trips to its canonical manifest", func(t *testing.T) {
		for _, m := range r.All() {
			for _, alias := range m.Aliases {
				assert.Same(t, m, r.Get(alias), "alias %q of %q", alias, m.ElementID)
			}
		}
	})

	t.Run("declared actions are unique per element", func(t *testing.T) {
		for _, m := range r.All() {
			seen := make(map[string]bool)
			for _, action := range m.ExecuteActions {
				assert.False(t, seen[action], "element %q repeats action %q", m.ElementID, action)
				seen[action] = true
			}
		}
	})

	t.Run("poll element keeps its authoring contract", func(t *testing.T) {
		m := r.Get("poll-element")
		require.NotNil(t, m)
		assert.Contains(t, m.RequiredConfig, "question")
		assert.Contains(t, m.RequiredConfig, "options")
		assert.Nil(t, m.RequiredConfig["question"].Default)
		assert.Nil(t, m.RequiredConfig["options"].Default)
	})
}
