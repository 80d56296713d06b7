package updates

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelab/comb/pkg/mailbox"
)

func TestGetUpdate(t *testing.T) {
	box := setupTestMailbox(t)
	u := publishAt(t, box, "spring-fair", []string{"shared.votes"}, time.Now().UnixMilli())

	var buf bytes.Buffer
	err := GetUpdate(context.Background(), box, u.ID, &buf)
	require.NoError(t, err)

	var got mailbox.ConnectionUpdate
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "spring-fair", got.SourceDeploymentID)
	assert.Equal(t, []string{"shared.votes"}, got.ChangedPaths)
}

func TestGetUpdate_InvalidID(t *testing.T) {
	box := setupTestMailbox(t)

	var buf bytes.Buffer
	err := GetUpdate(context.Background(), box, "not-a-uuid", &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid update ID format")
}

func TestGetUpdate_NotFound(t *testing.T) {
	box := setupTestMailbox(t)
	publishAt(t, box, "spring-fair", []string{"shared.votes"}, time.Now().UnixMilli())

	var buf bytes.Buffer
	err := GetUpdate(context.Background(), box, "00000000-0000-0000-0000-000000000000", &buf)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "not found")
}
