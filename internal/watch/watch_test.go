package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivelab/comb/pkg/mailbox"
)

// syncBuffer wraps bytes.Buffer for concurrent use by the stream goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStreamUpdates(t *testing.T) {
	mr := miniredis.RunT(t)

	box, err := mailbox.NewClient(&redis.Options{Addr: mr.Addr()}, "spring-fair")
	require.NoError(t, err)
	defer box.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- StreamUpdates(ctx, box, OutputFormatDefault, &buf)
	}()

	// Let the subscription establish before publishing
	time.Sleep(100 * time.Millisecond)

	u, err := mailbox.NewUpdate("spring-fair", []string{"shared.votes"}, time.Now().UnixMilli())
	require.NoError(t, err)
	require.NoError(t, box.PublishUpdate(ctx, u))

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "shared.votes")
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	out := buf.String()
	assert.Contains(t, out, "Watching deployment 'spring-fair'")
	assert.Contains(t, out, u.ID[:8])
}

func TestStreamUpdates_JSON(t *testing.T) {
	mr := miniredis.RunT(t)

	box, err := mailbox.NewClient(&redis.Options{Addr: mr.Addr()}, "spring-fair")
	require.NoError(t, err)
	defer box.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- StreamUpdates(ctx, box, OutputFormatJSON, &buf)
	}()

	time.Sleep(100 * time.Millisecond)

	u, err := mailbox.NewUpdate("spring-fair", []string{"shared.events"}, time.Now().UnixMilli())
	require.NoError(t, err)
	require.NoError(t, box.PublishUpdate(ctx, u))

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), u.ID)
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	line := strings.TrimSpace(strings.Split(buf.String(), "\n")[0])
	var got mailbox.ConnectionUpdate
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, u.ID, got.ID)
}

func TestFormatUpdateLine(t *testing.T) {
	u := &mailbox.ConnectionUpdate{
		ID:                 "0c7f9d4e-1111-2222-3333-444455556666",
		SourceDeploymentID: "student-hub",
		ChangedPaths:       []string{"shared.calendar"},
		TimestampMs:        time.Date(2026, 8, 31, 14, 3, 22, 0, time.Local).UnixMilli(),
	}

	line := FormatUpdateLine(u)
	assert.Contains(t, line, "14:03:22")
	assert.Contains(t, line, "0c7f9d4e")
	assert.Contains(t, line, "from student-hub")
	assert.Contains(t, line, "shared.calendar")

	u.ChangedPaths = []string{"*"}
	assert.Contains(t, FormatUpdateLine(u), "* (full resync)")
}
