package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-deployment")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func testUpdate(ts int64) *ConnectionUpdate {
	return &ConnectionUpdate{
		ID:                 uuid.New().String(),
		SourceDeploymentID: "test-deployment",
		ChangedPaths:       []string{"shared.votes"},
		TimestampMs:        ts,
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-deployment", client.DeploymentName())
	})

	t.Run("rejects empty deployment name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "deployment name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestPublishUpdate(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("publishes valid update", func(t *testing.T) {
		u := testUpdate(1000)
		err := client.PublishUpdate(ctx, u)
		assert.NoError(t, err)

		latest, err := client.LatestUpdate(ctx)
		require.NoError(t, err)
		assert.Equal(t, u.ID, latest.ID)
		assert.Equal(t, []string{"shared.votes"}, latest.ChangedPaths)
	})

	t.Run("rejects invalid update", func(t *testing.T) {
		u := testUpdate(1000)
		u.ChangedPaths = nil
		err := client.PublishUpdate(ctx, u)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid update")
	})

	t.Run("newest update wins LatestUpdate", func(t *testing.T) {
		older := testUpdate(2000)
		newer := testUpdate(3000)
		require.NoError(t, client.PublishUpdate(ctx, newer))
		require.NoError(t, client.PublishUpdate(ctx, older))

		latest, err := client.LatestUpdate(ctx)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, latest.ID)
	})
}

func TestMailboxCap(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	// Publish more than the window holds.
	total := MaxMailboxUpdates + 5
	var last *ConnectionUpdate
	for i := 0; i < total; i++ {
		u := testUpdate(int64(1000 + i))
		require.NoError(t, client.PublishUpdate(ctx, u))
		last = u
	}

	updates, err := client.Updates(ctx)
	require.NoError(t, err)
	assert.Len(t, updates, MaxMailboxUpdates)

	// Newest first, and the oldest five were evicted.
	assert.Equal(t, last.ID, updates[0].ID)
	for _, u := range updates {
		assert.GreaterOrEqual(t, u.TimestampMs, int64(1005))
	}
}

func TestLatestUpdateEmpty(t *testing.T) {
	client, _ := setupTestClient(t)

	_, err := client.LatestUpdate(context.Background())
	assert.True(t, IsNotFound(err))
}

func TestValues(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	value := func(elementID, inputPath, raw string) *ConnectionValue {
		return &ConnectionValue{
			ElementID:          elementID,
			InputPath:          inputPath,
			Value:              json.RawMessage(raw),
			SourceDeploymentID: "other-deployment",
			ResolvedAtMs:       time.Now().UnixMilli(),
		}
	}

	t.Run("put and get one value", func(t *testing.T) {
		require.NoError(t, client.PutValues(ctx, value("event-list", "events", `[{"title":"Quiz night"}]`)))

		v, err := client.Value(ctx, "event-list", "events")
		require.NoError(t, err)
		assert.Equal(t, "event-list", v.ElementID)
		assert.JSONEq(t, `[{"title":"Quiz night"}]`, string(v.Value))
	})

	t.Run("overwrite replaces previous value", func(t *testing.T) {
		require.NoError(t, client.PutValues(ctx, value("event-list", "events", `[]`)))

		v, err := client.Value(ctx, "event-list", "events")
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(v.Value))
	})

	t.Run("missing value reports not found", func(t *testing.T) {
		_, err := client.Value(ctx, "event-list", "limit")
		assert.True(t, IsNotFound(err))
	})

	t.Run("Values returns every field", func(t *testing.T) {
		require.NoError(t, client.PutValues(ctx,
			value("leaderboard", "scores", `{"ada":10}`),
			value("member-directory", "members", `[]`),
		))

		values, err := client.Values(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(values), 3)
	})

	t.Run("rejects invalid value", func(t *testing.T) {
		bad := value("", "events", `[]`)
		err := client.PutValues(ctx, bad)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid value")
	})

	t.Run("ClearValues removes everything", func(t *testing.T) {
		require.NoError(t, client.ClearValues(ctx))

		values, err := client.Values(ctx)
		require.NoError(t, err)
		assert.Empty(t, values)
	})
}

func TestInstanceState(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	state := &InstanceState{
		InstanceID: "inst-" + uuid.New().String(),
		ElementID:  "poll-element",
		Shared:     map[string]any{"results": map[string]any{"a": float64(3)}},
		Personal:   map[string]map[string]any{"user-1": {"myVote": "a"}},
		Seq:        7,
	}

	t.Run("save and load round trip", func(t *testing.T) {
		require.NoError(t, client.SaveInstanceState(ctx, state))

		loaded, err := client.GetInstanceState(ctx, state.InstanceID)
		require.NoError(t, err)
		assert.Equal(t, state.InstanceID, loaded.InstanceID)
		assert.Equal(t, state.ElementID, loaded.ElementID)
		assert.Equal(t, uint64(7), loaded.Seq)
		assert.Equal(t, "a", loaded.Personal["user-1"]["myVote"])
	})

	t.Run("exists", func(t *testing.T) {
		exists, err := client.InstanceExists(ctx, state.InstanceID)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = client.InstanceExists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("missing instance reports not found", func(t *testing.T) {
		_, err := client.GetInstanceState(ctx, "missing")
		assert.True(t, IsNotFound(err))
	})

	t.Run("rejects invalid state", func(t *testing.T) {
		err := client.SaveInstanceState(ctx, &InstanceState{InstanceID: "x"})
		assert.Error(t, err)
	})
}

func TestSubscribeUpdates(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.SubscribeUpdates(ctx)
	require.NoError(t, err)
	defer sub.Close()

	// Give the subscription a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	u := testUpdate(time.Now().UnixMilli())
	require.NoError(t, client.PublishUpdate(ctx, u))

	select {
	case got := <-sub.Events():
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, u.SourceDeploymentID, got.SourceDeploymentID)
	case err := <-sub.Errors():
		t.Fatalf("unexpected subscription error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for announcement")
	}
}

func TestSubscribeUpdatesSkipsMalformed(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.SubscribeUpdates(ctx)
	require.NoError(t, err)
	defer sub.Close()

	time.Sleep(50 * time.Millisecond)

	// Raw garbage on the announce channel surfaces as an error, then a valid
	// announcement still comes through.
	mr.Publish(AnnounceChannel("test-deployment"), "not json")

	select {
	case err := <-sub.Errors():
		assert.Contains(t, err.Error(), "failed to unmarshal")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
	}

	u := testUpdate(time.Now().UnixMilli())
	require.NoError(t, client.PublishUpdate(ctx, u))

	select {
	case got := <-sub.Events():
		assert.Equal(t, u.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for announcement after error")
	}
}

func TestSubscriptionClose(t *testing.T) {
	client, _ := setupTestClient(t)

	sub, err := client.SubscribeUpdates(context.Background())
	require.NoError(t, err)

	// Close twice is safe.
	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	// Events channel drains and closes.
	for range sub.Events() {
	}
}

func TestKeyNamespacing(t *testing.T) {
	assert.Equal(t, "comb:fair:updates", UpdatesKey("fair"))
	assert.Equal(t, "comb:fair:values", ValuesKey("fair"))
	assert.Equal(t, "comb:fair:instance:i1", InstanceKey("fair", "i1"))
	assert.Equal(t, "comb:fair:announce", AnnounceChannel("fair"))
	assert.Equal(t, "poll-element:results", ValueField("poll-element", "results"))
}

func TestDeploymentIsolation(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	a, err := NewClient(&redis.Options{Addr: mr.Addr()}, "dep-a")
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	b, err := NewClient(&redis.Options{Addr: mr.Addr()}, "dep-b")
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		u := testUpdate(int64(1000 + i))
		u.SourceDeploymentID = fmt.Sprintf("dep-a-%d", i)
		require.NoError(t, a.PublishUpdate(ctx, u))
	}

	updates, err := b.Updates(ctx)
	require.NoError(t, err)
	assert.Empty(t, updates)
}
