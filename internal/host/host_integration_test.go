//go:build integration

package host

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hivelab/comb/internal/config"
	"github.com/hivelab/comb/pkg/bridge"
	"github.com/hivelab/comb/pkg/mailbox"
	"github.com/hivelab/comb/pkg/manifest"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) (*redis.Options, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	opts := &redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())}

	cleanup := func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}

	return opts, cleanup
}

// TestConnectionResolutionOverRealRedis runs the full cross-deployment flow
// against a real Redis server: a source deployment announces a shared state
// change, and a connected deployment's host resolves it into a connection
// value for its target element.
func TestConnectionResolutionOverRealRedis(t *testing.T) {
	opts, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Source deployment: student-hub with a campus calendar
	sourceCfg := &config.CombConfig{
		Version:    "1.0",
		Deployment: config.DeploymentConfig{Name: "student-hub"},
		Elements: map[string]config.ElementConfig{
			"calendar": {Element: "event-list"},
		},
	}
	sourceBox, err := mailbox.NewClient(opts, "student-hub")
	require.NoError(t, err)
	defer sourceBox.Close()

	sourceSrv := NewServer(sourceCfg, manifest.Default(), sourceBox, opts)
	require.NoError(t, sourceSrv.Start(ctx))
	defer sourceSrv.Stop()

	// Target deployment: spring-fair pulling calendar events
	enabled := true
	targetCfg := &config.CombConfig{
		Version:    "1.0",
		Deployment: config.DeploymentConfig{Name: "spring-fair"},
		Elements: map[string]config.ElementConfig{
			"fair-events": {Element: "event-list"},
		},
		Connections: []config.ConnectionConfig{
			{
				SourceDeployment: "student-hub",
				Enabled:          &enabled,
				Targets: []config.ConnectionTarget{
					{
						Element:       "fair-events",
						Input:         "events",
						SourceElement: "calendar",
						SourcePath:    "events",
					},
				},
			},
		},
	}
	targetBox, err := mailbox.NewClient(opts, "spring-fair")
	require.NoError(t, err)
	defer targetBox.Close()

	targetSrv := NewServer(targetCfg, manifest.Default(), targetBox, opts)
	require.NoError(t, targetSrv.Start(ctx))
	defer targetSrv.Stop()

	// Source guest writes shared state, which announces on the mailbox
	guestEnd, hostEnd := bridge.NewPipe()
	_, err = sourceSrv.Attach(ctx, "calendar", "organizer", hostEnd)
	require.NoError(t, err)

	sdk, err := bridge.New(bridge.Config{InstanceID: "calendar", Transport: guestEnd})
	require.NoError(t, err)
	defer sdk.Close()

	require.NoError(t, sdk.SetState(ctx, &bridge.StateUpdates{
		Shared: map[string]any{"events": []any{"opening ceremony", "closing party"}},
	}))

	// The target host should resolve the connection into the source mailbox
	require.Eventually(t, func() bool {
		v, err := sourceBox.Value(ctx, "fair-events", "events")
		return err == nil && v != nil
	}, 10*time.Second, 100*time.Millisecond)

	v, err := sourceBox.Value(ctx, "fair-events", "events")
	require.NoError(t, err)
	assert.Equal(t, "student-hub", v.SourceDeploymentID)
	assert.JSONEq(t, `["opening ceremony", "closing party"]`, string(v.Value))
}

// TestMailboxCapOverRealRedis verifies the retention cap holds on a real
// Redis server, not just miniredis.
func TestMailboxCapOverRealRedis(t *testing.T) {
	opts, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()

	box, err := mailbox.NewClient(opts, "cap-check")
	require.NoError(t, err)
	defer box.Close()

	base := time.Now().UnixMilli()
	for i := 0; i < mailbox.MaxMailboxUpdates+5; i++ {
		u, err := mailbox.NewUpdate("cap-check", []string{"shared.x"}, base+int64(i))
		require.NoError(t, err)
		require.NoError(t, box.PublishUpdate(ctx, u))
	}

	updates, err := box.Updates(ctx)
	require.NoError(t, err)
	assert.Len(t, updates, mailbox.MaxMailboxUpdates)

	// Newest retained, oldest evicted
	assert.Equal(t, base+int64(mailbox.MaxMailboxUpdates+4), updates[0].TimestampMs)
}
