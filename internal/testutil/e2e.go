//go:build integration

package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hivelab/comb/internal/sandbox"
	"github.com/hivelab/comb/pkg/mailbox"
)

// E2EEnvironment represents an isolated end-to-end test environment.
type E2EEnvironment struct {
	T              *testing.T
	TmpDir         string
	OriginalDir    string
	DeploymentName string
	DockerClient   *client.Client
	Mailbox        *mailbox.Client
	RedisPort      int
	Ctx            context.Context
}

// SetupE2EEnvironment creates a fully isolated test environment with a temp
// directory, a comb.yml, and a unique deployment name.
func SetupE2EEnvironment(t *testing.T, combYML string) *E2EEnvironment {
	ctx := context.Background()

	tmpDir := t.TempDir()

	combYMLPath := filepath.Join(tmpDir, "comb.yml")
	require.NoError(t, os.WriteFile(combYMLPath, []byte(combYML), 0644), "Failed to write comb.yml")

	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir), "Failed to change to test directory")

	// Microsecond suffix keeps concurrent test runs from colliding
	deploymentName := fmt.Sprintf("test-e2e-%s", time.Now().Format("20060102-150405-000000"))

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	require.NoError(t, err, "Failed to create Docker client")

	env := &E2EEnvironment{
		T:              t,
		TmpDir:         tmpDir,
		OriginalDir:    originalDir,
		DeploymentName: deploymentName,
		DockerClient:   cli,
		Ctx:            ctx,
	}

	t.Cleanup(func() {
		if env.Mailbox != nil {
			env.Mailbox.Close()
		}
		if env.DockerClient != nil {
			env.DockerClient.Close()
		}
		os.Chdir(originalDir)
	})

	return env
}

// InitializeMailboxClient connects to the deployment's mailbox via the
// Redis port published by the sandbox.
func (env *E2EEnvironment) InitializeMailboxClient() {
	var err error
	env.RedisPort, err = sandbox.GetDeploymentRedisPort(env.Ctx, env.DockerClient, env.DeploymentName)
	require.NoError(env.T, err, "Failed to get Redis port")

	redisOpts := &redis.Options{
		Addr: fmt.Sprintf("localhost:%d", env.RedisPort),
	}

	env.Mailbox, err = mailbox.NewClient(redisOpts, env.DeploymentName)
	require.NoError(env.T, err, "Failed to create mailbox client")
}

// WaitForContainer waits for a named deployment container to be running
// (up to 30 seconds).
func (env *E2EEnvironment) WaitForContainer(fullName string) {
	for i := 0; i < 30; i++ {
		containers, err := env.DockerClient.ContainerList(env.Ctx, container.ListOptions{All: true})
		if err == nil {
			for _, c := range containers {
				for _, name := range c.Names {
					if name == "/"+fullName && c.State == "running" {
						env.T.Logf("✓ Container %s is running", fullName)
						return
					}
				}
			}
		}
		time.Sleep(1 * time.Second)
	}

	require.Fail(env.T, fmt.Sprintf("Container %s did not start within 30 seconds", fullName))
}

// WaitForUpdate polls the mailbox for an update touching the given state
// path (up to 60 seconds).
func (env *E2EEnvironment) WaitForUpdate(path string) *mailbox.ConnectionUpdate {
	require.NotNil(env.T, env.Mailbox, "Mailbox client not initialized - call InitializeMailboxClient first")

	env.T.Logf("Waiting for update touching '%s'...", path)

	for i := 0; i < 60; i++ {
		updates, err := env.Mailbox.Updates(env.Ctx)
		if err == nil {
			for _, u := range updates {
				for _, p := range u.ChangedPaths {
					if p == path || p == "*" {
						return u
					}
				}
			}
		}
		time.Sleep(1 * time.Second)
	}

	require.Fail(env.T, fmt.Sprintf("No update touching '%s' appeared within 60 seconds", path))
	return nil
}

// VerifyFileExists asserts a file exists in the test temp directory.
func (env *E2EEnvironment) VerifyFileExists(filename string) {
	path := filepath.Join(env.TmpDir, filename)
	_, err := os.Stat(path)
	require.NoError(env.T, err, "Expected file %s to exist", filename)
}

// DefaultCombYML returns a minimal valid comb.yml for tests.
func DefaultCombYML() string {
	return `version: "1.0"
deployment:
  name: test-deployment
elements:
  main-poll:
    element: poll-element
    config:
      question: "Test question?"
      options: ["a", "b"]
`
}

// ConnectedCombYML returns a comb.yml with a cross-deployment connection
// enabled, for tests exercising the state sync channel.
func ConnectedCombYML(sourceDeployment string) string {
	return fmt.Sprintf(`version: "1.0"
deployment:
  name: test-deployment
elements:
  fair-events:
    element: event-list
connections:
  - source_deployment: %s
    enabled: true
    targets:
      - element: fair-events
        input: events
        source_element: campus-calendar
        source_path: events
`, sourceDeployment)
}
