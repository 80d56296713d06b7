package sandbox

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

const (
	// Port range for Redis containers (allows 100 concurrent deployments)
	startPort = 6379
	endPort   = 6478
)

// FindNextAvailablePort finds the next available port for Redis, starting
// from 6379. Returns an error if all ports in range are exhausted.
// Checks both Docker container labels and actual port bindability on the host.
func FindNextAvailablePort(ctx context.Context, cli *client.Client) (int, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", LabelProject))
	filter.Add("label", fmt.Sprintf("%s=%s", LabelComponent, ComponentRedis))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query Docker containers: %w", err)
	}

	usedPorts := make(map[int]bool)
	for _, c := range containers {
		if portStr, ok := c.Labels[LabelRedisPort]; ok {
			if port, err := strconv.Atoi(portStr); err == nil {
				usedPorts[port] = true
			}
		}
	}

	for port := startPort; port <= endPort; port++ {
		if usedPorts[port] {
			continue
		}
		if isPortBindable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available Redis ports (range %d-%d exhausted)", startPort, endPort)
}

// isPortBindable checks if a port can be bound on localhost.
func isPortBindable(port int) bool {
	addr := fmt.Sprintf("localhost:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
