package sandbox

import (
	"fmt"
	"os"
)

// GetRedisHost returns the appropriate Redis hostname for the current
// environment. Inside a container it returns "host.docker.internal" to reach
// the host's published ports; otherwise "localhost".
func GetRedisHost() string {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "host.docker.internal"
	}
	return "localhost"
}

// GetRedisURL constructs the full Redis URL for a given port.
func GetRedisURL(port int) string {
	return fmt.Sprintf("redis://%s:%d", GetRedisHost(), port)
}
