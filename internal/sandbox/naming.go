package sandbox

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

const (
	// DefaultNamePrefix is the prefix for auto-generated deployment names
	DefaultNamePrefix = "deployment-"

	// MaxNameLength is the maximum length for a deployment name (DNS-compatible)
	MaxNameLength = 63
)

// NamePattern is the regex pattern for valid deployment names.
// Must be DNS-compatible: lowercase alphanumeric, hyphens allowed (but not
// at start/end).
var NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateName checks if a deployment name is valid according to DNS naming
// rules. The name doubles as a Redis namespace, so the rules are strict.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("deployment name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("deployment name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid deployment name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}

// GenerateDefaultName generates the next available deployment-N name.
// It queries Docker for all existing comb containers and finds the highest N.
func GenerateDefaultName(ctx context.Context, cli *client.Client) (string, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", LabelProject))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}

	highestN := 0
	for _, c := range containers {
		deploymentName := c.Labels[LabelDeploymentName]
		if strings.HasPrefix(deploymentName, DefaultNamePrefix) {
			numStr := strings.TrimPrefix(deploymentName, DefaultNamePrefix)
			if n, err := strconv.Atoi(numStr); err == nil && n > highestN {
				highestN = n
			}
		}
	}

	return fmt.Sprintf("%s%d", DefaultNamePrefix, highestN+1), nil
}

// CheckNameCollision checks if a deployment with the given name already
// exists. Returns true if a collision exists (name is in use).
func CheckNameCollision(ctx context.Context, cli *client.Client, deploymentName string) (bool, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=%s", LabelDeploymentName, deploymentName))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check for name collision: %w", err)
	}

	return len(containers) > 0, nil
}
