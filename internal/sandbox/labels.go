package sandbox

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys used for comb resources
const (
	LabelProject        = "comb.project"
	LabelDeploymentName = "comb.deployment.name"
	LabelDeploymentRun  = "comb.deployment.run_id"
	LabelConfigDir      = "comb.config.dir"
	LabelComponent      = "comb.component"
	LabelRedisPort      = "comb.redis.port"
	LabelElementName    = "comb.element.instance"
	LabelElementID      = "comb.element.id"
)

// Component label values
const (
	ComponentRedis = "redis"
	ComponentHived = "hived"
	ComponentDrone = "drone"
)

// BuildLabels creates the standard label set for all comb resources.
// All parameters are required except component (which is resource-specific).
func BuildLabels(deploymentName, runID, configDir, component string) map[string]string {
	labels := map[string]string{
		LabelProject:        "true",
		LabelDeploymentName: deploymentName,
		LabelDeploymentRun:  runID,
		LabelConfigDir:      configDir,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for a deployment run.
// Each invocation of `comb up` gets a unique run ID.
func GenerateRunID() string {
	return uuid.New().String()
}

// Resource naming conventions for comb components

// NetworkName returns the Docker network name for a deployment
func NetworkName(deploymentName string) string {
	return fmt.Sprintf("comb-network-%s", deploymentName)
}

// RedisContainerName returns the Redis container name for a deployment
func RedisContainerName(deploymentName string) string {
	return fmt.Sprintf("comb-redis-%s", deploymentName)
}

// HivedContainerName returns the host daemon container name for a deployment
func HivedContainerName(deploymentName string) string {
	return fmt.Sprintf("comb-hived-%s", deploymentName)
}

// DroneContainerName returns the guest container name for one element instance
func DroneContainerName(deploymentName, elementInstance string) string {
	return fmt.Sprintf("comb-drone-%s-%s", deploymentName, elementInstance)
}
