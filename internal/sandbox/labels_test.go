package sandbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBuildLabels(t *testing.T) {
	runID := "test-run-123"
	deploymentName := "spring-fair"
	configDir := "/home/user/fair"

	labels := BuildLabels(deploymentName, runID, configDir, ComponentRedis)

	assert.Equal(t, "true", labels[LabelProject])
	assert.Equal(t, deploymentName, labels[LabelDeploymentName])
	assert.Equal(t, runID, labels[LabelDeploymentRun])
	assert.Equal(t, configDir, labels[LabelConfigDir])
	assert.Equal(t, ComponentRedis, labels[LabelComponent])
}

func TestBuildLabels_NoComponent(t *testing.T) {
	labels := BuildLabels("spring-fair", "run-1", "/tmp", "")

	_, hasComponent := labels[LabelComponent]
	assert.False(t, hasComponent)
	assert.Len(t, labels, 4)
}

func TestGenerateRunID(t *testing.T) {
	id1 := GenerateRunID()
	id2 := GenerateRunID()

	_, err := uuid.Parse(id1)
	assert.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestResourceNames(t *testing.T) {
	assert.Equal(t, "comb-network-fair", NetworkName("fair"))
	assert.Equal(t, "comb-redis-fair", RedisContainerName("fair"))
	assert.Equal(t, "comb-hived-fair", HivedContainerName("fair"))
	assert.Equal(t, "comb-drone-fair-main-poll", DroneContainerName("fair", "main-poll"))
}
