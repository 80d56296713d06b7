package sandbox

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/hivelab/comb/internal/config"
)

// Default images. The drone image can be overridden in comb.yml.
const (
	DefaultRedisImage = "redis:7-alpine"
	DefaultHivedImage = "comb-hived:latest"
	DefaultDroneImage = "comb-drone:latest"
)

// HivedPort is the port the daemon listens on inside the deployment network.
const HivedPort = 8090

// CreateOptions carries everything CreateDeployment needs beyond the config.
type CreateOptions struct {
	DeploymentName string
	RunID          string
	ConfigDir      string
	RedisPort      int
}

// CreateDeployment creates the network and containers for one deployment:
// Redis, the hived daemon, and one drone per element instance. On error the
// caller is expected to run RemoveDeployment to roll back partial state.
func CreateDeployment(ctx context.Context, cli *client.Client, cfg *config.CombConfig, opts CreateOptions) error {
	networkName := NetworkName(opts.DeploymentName)
	networkLabels := BuildLabels(opts.DeploymentName, opts.RunID, opts.ConfigDir, "")

	_, err := cli.NetworkCreate(ctx, networkName, types.NetworkCreate{
		Driver: "bridge",
		Labels: networkLabels,
	})
	if err != nil {
		return fmt.Errorf("failed to create network '%s': %w", networkName, err)
	}

	// Redis backs the deployment's mailbox and instance state.
	redisName := RedisContainerName(opts.DeploymentName)
	redisLabels := BuildLabels(opts.DeploymentName, opts.RunID, opts.ConfigDir, ComponentRedis)
	redisLabels[LabelRedisPort] = fmt.Sprintf("%d", opts.RedisPort)

	redisResp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  DefaultRedisImage,
		Labels: redisLabels,
		ExposedPorts: nat.PortSet{
			"6379/tcp": struct{}{},
		},
	}, &container.HostConfig{
		NetworkMode: container.NetworkMode(networkName),
		PortBindings: nat.PortMap{
			"6379/tcp": []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: fmt.Sprintf("%d", opts.RedisPort),
				},
			},
		},
	}, nil, nil, redisName)
	if err != nil {
		return fmt.Errorf("failed to create Redis container: %w", err)
	}
	if err := cli.ContainerStart(ctx, redisResp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start Redis container: %w", err)
	}

	// The daemon reaches Redis by container name over the bridge network.
	redisURL := fmt.Sprintf("redis://%s:6379", redisName)

	hivedName := HivedContainerName(opts.DeploymentName)
	hivedLabels := BuildLabels(opts.DeploymentName, opts.RunID, opts.ConfigDir, ComponentHived)

	hivedResp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  DefaultHivedImage,
		Labels: hivedLabels,
		Env: []string{
			fmt.Sprintf("COMB_DEPLOYMENT_NAME=%s", opts.DeploymentName),
			fmt.Sprintf("REDIS_URL=%s", redisURL),
			fmt.Sprintf("HIVED_LISTEN_ADDR=:%d", HivedPort),
		},
	}, &container.HostConfig{
		NetworkMode: container.NetworkMode(networkName),
		Binds: []string{
			fmt.Sprintf("%s:/deployment:ro", opts.ConfigDir),
		},
	}, nil, nil, hivedName)
	if err != nil {
		return fmt.Errorf("failed to create hived container: %w", err)
	}
	if err := cli.ContainerStart(ctx, hivedResp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start hived container: %w", err)
	}

	droneImage := DefaultDroneImage
	if cfg.Sandbox != nil && cfg.Sandbox.Image != "" {
		droneImage = cfg.Sandbox.Image
	}
	hivedURL := fmt.Sprintf("ws://%s:%d/attach", hivedName, HivedPort)

	for instanceName, el := range cfg.Elements {
		droneName := DroneContainerName(opts.DeploymentName, instanceName)
		droneLabels := BuildLabels(opts.DeploymentName, opts.RunID, opts.ConfigDir, ComponentDrone)
		droneLabels[LabelElementName] = instanceName
		droneLabels[LabelElementID] = el.Element

		droneResp, err := cli.ContainerCreate(ctx, &container.Config{
			Image:  droneImage,
			Labels: droneLabels,
			Env: []string{
				fmt.Sprintf("COMB_DEPLOYMENT_NAME=%s", opts.DeploymentName),
				fmt.Sprintf("COMB_INSTANCE_NAME=%s", instanceName),
				fmt.Sprintf("COMB_ELEMENT_ID=%s", el.Element),
				fmt.Sprintf("HIVED_URL=%s", hivedURL),
			},
		}, &container.HostConfig{
			NetworkMode: container.NetworkMode(networkName),
		}, nil, nil, droneName)
		if err != nil {
			return fmt.Errorf("failed to create drone container for '%s': %w", instanceName, err)
		}
		if err := cli.ContainerStart(ctx, droneResp.ID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start drone container for '%s': %w", instanceName, err)
		}
	}

	return nil
}

// RemoveDeployment stops and removes every container and the network
// belonging to a deployment. Used by `comb down` and by rollback after a
// partial create. Errors on individual resources are reported but do not
// stop the sweep.
func RemoveDeployment(ctx context.Context, cli *client.Client, deploymentName string, report func(format string, args ...any)) error {
	if report == nil {
		report = func(string, ...any) {}
	}
	timeout := 10

	containers, err := DeploymentContainers(ctx, cli, deploymentName)
	if err != nil {
		return err
	}

	for _, c := range containers {
		name := c.ID[:12]
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		report("  Stopping %s...", name)
		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})

		report("  Removing %s...", name)
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			report("  Warning: failed to remove %s: %v", name, err)
		}
	}

	networks, err := cli.NetworkList(ctx, types.NetworkListOptions{
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%s", LabelDeploymentName, deploymentName)),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}

	for _, net := range networks {
		report("  Removing network %s...", net.Name)
		if err := cli.NetworkRemove(ctx, net.ID); err != nil {
			report("  Warning: failed to remove network %s: %v", net.Name, err)
		}
	}

	return nil
}
