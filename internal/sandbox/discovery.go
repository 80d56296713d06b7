package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// ListDeployments discovers every comb deployment on the Docker daemon by
// grouping labelled containers, sorted by name.
func ListDeployments(ctx context.Context, cli *client.Client) ([]DeploymentInfo, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", LabelProject))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	grouped := make(map[string][]types.Container)
	for _, c := range containers {
		name := c.Labels[LabelDeploymentName]
		if name == "" {
			continue
		}
		grouped[name] = append(grouped[name], c)
	}

	infos := make([]DeploymentInfo, 0, len(grouped))
	for name, group := range grouped {
		info := DeploymentInfo{
			Name:   name,
			Status: DetermineStatus(group),
		}
		for _, c := range group {
			if info.ConfigDir == "" {
				info.ConfigDir = c.Labels[LabelConfigDir]
			}
			switch c.Labels[LabelComponent] {
			case ComponentRedis:
				if port, err := strconv.Atoi(c.Labels[LabelRedisPort]); err == nil {
					info.RedisPort = port
				}
				info.Uptime = uptimeFrom(c.Created)
			case ComponentDrone:
				info.Elements++
			}
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// DeploymentContainers returns all containers belonging to one deployment.
func DeploymentContainers(ctx context.Context, cli *client.Client, deploymentName string) ([]types.Container, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=%s", LabelDeploymentName, deploymentName))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return containers, nil
}

// GetDeploymentRedisPort retrieves the Redis port for the given deployment
// from Docker labels. Returns an error if the Redis container is not found
// or the port label is missing.
func GetDeploymentRedisPort(ctx context.Context, cli *client.Client, deploymentName string) (int, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=%s", LabelDeploymentName, deploymentName))
	filter.Add("label", fmt.Sprintf("%s=%s", LabelComponent, ComponentRedis))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to find Redis container: %w", err)
	}
	if len(containers) == 0 {
		return 0, fmt.Errorf("no Redis container found for deployment '%s'", deploymentName)
	}

	portStr, ok := containers[0].Labels[LabelRedisPort]
	if !ok {
		return 0, fmt.Errorf("Redis container for deployment '%s' missing port label", deploymentName)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid Redis port label '%s': %w", portStr, err)
	}
	return port, nil
}

func uptimeFrom(createdUnix int64) string {
	d := time.Since(time.Unix(createdUnix, 0)).Round(time.Second)
	return d.String()
}
