package commands

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hivelab/comb/internal/printer"
	"github.com/hivelab/comb/internal/sandbox"
	"github.com/hivelab/comb/pkg/mailbox"
)

// connectMailbox resolves a deployment's Redis port through Docker labels and
// opens a mailbox client against it. The caller owns the returned client.
func connectMailbox(ctx context.Context, deploymentName string) (*mailbox.Client, error) {
	cli, err := sandbox.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	defer cli.Close()

	containers, err := sandbox.DeploymentContainers(ctx, cli, deploymentName)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return nil, printer.Error(
			fmt.Sprintf("deployment '%s' not found", deploymentName),
			fmt.Sprintf("No containers found with deployment name '%s'.", deploymentName),
			[]string{
				"Run 'comb list' to see available deployments",
				"Start the deployment:\n  comb up",
			},
		)
	}

	redisPort, err := sandbox.GetDeploymentRedisPort(ctx, cli, deploymentName)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"Redis port not found",
			fmt.Sprintf("Deployment '%s' exists but its Redis port label is missing.", deploymentName),
			nil,
			[]string{fmt.Sprintf("Restart the deployment:\n  comb down --name %s\n  comb up", deploymentName)},
		)
	}

	redisOpts, err := redis.ParseURL(sandbox.GetRedisURL(redisPort))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	box, err := mailbox.NewClient(redisOpts, deploymentName)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailbox client: %w", err)
	}

	if err := box.Ping(ctx); err != nil {
		box.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis on port %d", redisPort),
			nil,
			[]string{
				fmt.Sprintf("Check Redis container status:\n  docker logs %s", sandbox.RedisContainerName(deploymentName)),
				fmt.Sprintf("Restart if needed:\n  comb down --name %s\n  comb up", deploymentName),
			},
		)
	}

	return box, nil
}
