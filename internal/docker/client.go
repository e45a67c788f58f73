// Package docker tears down a room's compute containers. It implements the
// external "stop this room" side effect the inactivity watchdog invokes.
package docker

import (
	"context"
	"fmt"
	"log"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// NewClient creates a Docker client and validates daemon is accessible.
// Returns an error if the Docker daemon is not running or not accessible.
func NewClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Validate daemon is accessible
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf(`Docker daemon not accessible: %w

Ensure Docker is running:
  • macOS: Docker Desktop
  • Linux: sudo systemctl start docker`, err)
	}

	return cli, nil
}

// StopRoomCompute stops every container labeled for the given room. It is
// safe to call for a room whose compute is already stopped or was never
// started; stopping zero containers is not an error.
func StopRoomCompute(ctx context.Context, cli *client.Client, roomID string) error {
	containerFilters := filters.NewArgs()
	containerFilters.Add("label", fmt.Sprintf("%s=true", LabelProject))
	containerFilters.Add("label", fmt.Sprintf("%s=%s", LabelRoomID, roomID))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     false,
		Filters: containerFilters,
	})
	if err != nil {
		return fmt.Errorf("failed to list room %q containers: %w", roomID, err)
	}

	for _, c := range containers {
		if err := cli.ContainerStop(ctx, c.ID, container.StopOptions{}); err != nil {
			return fmt.Errorf("failed to stop container %s for room %q: %w", c.ID[:12], roomID, err)
		}
		log.Printf("[docker] room=%s stopped container %s", roomID, c.ID[:12])
	}

	return nil
}
