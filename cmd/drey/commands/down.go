package commands

import (
	"context"

	dockerpkg "github.com/dyluth/drey/internal/docker"
	"github.com/dyluth/drey/internal/printer"
	"github.com/spf13/cobra"
)

var downCmd = &cobra.Command{
	Use:   "down <room>",
	Short: "Stop a room's compute containers",
	Long: `Stop all Docker containers labeled for the given room.

This is the same teardown the inactivity watchdog performs when a room
expires. It is safe to run for a room whose compute is already stopped;
stopping zero containers is not an error.

The command does not prompt for confirmation and executes immediately.

Examples:
  drey down design-review`,
	Args: cobra.ExactArgs(1),
	RunE: runDown,
}

func init() {
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	roomID := args[0]

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	if err := dockerpkg.StopRoomCompute(ctx, cli, roomID); err != nil {
		return err
	}

	printer.Success("compute for room '%s' stopped\n", roomID)
	return nil
}
