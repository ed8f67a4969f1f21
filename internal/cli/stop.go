// Package cli — stop.go implements the "krakenops stop" command.
//
// The stop command gracefully stops a container-launched bot instance.
// The daemon sends SIGTERM first, giving the bot its normal shutdown
// path (cancel orders, flush the trade log), and escalates to SIGKILL
// after the default timeout. The --rm flag also removes the stopped
// container, dropping the instance from `krakenops ps`.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhelpa/krakenops/internal/docker"
)

// stopFlags holds the flag values for the stop command.
type stopFlags struct {
	// remove also removes the container after stopping it.
	remove bool
}

// NewStopCommand creates the "stop" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewStopCommand() *cobra.Command {
	flags := &stopFlags{}

	cmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a launched bot instance",
		Long: `Stop a container-launched bot instance gracefully.

The bot receives SIGTERM and gets the daemon's default grace period to
shut down before being killed. With --rm the stopped container is also
removed.

Examples:
  krakenops stop kraken-bot
  krakenops stop --rm kraken-bot`,

		// Exactly one positional argument (instance name) is required.
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.remove, "rm", false, "Remove the container after stopping")

	return cmd
}

// runStop is the main logic function for the stop command.
func runStop(ctx context.Context, name string, flags *stopFlags) error {
	// Step 1: Connect to Docker daemon.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	// Step 2: Find the target instance by name.
	inst, err := docker.FindBot(ctx, cli, name)
	if err != nil {
		return err
	}
	VerboseLog("Found instance %q (container %s)", name, shortID(inst.ContainerID))

	// Step 3: Stop it gracefully.
	if err := docker.StopBot(ctx, cli, inst); err != nil {
		return err
	}

	// Step 4: Optionally remove the container.
	removed := false
	if flags.remove {
		VerboseLog("Removing container %s", shortID(inst.ContainerID))
		if err := docker.RemoveBot(ctx, cli, inst, false); err != nil {
			return err
		}
		removed = true
	}

	printStopResult(name, removed)
	return nil
}

// printStopResult outputs the stop result in text or JSON format.
func printStopResult(name string, removed bool) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":    name,
			"action":  "stopped",
			"removed": removed,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Stopped bot instance %q\n", name)
	if removed {
		fmt.Println("  Container removed")
	}
}
