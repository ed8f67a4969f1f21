// Package cli — ps.go implements the "krakenops ps" command.
//
// The ps command lists all container-launched bot instances by querying
// Docker for containers with the "botops.managed-by=krakenops" label,
// presented as a text table or JSON array depending on the --json flag.
// Process-launched bots are not listed — they live and die with their
// launch command and have no persisted state.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhelpa/krakenops/internal/docker"
	"github.com/rhelpa/krakenops/internal/launcher"
	"github.com/rhelpa/krakenops/internal/model"
)

// psFlags holds the flag values for the ps command.
type psFlags struct {
	// running filters the listing to running instances only.
	running bool
}

// NewPsCommand creates the "ps" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewPsCommand() *cobra.Command {
	flags := &psFlags{}

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List launched bot instances",
		Long: `List all container-launched bot instances and their status.

Each instance is shown with its name, mode, status, published ports,
and launch time.

Examples:
  krakenops ps
  krakenops ps --running
  krakenops ps --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPs(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.running, "running", false, "Show only running instances")

	return cmd
}

// runPs is the main logic function for the ps command.
func runPs(ctx context.Context, flags *psFlags) error {
	// Step 1: Connect to Docker and verify the daemon is available.
	cli, err := docker.NewClient()
	if err != nil {
		return err // NewClient already returns CLIError with ExitDockerNotRunning
	}
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	// Step 2: List all containers managed by krakenops.
	instances, err := docker.ListBots(ctx, cli)
	if err != nil {
		return err
	}
	VerboseLog("Found %d managed instances", len(instances))

	// Step 3: Apply the --running filter.
	if flags.running {
		filtered := make([]model.BotInstance, 0, len(instances))
		for _, inst := range instances {
			if inst.Status == model.StatusRunning {
				filtered = append(filtered, inst)
			}
		}
		instances = filtered
	}

	// Step 4: Sort by name for consistent output.
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Name < instances[j].Name
	})

	printPsResult(instances)
	return nil
}

// printPsResult outputs the instance list in text or JSON format,
// depending on the global --json flag.
func printPsResult(instances []model.BotInstance) {
	if IsJSONOutput() {
		printPsResultJSON(instances)
	} else {
		printPsResultText(instances)
	}
}

// psInstanceJSON is the JSON output structure for a single instance.
type psInstanceJSON struct {
	Name       string   `json:"name"`
	Mode       string   `json:"mode"`
	Status     string   `json:"status"`
	Container  string   `json:"container"`
	Ports      []string `json:"ports"`
	LaunchedAt string   `json:"launchedAt,omitempty"`
}

// printPsResultJSON outputs the instance list as structured JSON.
// The top-level key is "instances" containing an array.
func printPsResultJSON(instances []model.BotInstance) {
	type resultJSON struct {
		Instances []psInstanceJSON `json:"instances"`
	}

	result := resultJSON{
		// Empty slice instead of nil so JSON output shows [] not null.
		Instances: make([]psInstanceJSON, 0, len(instances)),
	}

	for _, inst := range instances {
		entry := psInstanceJSON{
			Name:      inst.Name,
			Mode:      inst.Mode,
			Status:    inst.Status.String(),
			Container: shortID(inst.ContainerID),
			Ports:     launcher.PortStrings(inst.Ports),
		}
		if entry.Ports == nil {
			entry.Ports = []string{}
		}
		if !inst.LaunchedAt.IsZero() {
			entry.LaunchedAt = inst.LaunchedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		result.Instances = append(result.Instances, entry)
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printPsResultText outputs the instance list as a text table:
//
//	NAME           MODE   STATUS    PORTS              LAUNCHED
//	kraken-bot     SIM    running   19090->9090/tcp    2025-06-01 12:00
func printPsResultText(instances []model.BotInstance) {
	if len(instances) == 0 {
		fmt.Println("No bot instances found.")
		return
	}

	fmt.Printf("%-20s %-6s %-10s %-24s %s\n",
		"NAME", "MODE", "STATUS", "PORTS", "LAUNCHED")

	for _, inst := range instances {
		ports := "-"
		if rendered := launcher.PortStrings(inst.Ports); len(rendered) > 0 {
			ports = strings.Join(rendered, ",")
		}
		launched := "-"
		if !inst.LaunchedAt.IsZero() {
			launched = inst.LaunchedAt.Local().Format("2006-01-02 15:04")
		}

		fmt.Printf("%-20s %-6s %-10s %-24s %s\n",
			inst.Name,
			inst.Mode,
			inst.Status.String(),
			ports,
			launched,
		)
	}
}

// shortID truncates a container id to the familiar 12-character form.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
