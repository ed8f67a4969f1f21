// Package cli — launch.go implements the "krakenops launch" command.
//
// The launch command starts the trading bot — as a local process or a
// Docker container, depending on the launch profile — with a carefully
// resolved environment:
//
//	runtime overrides  >  env file values  >  inherited environment
//
// Two rules are absolute. MODE is always forced to the profile's mode
// (SIM by default), so an env file left over from a live deployment can
// never flip a workstation launch into real trading. And credentials are
// never read from files or flags: the secret keys named in the profile
// must be present in the launcher's own environment, override anything
// the env file says, and are redacted in every output the command
// produces.
//
// Any env-file value displaced by an override is reported on stderr —
// a value the operator wrote down and that silently does nothing is a
// misconfiguration worth knowing about.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhelpa/krakenops/internal/docker"
	"github.com/rhelpa/krakenops/internal/envfile"
	"github.com/rhelpa/krakenops/internal/launcher"
	"github.com/rhelpa/krakenops/internal/model"
	"github.com/rhelpa/krakenops/internal/port"
	"github.com/rhelpa/krakenops/internal/profile"
)

// launchFlags holds the flag values for the launch command.
type launchFlags struct {
	// profilePath explicitly selects a launch profile file, bypassing
	// the default search.
	profilePath string

	// envFile overrides the profile's env file path.
	envFile string

	// dryRun resolves and prints the launch plan without starting
	// anything.
	dryRun bool

	// autoPort reassigns conflicting host ports to free dynamic ports
	// instead of failing.
	autoPort bool
}

// NewLaunchCommand creates the "launch" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewLaunchCommand() *cobra.Command {
	flags := &launchFlags{}

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch the trading bot in simulation mode",
		Long: `Launch the trading bot with the environment resolved from the env file,
the inherited environment, and the profile's overrides. MODE is forced
to the profile's mode (SIM by default) no matter what the env file says.

Credentials are taken from the launcher's own environment — never from
files — and are redacted in all output. The launch is recorded in a
JSON journal and a YAML manifest under the profile's log directory.

The launch profile is read from .krakenops/launch.jsonc or
krakenops.jsonc in the current directory; a missing profile launches
the stock bot with built-in defaults.

Examples:
  krakenops launch
  krakenops launch --dry-run
  krakenops launch --env-file .env.staging --auto-port`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd.Context(), ".", flags)
		},
	}

	cmd.Flags().StringVar(&flags.profilePath, "profile", "", "Path to the launch profile (default: search the current directory)")
	cmd.Flags().StringVar(&flags.envFile, "env-file", "", "Env file to load (default: the profile's envFile)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Resolve and print the launch plan without starting the bot")
	cmd.Flags().BoolVar(&flags.autoPort, "auto-port", false, "Reassign conflicting host ports instead of failing")

	return cmd
}

// runLaunch is the main logic function for the launch command.
// The dir parameter is the directory the profile and its relative paths
// resolve against; the command always passes ".".
func runLaunch(ctx context.Context, dir string, flags *launchFlags) error {
	// Step 1: Load and validate the launch profile. A missing profile is
	// fine — the defaults describe the stock bot.
	prof, err := loadProfile(dir, flags.profilePath)
	if err != nil {
		return err
	}
	if errs := profile.Validate(prof); len(errs) > 0 {
		messages := make([]string, len(errs))
		for i := range errs {
			messages[i] = errs[i].Error()
		}
		return model.NewCLIError(model.ExitConfigError,
			"invalid launch profile: "+strings.Join(messages, "; "))
	}

	workdir := filepath.Join(dir, prof.Workdir)
	logDir := filepath.Join(dir, prof.LogDir)

	// Step 2: Load the env file. The file is optional: a missing file
	// resolves to an empty map and the launch proceeds on the inherited
	// environment plus overrides.
	envFilePath := prof.EnvFile
	if flags.envFile != "" {
		envFilePath = flags.envFile
	}
	fileVals, envFileUsed, err := loadEnvFile(workdir, envFilePath)
	if err != nil {
		return err
	}

	// Step 3: Build the overrides. MODE comes from the profile; every
	// secret key must be present in the launcher's environment.
	overrides, err := buildOverrides(prof)
	if err != nil {
		return err
	}

	// Step 4: Resolve. Overrides beat the file, the file beats the
	// inherited environment.
	resolved := envfile.Resolve(os.Environ(), fileVals, overrides)

	// Report displaced env-file values on stderr — a MODE=REAL sitting
	// in the file and doing nothing is worth a warning, not silence.
	for _, d := range resolved.Discarded() {
		fmt.Fprintf(os.Stderr, "Warning: %s=%s from %s is overridden and has no effect\n",
			d.Key, redactValue(prof, d.Key, d.FileValue), envFilePath)
	}

	// Step 5: For container launches, check the requested host ports and
	// optionally reassign conflicts.
	bindings, err := resolveBindings(prof, flags.autoPort)
	if err != nil {
		return err
	}

	inst := &model.BotInstance{
		Name:       prof.Name,
		Mode:       prof.Mode,
		Kind:       prof.Kind(),
		EnvFile:    envFileUsed,
		Ports:      bindings,
		LaunchedAt: time.Now(),
	}

	// Step 6: Dry run stops after printing the redacted plan.
	if flags.dryRun {
		printLaunchPlan(prof, inst, resolved)
		return nil
	}

	// Step 7: Record the launch before starting the bot, so a bot that
	// dies instantly still leaves an audit trail.
	journal, err := launcher.OpenJournal(logDir, prof.Name)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()
	journal.LaunchResolved(prof.Mode, envFileUsed, resolved.Discarded())

	manifest := &launcher.Manifest{
		Name:       prof.Name,
		Mode:       prof.Mode,
		Kind:       inst.Kind.String(),
		EnvFile:    envFileUsed,
		Ports:      launcher.PortStrings(bindings),
		LaunchedAt: inst.LaunchedAt,
		Env:        resolved.Redacted(prof.SecretKeys),
	}

	// Step 8: Dispatch on launch kind.
	if inst.Kind == model.KindContainer {
		return launchContainer(ctx, prof, inst, resolved, manifest, logDir, journal)
	}
	return launchProcess(ctx, prof, workdir, dir, resolved, manifest, logDir, journal)
}

// loadProfile finds, loads, and defaults the launch profile. A missing
// profile yields the built-in defaults.
func loadProfile(dir, explicitPath string) (*profile.Profile, error) {
	path := explicitPath
	if path == "" {
		path = profile.Find(dir)
	}

	var prof *profile.Profile
	if path == "" {
		VerboseLog("No launch profile found, using defaults")
		prof = &profile.Profile{}
	} else {
		VerboseLog("Loading launch profile %s", path)
		loaded, err := profile.Load(path)
		if err != nil {
			return nil, err
		}
		prof = loaded
	}

	prof.ApplyDefaults()
	return prof, nil
}

// loadEnvFile loads the env file relative to the bot's working
// directory. Returns the values, the path actually used (empty when the
// file does not exist), and any parse error.
func loadEnvFile(workdir, envFilePath string) (map[string]string, string, error) {
	if envFilePath == "" {
		return nil, "", nil
	}

	path := envFilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(workdir, path)
	}

	vals, err := envfile.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	if vals == nil {
		VerboseLog("Env file %s not found, continuing without it", path)
		return nil, "", nil
	}

	VerboseLog("Loaded %d values from %s", len(vals), path)
	return vals, envFilePath, nil
}

// buildOverrides assembles the runtime overrides: the forced MODE plus
// every secret key read from the launcher's own environment.
//
// A missing secret aborts the launch — falling back to whatever the env
// file holds would defeat the point of keeping credentials out of files.
func buildOverrides(prof *profile.Profile) (map[string]string, error) {
	overrides := map[string]string{"MODE": prof.Mode}

	var missing []string
	for _, key := range prof.SecretKeys {
		value, ok := os.LookupEnv(key)
		if !ok || value == "" {
			missing = append(missing, key)
			continue
		}
		overrides[key] = value
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, model.NewCLIError(model.ExitSecretsMissing,
			fmt.Sprintf("missing credentials in environment: %v — export them before launching", missing))
	}

	return overrides, nil
}

// resolveBindings returns the container port bindings with conflicts
// either reported or reassigned, depending on autoPort. Process launches
// have no bindings.
func resolveBindings(prof *profile.Profile, autoPort bool) ([]model.PortBinding, error) {
	if prof.Container == nil {
		return nil, nil
	}

	bindings := prof.Container.Bindings()
	scanner := port.NewScanner()

	conflicts := scanner.CheckBindings(bindings)
	if len(conflicts) == 0 {
		return bindings, nil
	}

	if !autoPort {
		return nil, model.NewCLIError(model.ExitPortConflict,
			fmt.Sprintf("host ports already in use: %v — stop the conflicting process or pass --auto-port", conflicts))
	}

	// Reassign each conflicting binding to a free dynamic port. Probes do
	// not hold the port, so ports handed out earlier in this loop are
	// tracked and skipped to keep the reassignments unique.
	conflictSet := make(map[int]bool, len(conflicts))
	for _, p := range conflicts {
		conflictSet[p] = true
	}
	taken := make(map[int]bool, len(bindings))
	for _, b := range bindings {
		taken[b.HostPort] = true
	}
	for i := range bindings {
		if !conflictSet[bindings[i].HostPort] {
			continue
		}
		free, err := scanner.FreeDynamicPortExcluding(bindings[i].Protocol, taken)
		if err != nil {
			return nil, err
		}
		VerboseLog("Host port %d busy, reassigned to %d", bindings[i].HostPort, free)
		bindings[i].HostPort = free
		taken[free] = true
	}

	return bindings, nil
}

// launchContainer starts the bot as a detached Docker container.
func launchContainer(ctx context.Context, prof *profile.Profile, inst *model.BotInstance,
	resolved *envfile.Resolved, manifest *launcher.Manifest, logDir string, journal *launcher.Journal) error {

	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	// Fail fast on a dead daemon before creating anything.
	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	id, err := docker.RunBot(ctx, cli, prof.Name, docker.RunSpec{
		Image:   prof.Container.Image,
		Env:     resolved.Environ(),
		Labels:  docker.BuildLabels(inst),
		Ports:   inst.Ports,
		Volumes: prof.Container.Volumes,
	})
	if err != nil {
		return err
	}
	journal.ContainerStarted(prof.Container.Image, id)

	manifest.Image = prof.Container.Image
	manifest.ContainerID = id
	if err := launcher.WriteManifest(logDir, manifest); err != nil {
		return err
	}

	printContainerLaunched(prof.Name, prof.Mode, id, inst.Ports)
	return nil
}

// launchProcess runs the bot as a local child process, blocking until it
// exits and propagating its exit status.
func launchProcess(ctx context.Context, prof *profile.Profile, workdir, dir string,
	resolved *envfile.Resolved, manifest *launcher.Manifest, logDir string, journal *launcher.Journal) error {

	venvDir := ""
	if prof.Venv != "" {
		venvDir = filepath.Join(dir, prof.Venv)
	}

	manifest.Command = prof.Command
	manifest.Args = prof.Args
	// Written before the blocking run: the manifest documents the launch
	// parameters, not the outcome.
	if err := launcher.WriteManifest(logDir, manifest); err != nil {
		return err
	}

	fmt.Printf("Launching %q in %s mode...\n", prof.Name, prof.Mode)

	code, err := launcher.Run(ctx, launcher.Options{
		Command: prof.Command,
		Args:    prof.Args,
		Dir:     workdir,
		Env:     resolved.Environ(),
		VenvDir: venvDir,
	}, journal)
	if err != nil {
		return err
	}

	if code != 0 {
		// The bot's own exit status wins over the CLI's taxonomy — an
		// operator scripting around the launcher sees the bot's code.
		return model.NewCLIError(model.ExitCode(code),
			fmt.Sprintf("bot exited with status %d", code))
	}
	return nil
}

// redactValue masks a value when its key is one of the profile's secret
// keys, for use in warnings and plans.
func redactValue(prof *profile.Profile, key, value string) string {
	for _, secret := range prof.SecretKeys {
		if key == secret {
			return "[redacted]"
		}
	}
	return value
}

// printLaunchPlan shows the fully resolved launch without starting
// anything. Secret values are redacted.
func printLaunchPlan(prof *profile.Profile, inst *model.BotInstance, resolved *envfile.Resolved) {
	redacted := resolved.Redacted(prof.SecretKeys)

	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":   inst.Name,
			"mode":   inst.Mode,
			"kind":   inst.Kind.String(),
			"dryRun": true,
			"env":    redacted,
		}
		if inst.Kind == model.KindContainer {
			result["image"] = prof.Container.Image
			result["ports"] = launcher.PortStrings(inst.Ports)
		} else {
			result["command"] = prof.Command
			result["args"] = prof.Args
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Would launch %q in %s mode (%s)\n", inst.Name, inst.Mode, inst.Kind)
	if inst.Kind == model.KindContainer {
		fmt.Printf("  Image: %s\n", prof.Container.Image)
		for _, p := range launcher.PortStrings(inst.Ports) {
			fmt.Printf("  Port:  %s\n", p)
		}
	} else {
		fmt.Printf("  Command: %s %v\n", prof.Command, prof.Args)
	}

	// Sorted keys for stable, diffable output.
	keys := make([]string, 0, len(redacted))
	for key := range redacted {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fmt.Println("  Environment:")
	for _, key := range keys {
		fmt.Printf("    %s=%s\n", key, redacted[key])
	}
}

// printContainerLaunched outputs the container launch result.
func printContainerLaunched(name, mode, containerID string, ports []model.PortBinding) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":        name,
			"mode":        mode,
			"containerId": containerID,
			"ports":       launcher.PortStrings(ports),
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Launched %q in %s mode (container %s)\n", name, mode, shortID(containerID))
	for _, p := range launcher.PortStrings(ports) {
		fmt.Printf("  Port: %s\n", p)
	}
}
