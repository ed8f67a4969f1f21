// Package profile handles the krakenops launch profile.
//
// The profile is a JSONC file (JSON with comments) describing how the
// trading bot is launched: the command and its arguments, the Python
// virtualenv, the env file, which keys are credentials, and an optional
// container section for Docker launches. Comments are common in operator
// config, so the file is stripped with github.com/tidwall/jsonc before
// parsing with the standard encoding/json.
//
// Every field has a default covering the stock bot, so a missing profile
// is equivalent to an empty one: `krakenops launch` works out of the box
// in a checkout containing kraken-bot.py.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/rhelpa/krakenops/internal/model"
)

// Well-known profile locations, checked in order relative to the
// directory the launch command runs in.
var profilePaths = []string{
	filepath.Join(".krakenops", "launch.jsonc"),
	"krakenops.jsonc",
}

// Default values applied by ApplyDefaults when the profile omits a field.
const (
	// DefaultName is the bot instance name.
	DefaultName = "kraken-bot"

	// DefaultCommand is the interpreter used for process launches.
	DefaultCommand = "python"

	// DefaultEnvFile is the env file loaded before launch. The file is
	// optional; its absence does not block the launch.
	DefaultEnvFile = ".env"

	// DefaultMode is the value forced into MODE for every launch.
	DefaultMode = "SIM"

	// DefaultLogDir receives the launch journal and manifest.
	DefaultLogDir = "logs"
)

// DefaultArgs is the argument vector for the default command.
var DefaultArgs = []string{"kraken-bot.py"}

// DefaultSecretKeys are the credential variables injected from the
// launcher's runtime environment.
var DefaultSecretKeys = []string{"API_KEY", "API_SECRET"}

// Profile is the parsed launch profile. Unknown fields are silently
// ignored so profiles can carry operator notes for other tooling.
type Profile struct {
	// Name identifies the bot instance (container name, journal field).
	Name string `json:"name"`

	// Command is the program to run for process launches.
	Command string `json:"command,omitempty"`

	// Args are the arguments passed to Command.
	Args []string `json:"args,omitempty"`

	// Workdir is the working directory for the bot, relative to the
	// profile's directory. Defaults to the profile's directory itself.
	Workdir string `json:"workdir,omitempty"`

	// Venv is the Python virtualenv directory to activate for process
	// launches. Empty means no virtualenv. When set, the directory must
	// exist — a configured-but-missing venv aborts the launch, matching
	// the original strict-mode behavior of a failing activation step.
	Venv string `json:"venv,omitempty"`

	// EnvFile is the key=value file loaded into the environment.
	EnvFile string `json:"envFile,omitempty"`

	// SecretKeys lists the credential variables that must come from the
	// launcher's runtime environment and are redacted in all output.
	SecretKeys []string `json:"secretKeys,omitempty"`

	// Mode is the value forced into the MODE variable.
	Mode string `json:"mode,omitempty"`

	// LogDir is where the launch journal and manifest are written.
	LogDir string `json:"logDir,omitempty"`

	// Container configures Docker launches. When present, launch runs
	// the bot in a container instead of a local process.
	Container *ContainerConfig `json:"container,omitempty"`
}

// ContainerConfig is the optional Docker launch section.
type ContainerConfig struct {
	// Image is the bot's container image. Must already be present on the
	// host — krakenops does not pull.
	Image string `json:"image"`

	// Ports maps container ports to identical host ports. Entries are
	// either plain container ports (9090) or "host:container" strings in
	// the ports list below.
	Ports []PortSpec `json:"ports,omitempty"`

	// Volumes are bind mounts in "host:container" form, host side
	// relative to the profile directory.
	Volumes []string `json:"volumes,omitempty"`
}

// PortSpec is one requested port mapping. In JSONC it may be written as
// a bare integer (same port on both sides) or a "host:container" string;
// UnmarshalJSON accepts both shapes.
type PortSpec struct {
	// ContainerPort is the port inside the container.
	ContainerPort int

	// HostPort is the requested host port. Zero means "same as container".
	HostPort int
}

// UnmarshalJSON accepts either 9090 or "19090:9090".
func (p *PortSpec) UnmarshalJSON(data []byte) error {
	// Try the integer form first — it is the common case.
	var port int
	if err := json.Unmarshal(data, &port); err == nil {
		p.ContainerPort = port
		p.HostPort = port
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("port entry must be an integer or \"host:container\" string")
	}

	var host, cont int
	if _, err := fmt.Sscanf(s, "%d:%d", &host, &cont); err != nil {
		return fmt.Errorf("invalid port entry %q: want \"host:container\"", s)
	}
	p.HostPort = host
	p.ContainerPort = cont
	return nil
}

// Bindings converts the port specs to model.PortBindings.
func (c *ContainerConfig) Bindings() []model.PortBinding {
	bindings := make([]model.PortBinding, 0, len(c.Ports))
	for _, p := range c.Ports {
		host := p.HostPort
		if host == 0 {
			host = p.ContainerPort
		}
		bindings = append(bindings, model.PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      host,
			Protocol:      "tcp",
		})
	}
	return bindings
}

// Find locates the launch profile starting from dir, checking the
// well-known paths in order. Returns the path of the first profile found,
// or "" when none exists (not an error — defaults apply).
func Find(dir string) string {
	for _, rel := range profilePaths {
		path := filepath.Join(dir, rel)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Load reads and parses a launch profile file. JSONC comments and
// trailing commas are stripped before JSON decoding.
//
// Returns a CLIError with ExitConfigError when the file cannot be read
// or contains invalid JSON.
func Load(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to read launch profile %q", path), err)
	}

	var p Profile
	if err := json.Unmarshal(jsonc.ToJSON(raw), &p); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to parse launch profile %q", path), err)
	}

	return &p, nil
}

// ApplyDefaults fills every omitted field with its default value.
// Called for loaded profiles and for the implicit empty profile used
// when no profile file exists.
func (p *Profile) ApplyDefaults() {
	if p.Name == "" {
		p.Name = DefaultName
	}
	if p.Command == "" {
		p.Command = DefaultCommand
	}
	if p.Args == nil {
		p.Args = append([]string(nil), DefaultArgs...)
	}
	if p.EnvFile == "" {
		p.EnvFile = DefaultEnvFile
	}
	if len(p.SecretKeys) == 0 {
		p.SecretKeys = append([]string(nil), DefaultSecretKeys...)
	}
	if p.Mode == "" {
		p.Mode = DefaultMode
	}
	if p.LogDir == "" {
		p.LogDir = DefaultLogDir
	}
}

// Kind returns the launch kind the profile selects: container when a
// container section is present, process otherwise.
func (p *Profile) Kind() model.LaunchKind {
	if p.Container != nil {
		return model.KindContainer
	}
	return model.KindProcess
}
