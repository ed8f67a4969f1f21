// Package model defines the domain types shared across the krakenops CLI.
//
// The CLI has no state file of its own: containerized bot instances are
// reconstructed at runtime from Docker container labels, and everything
// about a local-process launch lives only for the duration of the command.
// The types here are therefore transient representations passed between
// the cli, launcher, docker, and gitrepo layers.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// LaunchKind selects how the trading bot is run.
type LaunchKind string

const (
	// KindProcess runs the bot as a local child process with the resolved
	// environment. This is the default and matches the original operator
	// workflow (virtualenv + python).
	KindProcess LaunchKind = "process"

	// KindContainer runs the bot inside a Docker container created from
	// the image declared in the launch profile.
	KindContainer LaunchKind = "container"
)

// String returns the string representation of LaunchKind.
func (k LaunchKind) String() string {
	return string(k)
}

// IsValid checks whether the LaunchKind is one of the known kinds.
func (k LaunchKind) IsValid() bool {
	return k == KindProcess || k == KindContainer
}

// ParseLaunchKind converts a string to a LaunchKind.
// Returns an error if the string does not match any known kind.
func ParseLaunchKind(s string) (LaunchKind, error) {
	kind := LaunchKind(strings.ToLower(s))
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid launch kind: %q (valid: process, container)", s)
	}
	return kind, nil
}

// BotStatus represents the runtime state of a containerized bot instance
// as reported by the Docker daemon.
type BotStatus string

const (
	// StatusRunning indicates the bot container is currently running.
	StatusRunning BotStatus = "running"

	// StatusExited indicates the bot container has stopped, either because
	// the bot exited on its own or because the operator ran "krakenops stop".
	StatusExited BotStatus = "exited"
)

// String returns the string representation of BotStatus.
func (s BotStatus) String() string {
	return string(s)
}

// BotInstance describes a single launched trading bot. For container
// launches every field is reconstructed from the botops.* Docker labels;
// for process launches the instance exists only inside the launch command.
type BotInstance struct {
	// Name is the unique identifier for this bot instance.
	// Must contain only alphanumeric characters and hyphens.
	Name string `json:"name"`

	// Mode is the effective MODE value the bot was launched with.
	// The launcher forces this to "SIM" regardless of env-file content.
	Mode string `json:"mode"`

	// Kind says whether the bot runs as a local process or a container.
	Kind LaunchKind `json:"kind"`

	// ContainerID is the Docker container identifier. Empty for process launches.
	ContainerID string `json:"containerId,omitempty"`

	// ContainerName is the Docker container name. Empty for process launches.
	ContainerName string `json:"containerName,omitempty"`

	// PID is the child process id. Zero for container launches.
	PID int `json:"pid,omitempty"`

	// EnvFile is the path of the env file the environment was resolved from.
	// Empty when no env file was present (the file is optional).
	EnvFile string `json:"envFile,omitempty"`

	// Status is the runtime state. Only meaningful for container launches.
	Status BotStatus `json:"status,omitempty"`

	// Ports holds the host port bindings for container launches.
	Ports []PortBinding `json:"ports,omitempty"`

	// LaunchedAt is the timestamp the instance was launched.
	LaunchedAt time.Time `json:"launchedAt"`
}

// nameRegex validates instance names: alphanumeric + hyphens only,
// must start and end with alphanumeric.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateName checks if the given name is a valid bot instance name.
// Valid names contain only alphanumeric characters and hyphens,
// and must start/end with an alphanumeric character.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("bot name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid bot name %q: must contain only alphanumeric characters and hyphens, and start/end with alphanumeric", name)
	}
	return nil
}

// PortBinding represents one host-to-container port mapping for a
// containerized bot launch (e.g. the bot's status endpoint).
type PortBinding struct {
	// ContainerPort is the port number inside the container (1-65535).
	ContainerPort int `json:"containerPort"`

	// HostPort is the port number on the host machine (1024-65535).
	HostPort int `json:"hostPort"`

	// Protocol is the network protocol. Defaults to "tcp".
	Protocol string `json:"protocol"`
}

// Validate checks whether the PortBinding has valid field values.
func (p *PortBinding) Validate() error {
	if p.ContainerPort < 1 || p.ContainerPort > 65535 {
		return fmt.Errorf("port binding: container port %d out of range (1-65535)", p.ContainerPort)
	}
	if p.HostPort < 1024 || p.HostPort > 65535 {
		return fmt.Errorf("port binding: host port %d out of range (1024-65535)", p.HostPort)
	}
	if p.Protocol == "" {
		p.Protocol = "tcp"
	}
	if p.Protocol != "tcp" && p.Protocol != "udp" {
		return fmt.Errorf("port binding: invalid protocol %q (valid: tcp, udp)", p.Protocol)
	}
	return nil
}

// String renders the binding as "hostPort->containerPort/protocol".
func (p *PortBinding) String() string {
	proto := p.Protocol
	if proto == "" {
		proto = "tcp"
	}
	return fmt.Sprintf("%d->%d/%s", p.HostPort, p.ContainerPort, proto)
}

// ValidatePortBindings checks a slice of PortBindings for individual
// validity and host-port uniqueness within a single launch.
func ValidatePortBindings(bindings []PortBinding) error {
	// Key: "hostPort/protocol" — different protocols may share a number.
	seen := make(map[string]int)

	for i := range bindings {
		if err := bindings[i].Validate(); err != nil {
			return err
		}

		key := fmt.Sprintf("%d/%s", bindings[i].HostPort, bindings[i].Protocol)
		if prev, exists := seen[key]; exists {
			return fmt.Errorf("port binding: host port %s mapped to both container port %d and %d",
				key, prev, bindings[i].ContainerPort)
		}
		seen[key] = bindings[i].ContainerPort
	}
	return nil
}

// ExitCode defines the CLI exit codes. These codes let wrapper scripts and
// CI systems programmatically distinguish failure classes, instead of the
// original behavior of propagating whatever the last failing child command
// happened to return.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the launch profile or env file could not
	// be read or failed validation.
	ExitConfigError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitPortConflict indicates a requested host port is already in use.
	ExitPortConflict ExitCode = 4

	// ExitGitError indicates a git operation failed.
	ExitGitError ExitCode = 5

	// ExitBotNotFound indicates the bot command, virtualenv, image, or a
	// named bot instance could not be found.
	ExitBotNotFound ExitCode = 6

	// ExitUserCancelled indicates the user declined an interactive prompt.
	ExitUserCancelled ExitCode = 7

	// ExitSecretsMissing indicates a required credential variable was not
	// present in the launcher's runtime environment.
	ExitSecretsMissing ExitCode = 8
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
