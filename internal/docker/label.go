package docker

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rhelpa/krakenops/internal/model"
)

// Label key constants define the Docker label schema used to persist bot
// instance metadata on containers. Labels are the sole persistence
// mechanism: `krakenops ps` and `krakenops stop` reconstruct instances
// entirely from them.
//
// All keys share the "botops." prefix so they never collide with labels
// set by other tooling on the same host.
const (
	// LabelPrefix is the common prefix for all krakenops labels.
	LabelPrefix = "botops."

	// LabelManagedBy identifies containers launched by krakenops.
	// Key: "botops.managed-by", Value: always "krakenops".
	LabelManagedBy = LabelPrefix + "managed-by"

	// ManagedByValue is the fixed value of LabelManagedBy.
	ManagedByValue = "krakenops"

	// LabelName stores the bot instance name.
	LabelName = LabelPrefix + "name"

	// LabelMode stores the effective MODE the bot was launched with.
	LabelMode = LabelPrefix + "mode"

	// LabelEnvFile stores the env file path the environment was resolved
	// from. Absent when no env file was present at launch.
	LabelEnvFile = LabelPrefix + "env-file"

	// LabelLaunchedAt stores the RFC3339 launch timestamp.
	LabelLaunchedAt = LabelPrefix + "launched-at"

	// LabelPortPrefix is the prefix for per-port labels. Each binding
	// gets one label with the container port appended:
	//   "botops.port.9090" = "19090"
	// This allows reconstructing the binding table from labels alone.
	LabelPortPrefix = LabelPrefix + "port."
)

// BuildLabels renders a BotInstance as the label set applied to its
// container at creation time.
func BuildLabels(inst *model.BotInstance) map[string]string {
	labels := map[string]string{
		LabelManagedBy:  ManagedByValue,
		LabelName:       inst.Name,
		LabelMode:       inst.Mode,
		LabelLaunchedAt: inst.LaunchedAt.UTC().Format(time.RFC3339),
	}

	if inst.EnvFile != "" {
		labels[LabelEnvFile] = inst.EnvFile
	}

	for _, b := range inst.Ports {
		labels[LabelPortPrefix+strconv.Itoa(b.ContainerPort)] = strconv.Itoa(b.HostPort)
	}

	return labels
}

// ParseLabels reconstructs a BotInstance from a container's label set.
// The container id, name, and status are filled in by the caller from
// the Docker API listing.
//
// Returns an error when the required name label is missing — a container
// matched by the managed-by filter but without a name is corrupt state.
func ParseLabels(labels map[string]string) (*model.BotInstance, error) {
	name, ok := labels[LabelName]
	if !ok || name == "" {
		return nil, fmt.Errorf("container is missing the %s label", LabelName)
	}

	inst := &model.BotInstance{
		Name:    name,
		Mode:    labels[LabelMode],
		Kind:    model.KindContainer,
		EnvFile: labels[LabelEnvFile],
	}

	if ts, ok := labels[LabelLaunchedAt]; ok {
		// A malformed timestamp degrades to the zero time rather than
		// failing the whole listing.
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			inst.LaunchedAt = parsed
		}
	}

	ports, err := ParsePortLabels(labels)
	if err != nil {
		return nil, err
	}
	inst.Ports = ports

	return inst, nil
}

// ParsePortLabels extracts the port bindings from botops.port.* labels,
// sorted by container port for stable output.
func ParsePortLabels(labels map[string]string) ([]model.PortBinding, error) {
	var bindings []model.PortBinding

	for key, value := range labels {
		if !strings.HasPrefix(key, LabelPortPrefix) {
			continue
		}

		containerPort, err := strconv.Atoi(strings.TrimPrefix(key, LabelPortPrefix))
		if err != nil {
			return nil, fmt.Errorf("invalid port label key %q: %w", key, err)
		}
		hostPort, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid port label value %q=%q: %w", key, value, err)
		}

		bindings = append(bindings, model.PortBinding{
			ContainerPort: containerPort,
			HostPort:      hostPort,
			Protocol:      "tcp",
		})
	}

	// Map iteration order is random; sort for stable CLI output.
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].ContainerPort < bindings[j].ContainerPort
	})

	return bindings, nil
}
