// container.go implements the container lifecycle for bot launches:
// create+start a labeled bot container, discover managed instances via
// the botops.* labels, and stop or remove them.
//
// Unlike most of this package's callers, container creation uses the SDK
// (ContainerCreate + ContainerStart) rather than shelling out to
// `docker run`: the env slice may contain credential values, and passing
// them through the API avoids ever exposing them on a command line.
package docker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/rhelpa/krakenops/internal/model"
)

// RunSpec describes the container to create for a bot launch.
type RunSpec struct {
	// Image is the bot's container image. Must be present on the host.
	Image string

	// Env is the fully resolved child environment in "KEY=VALUE" form.
	Env []string

	// Labels is the botops.* label set from BuildLabels.
	Labels map[string]string

	// Ports are the host bindings to publish.
	Ports []model.PortBinding

	// Volumes are bind mounts in "host:container" form.
	Volumes []string
}

// RunBot creates and starts a detached container for the bot and returns
// its id. The container name is the instance name, so two instances with
// the same name cannot run concurrently — Docker rejects the duplicate.
func RunBot(ctx context.Context, cli *Client, name string, spec RunSpec) (string, error) {
	exposed, bindings := natBindings(spec.Ports)

	config := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Labels:       spec.Labels,
		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		PortBindings: bindings,
		Binds:        spec.Volumes,
	}

	created, err := cli.Inner().ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", model.WrapCLIError(model.ExitBotNotFound,
				fmt.Sprintf("image %q not found — build or pull it first", spec.Image), err)
		}
		return "", model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create container %q", name), err)
	}

	if err := cli.Inner().ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start container %q", name), err)
	}

	return created.ID, nil
}

// natBindings converts model port bindings to the SDK's nat types.
// All bindings are tcp on all interfaces, matching how the original bot
// exposed its status endpoint.
func natBindings(ports []model.PortBinding) (nat.PortSet, nat.PortMap) {
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))

	for _, p := range ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		containerPort := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
		exposed[containerPort] = struct{}{}
		bindings[containerPort] = []nat.PortBinding{
			{HostPort: strconv.Itoa(p.HostPort)},
		}
	}

	return exposed, bindings
}

// ListBots queries the daemon for all containers carrying the
// "botops.managed-by=krakenops" label, including stopped ones, and
// reconstructs a BotInstance for each.
//
// The label filter runs server-side in the daemon, so unrelated
// containers on the host are never transferred or inspected.
func ListBots(ctx context.Context, cli *Client) ([]model.BotInstance, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning,
			"failed to list Docker containers", err)
	}

	instances := make([]model.BotInstance, 0, len(containers))
	for _, c := range containers {
		inst, err := containerToInstance(c)
		if err != nil {
			// Skip containers with corrupt labels rather than failing
			// the whole listing.
			continue
		}
		instances = append(instances, *inst)
	}

	return instances, nil
}

// containerToInstance maps a Docker API container to a BotInstance,
// combining the parsed labels with the runtime fields from the listing.
func containerToInstance(c types.Container) (*model.BotInstance, error) {
	inst, err := ParseLabels(c.Labels)
	if err != nil {
		return nil, err
	}

	inst.ContainerID = c.ID
	inst.ContainerName = containerName(c.Names)
	inst.Status = mapContainerState(c.State)

	return inst, nil
}

// containerName extracts the display name from the API's name list.
// Docker returns names with a leading "/" that is an API artifact.
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	name := names[0]
	if len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	return name
}

// mapContainerState collapses Docker's container states onto the two the
// CLI distinguishes: a bot is either running or it is not.
func mapContainerState(state string) model.BotStatus {
	if state == "running" {
		return model.StatusRunning
	}
	return model.StatusExited
}

// FindBot returns the managed instance with the given name.
// Returns a CLIError with ExitBotNotFound when no such instance exists.
func FindBot(ctx context.Context, cli *Client, name string) (*model.BotInstance, error) {
	instances, err := ListBots(ctx, cli)
	if err != nil {
		return nil, err
	}

	for i := range instances {
		if instances[i].Name == name {
			return &instances[i], nil
		}
	}

	return nil, model.NewCLIError(model.ExitBotNotFound,
		fmt.Sprintf("no bot instance named %q — see \"krakenops ps\"", name))
}

// StopBot gracefully stops the instance's container. The daemon sends
// SIGTERM and escalates to SIGKILL after its default timeout, giving the
// bot a chance to flush its trade log.
func StopBot(ctx context.Context, cli *Client, inst *model.BotInstance) error {
	err := cli.Inner().ContainerStop(ctx, inst.ContainerID, container.StopOptions{})
	if err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to stop bot %q", inst.Name), err)
	}
	return nil
}

// RemoveBot removes the instance's container. The container must be
// stopped first unless force is true.
func RemoveBot(ctx context.Context, cli *Client, inst *model.BotInstance, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, inst.ContainerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove bot %q", inst.Name), err)
	}
	return nil
}
