package launcher

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rhelpa/krakenops/internal/model"
)

// Manifest is the YAML snapshot of a launch, written next to the journal
// so an operator can answer "what exactly did that bot start with"
// without replaying the journal. Env holds the redacted environment:
// secret values are already masked before they reach the manifest.
type Manifest struct {
	Name        string            `yaml:"name"`
	Mode        string            `yaml:"mode"`
	Kind        string            `yaml:"kind"`
	Command     string            `yaml:"command,omitempty"`
	Args        []string          `yaml:"args,omitempty"`
	Image       string            `yaml:"image,omitempty"`
	PID         int               `yaml:"pid,omitempty"`
	ContainerID string            `yaml:"containerId,omitempty"`
	EnvFile     string            `yaml:"envFile,omitempty"`
	Ports       []string          `yaml:"ports,omitempty"`
	LaunchedAt  time.Time         `yaml:"launchedAt"`
	Env         map[string]string `yaml:"env"`
}

// ManifestFileName is the manifest file inside the log directory.
const ManifestFileName = "launch-manifest.yml"

// PortStrings renders bindings as "host->container/proto" for the
// manifest and for CLI output.
func PortStrings(ports []model.PortBinding) []string {
	if len(ports) == 0 {
		return nil
	}
	out := make([]string, len(ports))
	for i, p := range ports {
		out[i] = p.String()
	}
	return out
}

// WriteManifest marshals the manifest to <logDir>/launch-manifest.yml,
// replacing any previous launch's manifest. Mode 0600: even redacted,
// the file reveals the bot's configuration surface.
func WriteManifest(logDir string, m *Manifest) error {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			"failed to create log directory", err)
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			"failed to marshal launch manifest", err)
	}

	path := filepath.Join(logDir, ManifestFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			"failed to write launch manifest", err)
	}
	return nil
}
