package launcher

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopkg.in/yaml.v3"

	"github.com/rhelpa/krakenops/internal/model"
)

// TestWriteManifest verifies the manifest round-trips through YAML and
// is written with owner-only permissions.
func TestWriteManifest(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	written := &Manifest{
		Name:       "kraken-bot",
		Mode:       "SIM",
		Kind:       "process",
		Command:    "python",
		Args:       []string{"kraken-bot.py"},
		PID:        4242,
		EnvFile:    ".env",
		LaunchedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Env: map[string]string{
			"MODE":    "SIM",
			"API_KEY": "[redacted]",
		},
	}
	require.NoError(t, WriteManifest(logDir, written))

	path := filepath.Join(logDir, ManifestFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var read Manifest
	require.NoError(t, yaml.Unmarshal(data, &read))
	assert.Equal(t, "kraken-bot", read.Name)
	assert.Equal(t, "SIM", read.Mode)
	assert.Equal(t, 4242, read.PID)
	assert.Equal(t, "[redacted]", read.Env["API_KEY"])
	assert.True(t, written.LaunchedAt.Equal(read.LaunchedAt))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

// TestWriteManifestReplacesPrevious verifies a relaunch overwrites the
// previous manifest instead of appending.
func TestWriteManifestReplacesPrevious(t *testing.T) {
	logDir := t.TempDir()

	require.NoError(t, WriteManifest(logDir, &Manifest{Name: "first", Mode: "SIM", Kind: "process"}))
	require.NoError(t, WriteManifest(logDir, &Manifest{Name: "second", Mode: "SIM", Kind: "process"}))

	data, err := os.ReadFile(filepath.Join(logDir, ManifestFileName))
	require.NoError(t, err)

	var read Manifest
	require.NoError(t, yaml.Unmarshal(data, &read))
	assert.Equal(t, "second", read.Name)
}

// TestPortStrings verifies the binding rendering used in manifests and
// CLI output.
func TestPortStrings(t *testing.T) {
	assert.Nil(t, PortStrings(nil))
	assert.Equal(t,
		[]string{"19090->9090/tcp", "15353->5353/udp"},
		PortStrings([]model.PortBinding{
			{ContainerPort: 9090, HostPort: 19090, Protocol: "tcp"},
			{ContainerPort: 5353, HostPort: 15353, Protocol: "udp"},
		}))
}

// TestJournalWritesEvents verifies journal events land in the log file
// as JSON lines.
func TestJournalWritesEvents(t *testing.T) {
	logDir := t.TempDir()

	journal, err := OpenJournal(logDir, "kraken-bot")
	require.NoError(t, err)

	journal.LaunchResolved("SIM", ".env", nil)
	journal.ProcessStarted("/usr/bin/python", 4242)
	journal.ProcessExited(0, 5*time.Second)
	require.NoError(t, journal.Close())

	data, err := os.ReadFile(filepath.Join(logDir, JournalFileName))
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, `"event":"launch-resolved"`)
	assert.Contains(t, content, `"event":"process-started"`)
	assert.Contains(t, content, `"event":"process-exited"`)
	assert.Contains(t, content, `"bot":"kraken-bot"`)
	assert.Contains(t, content, `"mode":"SIM"`)
}
