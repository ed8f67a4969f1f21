package launcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhelpa/krakenops/internal/envfile"
	"github.com/rhelpa/krakenops/internal/model"
)

// TestRunPropagatesEnvironment launches a shell child that dumps its
// environment and verifies the resolved env — including the forced
// MODE — reaches the bot process verbatim.
func TestRunPropagatesEnvironment(t *testing.T) {
	dir := t.TempDir()

	resolved := envfile.Resolve(
		[]string{"PATH=" + os.Getenv("PATH")},
		map[string]string{"MODE": "REAL", "TRADE_PAIR": "XBTUSD"},
		map[string]string{"MODE": "SIM"},
	)

	code, err := Run(context.Background(), Options{
		Command: "/bin/sh",
		Args:    []string{"-c", "env > envdump"},
		Dir:     dir,
		Env:     resolved.Environ(),
	}, NopJournal())
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	dump, err := os.ReadFile(filepath.Join(dir, "envdump"))
	require.NoError(t, err)
	assert.Contains(t, string(dump), "MODE=SIM\n")
	assert.Contains(t, string(dump), "TRADE_PAIR=XBTUSD\n")
	assert.NotContains(t, string(dump), "MODE=REAL")
}

// TestRunPropagatesExitCode verifies the bot's exit status comes back
// as a code, not an error.
func TestRunPropagatesExitCode(t *testing.T) {
	code, err := Run(context.Background(), Options{
		Command: "/bin/sh",
		Args:    []string{"-c", "exit 3"},
		Dir:     t.TempDir(),
		Env:     []string{"PATH=" + os.Getenv("PATH")},
	}, NopJournal())
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

// TestRunMissingCommand verifies an unknown command aborts the launch
// with the bot-not-found exit code.
func TestRunMissingCommand(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Command: "definitely-not-a-real-bot-binary",
		Dir:     t.TempDir(),
		Env:     []string{"PATH=" + os.Getenv("PATH")},
	}, NopJournal())

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitBotNotFound, cliErr.Code)
}

// TestRunMissingVenv verifies a configured but absent virtualenv aborts
// the launch before the bot starts.
func TestRunMissingVenv(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Command: "/bin/sh",
		Args:    []string{"-c", "true"},
		Dir:     t.TempDir(),
		Env:     []string{"PATH=" + os.Getenv("PATH")},
		VenvDir: filepath.Join(t.TempDir(), "no-such-venv"),
	}, NopJournal())

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitBotNotFound, cliErr.Code)
}

// TestApplyVenv verifies the activate-equivalent env rewriting.
func TestApplyVenv(t *testing.T) {
	env := ApplyVenv([]string{
		"PATH=/usr/bin:/bin",
		"PYTHONHOME=/opt/python",
		"VIRTUAL_ENV=/old/venv",
		"HOME=/home/op",
	}, "/srv/bot/venv")

	assert.Contains(t, env, "PATH=/srv/bot/venv/bin:/usr/bin:/bin")
	assert.Contains(t, env, "VIRTUAL_ENV=/srv/bot/venv")
	assert.Contains(t, env, "HOME=/home/op")
	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "PYTHONHOME="), "PYTHONHOME must be dropped: %s", kv)
	}
}

// TestApplyVenvNoPath verifies a PATH is synthesized when the base env
// lacks one.
func TestApplyVenvNoPath(t *testing.T) {
	env := ApplyVenv([]string{"HOME=/home/op"}, "/srv/bot/venv")
	assert.Contains(t, env, "PATH=/srv/bot/venv/bin")
}

// TestResolveCommandPrefersVenv verifies a bare command name resolves to
// the venv's bin directory before PATH.
func TestResolveCommandPrefersVenv(t *testing.T) {
	venv := t.TempDir()
	binDir := filepath.Join(venv, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	fake := filepath.Join(binDir, "python")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\n"), 0o755))

	resolved, err := resolveCommand(venv, "python")
	require.NoError(t, err)
	assert.Equal(t, fake, resolved)
}

// TestResolveCommandAbsolutePath verifies absolute paths bypass the venv
// lookup entirely.
func TestResolveCommandAbsolutePath(t *testing.T) {
	resolved, err := resolveCommand(t.TempDir(), "/bin/sh")
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", resolved)
}
