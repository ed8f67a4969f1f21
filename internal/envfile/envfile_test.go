package envfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeEnvFile writes an env file into a temp dir and returns its path.
func writeEnvFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// TestLoadFile verifies basic key=value parsing and comment handling.
func TestLoadFile(t *testing.T) {
	path := writeEnvFile(t, `# credentials live elsewhere
API_KEY=from-file
  # indented comment
MODE=LIVE

POLL_INTERVAL=60
`)

	vals, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", vals["API_KEY"])
	assert.Equal(t, "LIVE", vals["MODE"])
	assert.Equal(t, "60", vals["POLL_INTERVAL"])

	// Comment lines must never surface as variables.
	for key := range vals {
		assert.NotContains(t, key, "#")
	}
	assert.Len(t, vals, 3)
}

// TestLoadFileMissing verifies that an absent env file is not an error —
// the file is optional and the launch proceeds without it.
func TestLoadFileMissing(t *testing.T) {
	vals, err := LoadFile(filepath.Join(t.TempDir(), "no-such.env"))
	assert.NoError(t, err)
	assert.Nil(t, vals)
}

// TestResolvePrecedence verifies the fixed precedence:
// override > file > inherited.
func TestResolvePrecedence(t *testing.T) {
	base := []string{"MODE=LIVE", "HOME=/home/op", "POLL_INTERVAL=10"}
	fileVals := map[string]string{"MODE": "LIVE", "POLL_INTERVAL": "60"}
	overrides := map[string]string{"MODE": "SIM"}

	r := Resolve(base, fileVals, overrides)

	mode, ok := r.Get("MODE")
	require.True(t, ok)
	assert.Equal(t, "SIM", mode, "override must always win")
	assert.Equal(t, SourceOverride, r.Source("MODE"))

	interval, ok := r.Get("POLL_INTERVAL")
	require.True(t, ok)
	assert.Equal(t, "60", interval, "file must beat inherited")
	assert.Equal(t, SourceFile, r.Source("POLL_INTERVAL"))

	home, ok := r.Get("HOME")
	require.True(t, ok)
	assert.Equal(t, "/home/op", home)
	assert.Equal(t, SourceInherited, r.Source("HOME"))
}

// TestResolveCredentialOverride mirrors the credential invariant: for any
// env file defining the credential keys, the resolved values equal the
// launcher-injected values, never the file's.
func TestResolveCredentialOverride(t *testing.T) {
	fileVals := map[string]string{
		"API_KEY":    "stale-committed-key",
		"API_SECRET": "stale-committed-secret",
	}
	overrides := map[string]string{
		"API_KEY":    "runtime-key",
		"API_SECRET": "runtime-secret",
	}

	r := Resolve(nil, fileVals, overrides)

	key, _ := r.Get("API_KEY")
	secret, _ := r.Get("API_SECRET")
	assert.Equal(t, "runtime-key", key)
	assert.Equal(t, "runtime-secret", secret)
}

// TestResolveDiscarded verifies that displaced file values are reported,
// while overrides that displace nothing (or agree with the file) are not.
func TestResolveDiscarded(t *testing.T) {
	fileVals := map[string]string{
		"MODE":    "LIVE",
		"API_KEY": "runtime-key", // agrees with the override
	}
	overrides := map[string]string{
		"MODE":       "SIM",
		"API_KEY":    "runtime-key",
		"API_SECRET": "runtime-secret", // not in the file at all
	}

	r := Resolve(nil, fileVals, overrides)

	discarded := r.Discarded()
	require.Len(t, discarded, 1)
	assert.Equal(t, "MODE", discarded[0].Key)
	assert.Equal(t, "LIVE", discarded[0].FileValue)
}

// TestEnviron verifies the exec-ready rendering is sorted and complete.
func TestEnviron(t *testing.T) {
	r := Resolve([]string{"B=2"}, map[string]string{"A": "1"}, map[string]string{"C": "3"})

	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, r.Environ())
}

// TestRedacted verifies secret masking for display output.
func TestRedacted(t *testing.T) {
	r := Resolve(nil,
		map[string]string{"POLL_INTERVAL": "60"},
		map[string]string{"API_KEY": "runtime-key", "MODE": "SIM"})

	redacted := r.Redacted([]string{"API_KEY", "API_SECRET"})

	assert.Equal(t, "[redacted]", redacted["API_KEY"])
	assert.Equal(t, "SIM", redacted["MODE"])
	assert.Equal(t, "60", redacted["POLL_INTERVAL"])
}
