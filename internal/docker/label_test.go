package docker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhelpa/krakenops/internal/model"
)

// testInstance returns a representative container-launched instance.
func testInstance() *model.BotInstance {
	return &model.BotInstance{
		Name:    "kraken-bot",
		Mode:    "SIM",
		Kind:    model.KindContainer,
		EnvFile: ".env",
		Ports: []model.PortBinding{
			{ContainerPort: 9090, HostPort: 19090, Protocol: "tcp"},
			{ContainerPort: 8080, HostPort: 18080, Protocol: "tcp"},
		},
		LaunchedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// TestBuildLabels verifies the full label schema for an instance.
func TestBuildLabels(t *testing.T) {
	labels := BuildLabels(testInstance())

	assert.Equal(t, "krakenops", labels[LabelManagedBy])
	assert.Equal(t, "kraken-bot", labels[LabelName])
	assert.Equal(t, "SIM", labels[LabelMode])
	assert.Equal(t, ".env", labels[LabelEnvFile])
	assert.Equal(t, "2025-06-01T12:00:00Z", labels[LabelLaunchedAt])
	assert.Equal(t, "19090", labels[LabelPortPrefix+"9090"])
	assert.Equal(t, "18080", labels[LabelPortPrefix+"8080"])
}

// TestBuildLabelsOmitsEmptyEnvFile verifies the env-file label is absent
// when no env file was used, so ParseLabels round-trips the empty value.
func TestBuildLabelsOmitsEmptyEnvFile(t *testing.T) {
	inst := testInstance()
	inst.EnvFile = ""

	labels := BuildLabels(inst)
	_, present := labels[LabelEnvFile]
	assert.False(t, present)
}

// TestParseLabelsRoundTrip verifies BuildLabels → ParseLabels preserves
// the instance metadata, with bindings sorted by container port.
func TestParseLabelsRoundTrip(t *testing.T) {
	original := testInstance()
	labels := BuildLabels(original)

	parsed, err := ParseLabels(labels)
	require.NoError(t, err)

	assert.Equal(t, original.Name, parsed.Name)
	assert.Equal(t, original.Mode, parsed.Mode)
	assert.Equal(t, model.KindContainer, parsed.Kind)
	assert.Equal(t, original.EnvFile, parsed.EnvFile)
	assert.True(t, original.LaunchedAt.Equal(parsed.LaunchedAt))

	require.Len(t, parsed.Ports, 2)
	assert.Equal(t, 8080, parsed.Ports[0].ContainerPort)
	assert.Equal(t, 9090, parsed.Ports[1].ContainerPort)
}

// TestParseLabelsMissingName verifies the corrupt-state error.
func TestParseLabelsMissingName(t *testing.T) {
	_, err := ParseLabels(map[string]string{LabelManagedBy: ManagedByValue})
	assert.Error(t, err)
}

// TestParseLabelsBadTimestamp verifies a malformed timestamp degrades to
// the zero time instead of failing.
func TestParseLabelsBadTimestamp(t *testing.T) {
	labels := BuildLabels(testInstance())
	labels[LabelLaunchedAt] = "yesterday-ish"

	parsed, err := ParseLabels(labels)
	require.NoError(t, err)
	assert.True(t, parsed.LaunchedAt.IsZero())
}

// TestParsePortLabelsInvalid verifies malformed port labels are rejected.
func TestParsePortLabelsInvalid(t *testing.T) {
	t.Run("bad key", func(t *testing.T) {
		_, err := ParsePortLabels(map[string]string{LabelPortPrefix + "http": "19090"})
		assert.Error(t, err)
	})

	t.Run("bad value", func(t *testing.T) {
		_, err := ParsePortLabels(map[string]string{LabelPortPrefix + "9090": "lots"})
		assert.Error(t, err)
	})
}
