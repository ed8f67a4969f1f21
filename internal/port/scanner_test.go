package port

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhelpa/krakenops/internal/model"
)

// occupyTCP binds a TCP port and returns it, keeping the listener open
// for the duration of the test.
func occupyTCP(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	return listener.Addr().(*net.TCPAddr).Port
}

// TestIsPortAvailable verifies detection of free and occupied TCP ports.
func TestIsPortAvailable(t *testing.T) {
	s := NewScanner()

	busy := occupyTCP(t)
	assert.False(t, s.IsPortAvailable(busy, "tcp"), "occupied port should be unavailable")

	// Find a free port by binding and immediately releasing it. There is
	// an inherent race here, but in a test environment the port will not
	// be grabbed between the release and the check.
	probe, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	free := probe.Addr().(*net.TCPAddr).Port
	require.NoError(t, probe.Close())

	assert.True(t, s.IsPortAvailable(free, "tcp"), "released port should be available")
}

// TestIsPortAvailableUnknownProtocol verifies the fail-safe default.
func TestIsPortAvailableUnknownProtocol(t *testing.T) {
	s := NewScanner()
	assert.False(t, s.IsPortAvailable(9090, "sctp"))
}

// TestCheckBindings verifies conflict reporting across a binding set.
func TestCheckBindings(t *testing.T) {
	s := NewScanner()
	busy := occupyTCP(t)

	probe, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	free := probe.Addr().(*net.TCPAddr).Port
	require.NoError(t, probe.Close())

	conflicts := s.CheckBindings([]model.PortBinding{
		{ContainerPort: 9090, HostPort: busy, Protocol: "tcp"},
		{ContainerPort: 8080, HostPort: free, Protocol: "tcp"},
	})

	assert.Equal(t, []int{busy}, conflicts)
}

// TestFreeDynamicPort verifies the fallback finds a usable port in the
// dynamic range.
func TestFreeDynamicPort(t *testing.T) {
	s := NewScanner()

	port, err := s.FreeDynamicPort("tcp")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, dynamicRangeStart)
	assert.LessOrEqual(t, port, dynamicRangeEnd)

	// The returned port must actually be bindable.
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	require.NoError(t, err)
	_ = listener.Close()
}

// TestFreeDynamicPortExcluding verifies excluded ports are skipped even
// when they are free.
func TestFreeDynamicPortExcluding(t *testing.T) {
	s := NewScanner()

	first, err := s.FreeDynamicPort("tcp")
	require.NoError(t, err)

	second, err := s.FreeDynamicPortExcluding("tcp", map[int]bool{first: true})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
