// Package port implements host-port availability checks for container
// launches.
//
// Before a bot container is created, every requested host port is probed
// so the launch fails up front with a clear port-conflict error instead of
// the container silently failing to bind (or shadowing another service).
// Probing asks the OS directly via net.Listen / net.ListenPacket rather
// than parsing /proc/net/* or shelling out to lsof/ss, which may require
// elevated permissions.
package port

import (
	"fmt"
	"net"

	"github.com/rhelpa/krakenops/internal/model"
)

const (
	// dynamicRangeStart is the start of the IANA dynamic/private port
	// range. The --auto-port fallback searches here for a free port when
	// the requested one is taken.
	dynamicRangeStart = 49152

	// dynamicRangeEnd is the end of the dynamic port range.
	dynamicRangeEnd = 65535
)

// Scanner checks whether specific ports are available on the host.
//
// The struct is stateless; it exists as a receiver so future options
// (bind address, timeout) can be added without breaking the API, and so
// it can be injected as a dependency in tests.
type Scanner struct{}

// NewScanner creates a new Scanner instance.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsPortAvailable checks whether a single port is free on the host.
//
// A successful bind means the port is free; the listener is closed
// immediately. The bind targets all interfaces (":port") because Docker
// publishes ports on 0.0.0.0, so the same address space must be probed
// to avoid false positives.
func (s *Scanner) IsPortAvailable(port int, protocol string) bool {
	addr := fmt.Sprintf(":%d", port)

	switch protocol {
	case "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = listener.Close() }()
		return true

	case "udp":
		// UDP is connectionless, so ListenPacket is the probe.
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = conn.Close() }()
		return true

	default:
		// Unknown protocol — treat as unavailable to fail safe.
		return false
	}
}

// CheckBindings probes every binding's host port and returns the ports
// that are already in use. An empty result means the launch can proceed.
func (s *Scanner) CheckBindings(bindings []model.PortBinding) []int {
	var conflicts []int
	for _, b := range bindings {
		if !s.IsPortAvailable(b.HostPort, b.Protocol) {
			conflicts = append(conflicts, b.HostPort)
		}
	}
	return conflicts
}

// FreeDynamicPort scans the IANA dynamic range for a free port of the
// given protocol. Used by --auto-port when a requested host port is taken.
//
// Returns a CLIError with ExitPortConflict if the whole range is
// exhausted, which on a sane host means something else is wrong.
func (s *Scanner) FreeDynamicPort(protocol string) (int, error) {
	return s.FreeDynamicPortExcluding(protocol, nil)
}

// FreeDynamicPortExcluding is FreeDynamicPort with an exclusion set.
// Probing does not hold the port, so a caller reassigning several
// bindings in one pass excludes the ports it already handed out.
func (s *Scanner) FreeDynamicPortExcluding(protocol string, exclude map[int]bool) (int, error) {
	for port := dynamicRangeStart; port <= dynamicRangeEnd; port++ {
		if exclude[port] {
			continue
		}
		if s.IsPortAvailable(port, protocol) {
			return port, nil
		}
	}
	return 0, model.NewCLIError(model.ExitPortConflict,
		fmt.Sprintf("no free %s port in the dynamic range %d-%d",
			protocol, dynamicRangeStart, dynamicRangeEnd))
}
