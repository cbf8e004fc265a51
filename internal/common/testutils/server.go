package testutils

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// GetFreePort returns a free TCP port on host.
func GetFreePort(t *testing.T, host string) int {
	t.Helper()

	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	require.NoError(t, err, "Setup: failed to listen on tcp")
	defer ln.Close()
	addr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok, "Setup: expected TCPAddr")
	return addr.Port
}

// PortOpen checks if a port is open on the specified TCP host.
func PortOpen(t *testing.T, host string, port int) bool {
	t.Helper()

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	defer conn.Close()
	return true
}

// WaitForPortClosed waits until nothing listens on host:port anymore or fails the test after timeout.
func WaitForPortClosed(t *testing.T, host string, port int, timeout time.Duration) {
	t.Helper()

	require.Eventually(t, func() bool {
		return !PortOpen(t, host, port)
	}, timeout, 50*time.Millisecond, "Port %d should have been closed", port)
}
