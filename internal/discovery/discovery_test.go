package discovery

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveHostExplicitAddress(t *testing.T) {
	host, err := ResolveHost("203.0.113.5")
	require.NoError(t, err)
	require.Equal(t, "203.0.113.5", host)
}

func TestResolveHostDNS(t *testing.T) {
	host, err := ResolveHost("dns")
	require.NoError(t, err)
	require.NotEmpty(t, host)
}

func TestResolveHostAuto(t *testing.T) {
	for _, v := range []string{"", "auto"} {
		host, err := ResolveHost(v)
		require.NoError(t, err)
		require.NotEmpty(t, host)
	}
}

func TestListenFindsFreePortInRange(t *testing.T) {
	ln, err := Listen("127.0.0.1", 20000, 20010)
	require.NoError(t, err)
	defer ln.Close()

	addr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok)
	require.GreaterOrEqual(t, addr.Port, 20000)
	require.Less(t, addr.Port, 20010)
}

func TestListenSkipsPortsAlreadyInUse(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	busyPort := occupied.Addr().(*net.TCPAddr).Port

	ln, err := Listen("127.0.0.1", busyPort, busyPort+5)
	require.NoError(t, err)
	defer ln.Close()

	require.NotEqual(t, busyPort, ln.Addr().(*net.TCPAddr).Port)
}

func TestListenReturnsErrorWhenRangeExhausted(t *testing.T) {
	ln, err := Listen("127.0.0.1", 1, 1)
	require.Error(t, err)
	require.Nil(t, ln)
}
