package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := New(client, 0)
	s := New(server, 0)

	values := []int32{0, 1, -1, 42, -42, 1 << 20, -(1 << 20)}

	go func() {
		for _, v := range values {
			require.NoError(t, c.WriteInt(v))
		}
	}()

	for _, want := range values {
		got, err := s.ReadInt()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestStringRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := New(client, 0)
	s := New(server, 0)

	strs := []string{"", "hello", "NULL", "a-job-id-with-dashes"}

	go func() {
		for _, v := range strs {
			require.NoError(t, c.WriteString(v))
		}
	}()

	for _, want := range strs {
		got, err := s.ReadString()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestReadStringRejectsOversizedLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := New(client, 8) // max 8 bytes
	s := New(server, 8)

	go func() {
		require.NoError(t, c.WriteInt(9999))
	}()

	_, err := s.ReadString()
	require.Error(t, err)
}

func TestReadStringRejectsNegativeLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := New(client, 0)
	s := New(server, 0)

	go func() {
		require.NoError(t, c.WriteInt(-1))
	}()

	_, err := s.ReadString()
	require.Error(t, err)
}

func TestReadFullShortReadIsError(t *testing.T) {
	client, server := net.Pipe()

	go func() {
		client.Write([]byte{0x01})
		client.Close()
	}()

	_, err := New(server, 0).ReadInt()
	require.Error(t, err)
}
