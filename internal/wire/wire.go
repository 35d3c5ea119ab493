// Package wire implements the tracker's framed wire codec: length-prefixed
// strings and fixed-width native-endian 32-bit integers over a stream.
//
// The counterpart on the worker side is built against the same machine and
// reads/writes the identical native-width layout, so this package must match
// it exactly rather than normalize to a fixed byte order.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// nativeOrder mirrors the worker counterpart's use of struct.pack("@i", ...):
// the integer layout must match this machine's native byte order, not a
// fixed wire-endianness.
var nativeOrder = binary.NativeEndian

// Conn wraps a stream with the tracker's framing primitives. It does not own
// the underlying stream; callers are responsible for closing it.
type Conn struct {
	rw          io.ReadWriter
	maxStrBytes int32
}

// New wraps rw with the tracker's framing. maxStrBytes bounds the length a
// single ReadString call will allocate for; a peer advertising a length
// beyond that is treated as a protocol violation rather than trusted
// verbatim, since it did not originate in-process. A maxStrBytes of zero
// or less disables the upper bound; negative lengths are always rejected.
func New(rw io.ReadWriter, maxStrBytes int32) *Conn {
	return &Conn{rw: rw, maxStrBytes: maxStrBytes}
}

// ReadFull reads exactly len(buf) bytes, looping until satisfied. A short
// read before buf is filled (including on peer close) is a fatal error for
// the connection.
func (c *Conn) ReadFull(buf []byte) error {
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return fmt.Errorf("short read (wanted %d bytes): %w", len(buf), err)
	}
	return nil
}

// ReadInt reads a signed 32-bit integer in native byte order.
func (c *Conn) ReadInt() (int32, error) {
	var buf [4]byte
	if err := c.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return int32(nativeOrder.Uint32(buf[:])), nil
}

// WriteInt writes a signed 32-bit integer in native byte order.
func (c *Conn) WriteInt(v int32) error {
	var buf [4]byte
	nativeOrder.PutUint32(buf[:], uint32(v))
	if _, err := c.rw.Write(buf[:]); err != nil {
		return fmt.Errorf("write int32: %w", err)
	}
	return nil
}

// WriteString writes a length-prefixed string as (int32 length, UTF-8
// bytes).
func (c *Conn) WriteString(s string) error {
	if err := c.WriteInt(int32(len(s))); err != nil {
		return err
	}
	if _, err := io.WriteString(c.rw, s); err != nil {
		return fmt.Errorf("write string body: %w", err)
	}
	return nil
}

// ReadString reads the inverse of WriteString. A negative or
// over-maxStrBytes length is a protocol violation: the length comes from an
// untrusted peer and must never be used to drive an unbounded allocation.
func (c *Conn) ReadString() (string, error) {
	n, err := c.ReadInt()
	if err != nil {
		return "", err
	}
	if n < 0 || (c.maxStrBytes > 0 && n > c.maxStrBytes) {
		return "", fmt.Errorf("string length %d exceeds bound %d", n, c.maxStrBytes)
	}
	buf := make([]byte, n)
	if err := c.ReadFull(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
