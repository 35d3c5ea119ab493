// Package discovery resolves a bindable host address and a free port for
// the tracker to listen on, and exposes the pair workers will be told to
// connect to (§4.E).
package discovery

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// ResolveHost returns the address the tracker should bind and advertise,
// matching the `--host-ip <string|auto|dns>` surface of §6: "", "auto", and
// the empty string all mean automatic discovery; "dns" resolves the local
// FQDN; anything else is used verbatim as an explicit address.
func ResolveHost(hostIP string) (string, error) {
	switch hostIP {
	case "", "auto":
		return resolveAutoHost()
	case "dns":
		fqdn, err := os.Hostname()
		if err != nil {
			return "", fmt.Errorf("resolve fqdn: %w", err)
		}
		return fqdn, nil
	default:
		return hostIP, nil
	}
}

// resolveAutoHost resolves the FQDN and takes the first non-loopback
// address; if that fails (or yields nothing routable) it falls back to
// opening a UDP "connection" to an unreachable public address and reading
// back the local endpoint the OS chose for it -- a socket is never actually
// sent on, so the destination does not need to be reachable.
func resolveAutoHost() (string, error) {
	if ip, err := firstNonLoopback(); err == nil {
		return ip, nil
	}

	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return "", fmt.Errorf("fallback udp dial: %w", err)
	}
	defer conn.Close()

	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return "", fmt.Errorf("split local addr: %w", err)
	}
	return host, nil
}

func firstNonLoopback() (string, error) {
	fqdn, err := os.Hostname()
	if err != nil {
		return "", err
	}
	addrs, err := net.LookupHost(fqdn)
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip != nil && !ip.IsLoopback() {
			return a, nil
		}
	}
	return "", fmt.Errorf("no non-loopback address for %s", fqdn)
}

// Listen binds a TCP listener on host, scanning ports [start, end) and
// skipping only "address already in use" errors; any other bind failure is
// fatal (§4.E, §9 Open Questions: keyed on syscall.EADDRINUSE rather than
// the platform-specific errno literals 98/48 the original hardcodes, and on
// the kernel-default backlog rather than a fixed 256 -- see DESIGN.md).
func Listen(host string, start, end int) (net.Listener, error) {
	for port := start; port < end; port++ {
		addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("bind %s: %w", addr, err)
		}
	}

	return nil, fmt.Errorf("no free port in range [%d, %d) on %s", start, end, host)
}
