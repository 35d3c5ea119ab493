// Package tracker implements the rendezvous coordinator (§4.D) and the
// per-connection worker session protocol (§4.C) it drives: the bootstrap
// rendezvous for a collective-communication job.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rabit-tracker/tracker/internal/overlay"
)

// Coordinator owns all rendezvous state (§3) and runs a single accept loop
// over it. It is never re-entered concurrently: every accepted connection
// is dispatched and fully handled before the next Accept call, matching the
// single-threaded ownership model of §5.
type Coordinator struct {
	listener    net.Listener
	sink        Sink
	maxStrBytes int32

	n         int
	topo      *overlay.Topology
	todoNodes []int
	jobMap    map[string]int
	waitConn  map[int]*Entry
	shutdown  map[int]*Entry
	pending   []*Entry

	// start is set once Run begins, so both bracketing milestones of §12
	// item 3 (all nodes started, all nodes finished) can log elapsed time.
	start time.Time
}

// NewCoordinator creates a coordinator that will accept on listener and
// rendezvous exactly n workers, unless the first `start` message overrides
// n with its own world_size (§4.D "Lazy initialisation").
func NewCoordinator(listener net.Listener, n int, sink Sink, maxStrBytes int32) *Coordinator {
	return &Coordinator{
		listener:    listener,
		sink:        sink,
		maxStrBytes: maxStrBytes,
		n:           n,
		jobMap:      make(map[string]int),
		waitConn:    make(map[int]*Entry),
		shutdown:    make(map[int]*Entry),
	}
}

// Run drives the accept loop until every rank has reported shutdown (§3
// invariant 4) or ctx is canceled. It is the functional equivalent of the
// original's accept_workers() plus the join() a caller would do on its
// background thread: Run blocks until termination.
func (c *Coordinator) Run(ctx context.Context) error {
	c.sink.Info(fmt.Sprintf("tracker listening on %s, waiting for %d workers", c.listener.Addr(), c.n))
	c.start = time.Now()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.listener.Close()
		case <-done:
		}
	}()

	boff := &backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         time.Second,
	}
	boff.Reset()

	for len(c.shutdown) != c.n {
		conn, err := c.acceptWithBackoff(boff)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}

		if err := c.handle(conn); err != nil {
			conn.Close()
			return err
		}
	}

	c.sink.Info(fmt.Sprintf("@tracker all nodes finished job in %s", time.Since(c.start)))
	return nil
}

// acceptWithBackoff wraps listener.Accept with the standard accept-retry
// idiom: a transient (temporary) error is retried after a bounded
// exponential backoff instead of aborting the whole job over what is
// usually a momentary resource blip; any other error is returned as-is.
func (c *Coordinator) acceptWithBackoff(boff *backoff.ExponentialBackOff) (net.Conn, error) {
	for {
		conn, err := c.listener.Accept()
		if err == nil {
			boff.Reset()
			return conn, nil
		}

		var ne net.Error
		if !errors.As(err, &ne) || !ne.Timeout() {
			return nil, err
		}

		delay := boff.NextBackOff()
		c.sink.Debug(fmt.Sprintf("transient accept error: %v, retrying in %s", err, delay))
		time.Sleep(delay)
	}
}

// handle processes exactly one accepted connection end to end: resolving
// its peer address, running the session handshake, and dispatching on the
// declared command. A protocol-level error here is fatal for the whole job
// per §7.
func (c *Coordinator) handle(conn net.Conn) error {
	parked := false
	defer func() {
		if !parked {
			conn.Close()
		}
	}()

	peer, err := canonicalPeerHost(conn.RemoteAddr())
	if err != nil {
		return protoErr(-1, conn.RemoteAddr().String(), "resolve peer", err)
	}

	sess := NewSession(conn, peer, c.maxStrBytes)
	entry, err := sess.Handshake()
	if err != nil {
		return err
	}

	switch entry.Cmd {
	case CmdPrint:
		msg, err := sess.ReadPrintMessage()
		if err != nil {
			return err
		}
		c.sink.Info(msg)
		return nil

	case CmdShutdown:
		return c.recordShutdown(entry)

	case CmdStart, CmdRecover:
		// The handshake loop keeps this connection open until the
		// worker finishes wiring up. An immediate assignment completes
		// inside dispatchAssign; a deferred one leaves the entry in
		// c.pending, and its connection is left open for the later
		// call that completes the batch.
		if err := c.dispatchAssign(entry); err != nil {
			return err
		}
		for _, p := range c.pending {
			if p == entry {
				parked = true
			}
		}
		return nil

	default:
		return protoErrf(entry.Rank, peer, "dispatch", "unreachable command %q", entry.Cmd)
	}
}

// recordShutdown implements the `shutdown` command: record rank -> entry,
// enforcing the preconditions of §4.C (rank known, not already recorded,
// not still owing accepts).
func (c *Coordinator) recordShutdown(e *Entry) error {
	if e.Rank < 0 {
		return protoErrf(e.Rank, e.Host, "shutdown", "shutdown from unranked worker")
	}
	if _, ok := c.shutdown[e.Rank]; ok {
		return protoErrf(e.Rank, e.Host, "shutdown", "duplicate shutdown for rank %d", e.Rank)
	}
	if _, ok := c.waitConn[e.Rank]; ok {
		return protoErrf(e.Rank, e.Host, "shutdown", "rank %d still owes inbound accepts", e.Rank)
	}

	c.shutdown[e.Rank] = e
	c.sink.Debug(fmt.Sprintf("received shutdown from rank %d", e.Rank))
	return nil
}

// dispatchAssign implements the `start`/`recover` path of §4.D: lazy
// overlay initialisation, rank decision, and either batched or immediate
// assignment.
func (c *Coordinator) dispatchAssign(e *Entry) error {
	if c.topo == nil {
		if e.Cmd != CmdStart {
			return protoErrf(e.Rank, e.Host, "lazy init", "first session must be start, got %s", e.Cmd)
		}
		if e.WorldSize > 0 {
			c.n = e.WorldSize
		}
		topo, err := overlay.Build(c.n)
		if err != nil {
			return protoErr(e.Rank, e.Host, "build overlay", err)
		}
		c.topo = topo
		c.todoNodes = make([]int, c.n)
		for i := range c.todoNodes {
			c.todoNodes[i] = i
		}
	} else if e.WorldSize != -1 && e.WorldSize != c.n {
		return protoErrf(e.Rank, e.Host, "world_size", "declared world_size %d, expected -1 or %d", e.WorldSize, c.n)
	}

	if e.Cmd == CmdRecover && e.Rank < 0 {
		return protoErrf(e.Rank, e.Host, "recover", "recover requires an explicit rank")
	}

	rank := c.decideRank(e)
	if rank == -1 {
		return c.deferAssignment(e)
	}
	return c.assignNow(e, rank)
}

// decideRank implements §4.D "Rank decision": explicit rank wins, then
// job-id stickiness, else defer to batch assignment.
func (c *Coordinator) decideRank(e *Entry) int {
	if e.Rank >= 0 {
		return e.Rank
	}
	if e.JobID != NoJob {
		if r, ok := c.jobMap[e.JobID]; ok {
			return r
		}
	}
	return -1
}

// deferAssignment appends e to the pending batch and, once every
// to-do rank has a pending session, sorts by host and assigns ranks
// front-to-back (§4.D "Batch assignment").
func (c *Coordinator) deferAssignment(e *Entry) error {
	if len(c.todoNodes) == 0 {
		return protoErrf(e.Rank, e.Host, "batch assignment", "no ranks left to assign")
	}

	c.pending = append(c.pending, e)
	if len(c.pending) != len(c.todoNodes) {
		return nil
	}

	sort.SliceStable(c.pending, func(i, j int) bool {
		return c.pending[i].Host < c.pending[j].Host
	})

	batch := c.pending
	c.pending = nil

	for _, s := range batch {
		rank := c.todoNodes[0]
		c.todoNodes = c.todoNodes[1:]

		if s.JobID != NoJob {
			c.jobMap[s.JobID] = rank
		}

		if _, err := AssignRank(s, rank, c.waitConn, c.topo); err != nil {
			return err
		}
		if s.WaitAccept > 0 {
			c.waitConn[rank] = s
		}
		c.sink.Debug(fmt.Sprintf("received %s from %s; assigned rank %d", s.Cmd, s.Host, s.Rank))
	}

	if len(c.todoNodes) == 0 {
		c.sink.Info(fmt.Sprintf("@tracker all of %d nodes getting started in %s", c.n, time.Since(c.start)))
	}
	return nil
}

// assignNow wires a non-deferred session immediately (explicit rank or
// job-id reuse): §4.D "Non-deferred assignment".
func (c *Coordinator) assignNow(e *Entry, rank int) error {
	if _, err := AssignRank(e, rank, c.waitConn, c.topo); err != nil {
		return err
	}
	if e.WaitAccept > 0 {
		c.waitConn[rank] = e
	}
	c.sink.Debug(fmt.Sprintf("received %s from rank %d", e.Cmd, e.Rank))
	return nil
}

// Close releases the accept socket. Safe to call after Run returns.
func (c *Coordinator) Close() error {
	return c.listener.Close()
}

// canonicalPeerHost resolves a connection's peer address into the
// canonical string form used for the batch-sort key and for advertising
// this worker as a dial target to its peers (§12 item 5: the original
// calls getaddrinfo on the raw peer address rather than trusting it
// verbatim, which matters for IPv4-mapped IPv6 and scoped addresses).
func canonicalPeerHost(addr net.Addr) (string, error) {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", fmt.Errorf("split host/port: %w", err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return host, nil
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String(), nil
	}
	return ip.String(), nil
}
