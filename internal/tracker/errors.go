package tracker

import "fmt"

// ProtocolError marks a violation of the tracker's wire protocol (bad magic,
// a good-set that isn't a subset of the neighbour set, a duplicate
// shutdown, a mismatched world_size, ...). Per §7, a ProtocolError is fatal
// for the whole job: the tracker has no way to quarantine one misbehaving
// worker and continue, since the collective cannot proceed without the full
// set of N.
type ProtocolError struct {
	Rank int // -1 if not yet known
	Peer string
	Op   string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Rank >= 0 {
		return fmt.Sprintf("protocol violation from rank %d (%s) during %s: %v", e.Rank, e.Peer, e.Op, e.Err)
	}
	return fmt.Sprintf("protocol violation from %s during %s: %v", e.Peer, e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protoErr(rank int, peer, op string, err error) error {
	return &ProtocolError{Rank: rank, Peer: peer, Op: op, Err: err}
}

func protoErrf(rank int, peer, op, format string, args ...any) error {
	return &ProtocolError{Rank: rank, Peer: peer, Op: op, Err: fmt.Errorf(format, args...)}
}
