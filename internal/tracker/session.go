package tracker

import (
	"io"

	"github.com/rabit-tracker/tracker/internal/overlay"
	"github.com/rabit-tracker/tracker/internal/wire"
)

// Session drives the per-connection protocol described in §4.C: magic
// exchange, header read, then whatever the dispatched command requires. One
// Session exists per accepted connection and is handled synchronously by
// the single coordinator loop (§5).
type Session struct {
	conn *wire.Conn
	peer string
}

// NewSession wraps rw (already connected to peer) with the tracker's
// session protocol. maxStrBytes bounds string allocations, see
// internal/wire.
func NewSession(rw io.ReadWriter, peer string, maxStrBytes int32) *Session {
	return &Session{conn: wire.New(rw, maxStrBytes), peer: peer}
}

// Handshake performs the magic exchange and reads the connection header,
// returning a fresh Entry describing what the worker is asking for. A bad
// magic is fatal for the job (§7): the tracker does not merely close this
// one connection and move on, since a stray connection on the tracker's
// port indicates something is badly wrong with the deployment.
func (s *Session) Handshake() (*Entry, error) {
	got, err := s.conn.ReadInt()
	if err != nil {
		return nil, protoErr(-1, s.peer, "magic read", err)
	}
	if got != magic {
		return nil, protoErrf(-1, s.peer, "magic exchange", "invalid magic 0x%x from %s", got, s.peer)
	}
	if err := s.conn.WriteInt(magic); err != nil {
		return nil, protoErr(-1, s.peer, "magic echo", err)
	}

	rank, err := s.conn.ReadInt()
	if err != nil {
		return nil, protoErr(-1, s.peer, "read rank", err)
	}
	worldSize, err := s.conn.ReadInt()
	if err != nil {
		return nil, protoErr(-1, s.peer, "read world_size", err)
	}
	jobID, err := s.conn.ReadString()
	if err != nil {
		return nil, protoErr(-1, s.peer, "read jobid", err)
	}
	cmd, err := s.conn.ReadString()
	if err != nil {
		return nil, protoErr(-1, s.peer, "read cmd", err)
	}

	e := &Entry{
		conn:      s.conn,
		Host:      s.peer,
		Rank:      int(rank),
		WorldSize: int(worldSize),
		JobID:     jobID,
		Cmd:       Command(cmd),
	}

	switch e.Cmd {
	case CmdStart, CmdRecover, CmdShutdown, CmdPrint:
		return e, nil
	default:
		return nil, protoErrf(int(rank), s.peer, "header", "unknown command %q", cmd)
	}
}

// ReadPrintMessage reads the single additional string a `print` session
// carries.
func (s *Session) ReadPrintMessage() (string, error) {
	msg, err := s.conn.ReadString()
	if err != nil {
		return "", protoErr(-1, s.peer, "read print message", err)
	}
	return msg, nil
}

// AssignRank runs the rank-delivery and peer-wiring sub-protocol of §4.C
// against e's connection: it sends the rank packet, then loops the
// good/bad handshake until the worker reports nerr == 0 and hands over its
// listening port. waitConn is mutated in place: entries whose WaitAccept
// reaches zero are removed and returned in rm.
func AssignRank(e *Entry, rank int, waitConn map[int]*Entry, topo *overlay.Topology) (rm []int, err error) {
	e.Rank = rank

	neighbours := topo.Tree[rank]
	nn := make(map[int]struct{}, len(neighbours)+2)
	for _, r := range neighbours {
		nn[r] = struct{}{}
	}

	ring := topo.Ring[rank]

	if err := e.conn.WriteInt(int32(rank)); err != nil {
		return nil, protoErr(rank, e.Host, "send rank", err)
	}
	if err := e.conn.WriteInt(int32(topo.Parent[rank])); err != nil {
		return nil, protoErr(rank, e.Host, "send parent", err)
	}
	if err := e.conn.WriteInt(int32(topo.N)); err != nil {
		return nil, protoErr(rank, e.Host, "send world_size", err)
	}
	if err := e.conn.WriteInt(int32(len(neighbours))); err != nil {
		return nil, protoErr(rank, e.Host, "send num_tree_neighbours", err)
	}
	for _, r := range neighbours {
		if err := e.conn.WriteInt(int32(r)); err != nil {
			return nil, protoErr(rank, e.Host, "send tree neighbour", err)
		}
	}

	if ring.Prev != -1 && ring.Prev != rank {
		nn[ring.Prev] = struct{}{}
		if err := e.conn.WriteInt(int32(ring.Prev)); err != nil {
			return nil, protoErr(rank, e.Host, "send ring_prev", err)
		}
	} else if err := e.conn.WriteInt(-1); err != nil {
		return nil, protoErr(rank, e.Host, "send ring_prev", err)
	}
	if ring.Next != -1 && ring.Next != rank {
		nn[ring.Next] = struct{}{}
		if err := e.conn.WriteInt(int32(ring.Next)); err != nil {
			return nil, protoErr(rank, e.Host, "send ring_next", err)
		}
	} else if err := e.conn.WriteInt(-1); err != nil {
		return nil, protoErr(rank, e.Host, "send ring_next", err)
	}

	for {
		ngood, err := e.conn.ReadInt()
		if err != nil {
			return nil, protoErr(rank, e.Host, "read ngood", err)
		}
		good := make(map[int]struct{}, ngood)
		for i := int32(0); i < ngood; i++ {
			r, err := e.conn.ReadInt()
			if err != nil {
				return nil, protoErr(rank, e.Host, "read good rank", err)
			}
			good[int(r)] = struct{}{}
		}
		for r := range good {
			if _, ok := nn[r]; !ok {
				return nil, protoErrf(rank, e.Host, "good set", "good rank %d is not a neighbour of %d", r, rank)
			}
		}

		var bad, con []int
		for r := range nn {
			if _, ok := good[r]; ok {
				continue
			}
			bad = append(bad, r)
			if _, ok := waitConn[r]; ok {
				con = append(con, r)
			}
		}

		if err := e.conn.WriteInt(int32(len(con))); err != nil {
			return nil, protoErr(rank, e.Host, "send ncon", err)
		}
		if err := e.conn.WriteInt(int32(len(bad) - len(con))); err != nil {
			return nil, protoErr(rank, e.Host, "send nmissing", err)
		}
		for _, r := range con {
			peer := waitConn[r]
			if err := e.conn.WriteString(peer.Host); err != nil {
				return nil, protoErr(rank, e.Host, "send peer host", err)
			}
			if err := e.conn.WriteInt(int32(peer.Port)); err != nil {
				return nil, protoErr(rank, e.Host, "send peer port", err)
			}
			if err := e.conn.WriteInt(int32(r)); err != nil {
				return nil, protoErr(rank, e.Host, "send peer rank", err)
			}
		}

		nerr, err := e.conn.ReadInt()
		if err != nil {
			return nil, protoErr(rank, e.Host, "read nerr", err)
		}
		if nerr != 0 {
			continue
		}

		port, err := e.conn.ReadInt()
		if err != nil {
			return nil, protoErr(rank, e.Host, "read listening port", err)
		}
		e.Port = int(port)

		var removed []int
		for _, r := range con {
			waitConn[r].WaitAccept--
			if waitConn[r].WaitAccept == 0 {
				removed = append(removed, r)
			}
		}
		for _, r := range removed {
			delete(waitConn, r)
		}

		e.WaitAccept = len(bad) - len(con)
		return removed, nil
	}
}
