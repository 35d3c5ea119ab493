package tracker

import "github.com/rabit-tracker/tracker/internal/wire"

// Command is one of the four verbs a worker connection can issue.
type Command string

const (
	CmdStart    Command = "start"
	CmdRecover  Command = "recover"
	CmdShutdown Command = "shutdown"
	CmdPrint    Command = "print"
)

// NoJob is the sentinel jobid meaning "no logical slot requested".
const NoJob = "NULL"

// magic is exchanged at the start of every connection to guard against a
// misconfigured or unrelated protocol connecting to the tracker's port.
const magic int32 = 0xFF99

// Entry represents one live inbound worker connection (§3 "Worker entry").
// It is created on accept and lives until it is either fully wired (removed
// from wait_conn once WaitAccept reaches zero) or its shutdown has been
// recorded.
type Entry struct {
	conn *wire.Conn

	// Host is the resolved peer address string, used as the batch
	// assignment sort key and handed to other workers as a dial target.
	Host string

	// Rank is the rank declared by the worker, or -1 if unknown until
	// assigned.
	Rank int

	// WorldSize is the world size asserted by the worker, or -1 if
	// unknown.
	WorldSize int

	// JobID is "NULL" when the worker requested no job-id stickiness.
	JobID string

	// Cmd is the command this session issued.
	Cmd Command

	// Port is the worker's own listening port, known only once the
	// handshake loop (§4.C) reaches its terminal step.
	Port int

	// WaitAccept is the number of inbound peer connections this worker
	// still owes to others (§3 invariant 3: present in wait_conn iff
	// WaitAccept > 0).
	WaitAccept int
}
