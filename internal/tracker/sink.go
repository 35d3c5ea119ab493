package tracker

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Sink is the tracker's injected logging surface. The underlying source uses
// module-level logging; this interface replaces that global state with two
// operations a caller can wire to whatever backend it likes.
type Sink interface {
	Info(msg string)
	Debug(msg string)
}

// ZapSink adapts a *zap.SugaredLogger to Sink.
type ZapSink struct {
	log *zap.SugaredLogger
}

// NewZapSink wraps log as a Sink.
func NewZapSink(log *zap.SugaredLogger) ZapSink {
	return ZapSink{log: log}
}

func (s ZapSink) Info(msg string) { s.log.Info(msg) }

func (s ZapSink) Debug(msg string) { s.log.Debug(msg) }

// StdoutSink writes print-command payloads straight to stdout, the
// original's behaviour when use_logger is false: a plain print rather than
// routing through the logging subsystem.
type StdoutSink struct{}

func (StdoutSink) Info(msg string) { fmt.Fprintln(os.Stdout, strings.TrimRight(msg, "\n")) }

func (StdoutSink) Debug(msg string) {}
