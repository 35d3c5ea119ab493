// Package logging builds the tracker's operational logger: structured,
// TTY-aware, and leveled via the --log-level flag (§6).
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// ParseLevel maps the CLI surface's `--log-level` values (§6: INFO or
// DEBUG) onto a zapcore.Level. Any other value is a configuration error,
// fatal before the accept loop starts (§7).
func ParseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "INFO":
		return zapcore.InfoLevel, nil
	case "DEBUG":
		return zapcore.DebugLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level %q, must be INFO or DEBUG", s)
	}
}

// Init builds the tracker's logger at levelStr (one of ParseLevel's two
// accepted values): console-encoded, TTY-aware colored levels, stderr-only.
// Unlike a control-plane daemon juggling multiple named loggers from a
// nested YAML block, the tracker has exactly one logger fed by exactly one
// CLI flag, so Init takes that flag's raw value directly rather than
// routing it through a standalone Config type nothing else populates.
func Init(levelStr string) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build tracker logger: %w", err)
	}

	return logger.Sugar(), cfg.Level, nil
}
