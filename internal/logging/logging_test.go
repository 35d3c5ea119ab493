package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"INFO", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"debug", 0, true},
		{"", 0, true},
		{"WARN", 0, true},
	}

	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if c.wantErr {
			require.Errorf(t, err, "ParseLevel(%q)", c.in)
			continue
		}
		require.NoErrorf(t, err, "ParseLevel(%q)", c.in)
		require.Equal(t, c.want, got)
	}
}

func TestInitBuildsAWorkingLogger(t *testing.T) {
	log, level, err := Init("DEBUG")
	require.NoError(t, err)
	require.NotNil(t, log)
	require.Equal(t, zapcore.DebugLevel, level.Level())
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	_, _, err := Init("TRACE")
	require.Error(t, err)
}
