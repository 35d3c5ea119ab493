package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/rabit-tracker/tracker/internal/trackercfg"
)

// newTestCmd builds a cobra.Command with the same flag set init() binds on
// rootCmd, without running rootCmd.Execute (which would parse os.Args).
func newTestCmd() (*cobra.Command, *flags) {
	c := &cobra.Command{Use: "rabit-tracker"}
	f := &flags{}
	fl := c.Flags()
	fl.StringVarP(&f.ConfigPath, "config", "c", "", "")
	fl.IntVar(&f.NumWorkers, "num-workers", 0, "")
	fl.IntVar(&f.NumServers, "num-servers", 0, "")
	fl.StringVar(&f.HostIP, "host-ip", "", "")
	fl.StringVar(&f.LogLevel, "log-level", "", "")
	fl.BoolVar(&f.UseLogger, "use-logger", false, "")
	fl.IntVar(&f.PortStart, "port-start", 0, "")
	fl.IntVar(&f.PortEnd, "port-end", 0, "")
	fl.StringVar(&f.MaxFrameBytes, "max-frame-bytes", "", "")
	return c, f
}

func TestApplyFlagOverridesOnlyTouchesChangedFlags(t *testing.T) {
	c, f := newTestCmd()
	require.NoError(t, c.ParseFlags([]string{"--num-workers=8", "--log-level=DEBUG"}))

	cfg := trackercfg.DefaultConfig()
	cfg.NumWorkers = 2
	cfg.LogLevel = "INFO"
	cfg.HostIP = "10.1.1.1"

	applyFlagOverrides(c, cfg, *f)

	require.Equal(t, 8, cfg.NumWorkers, "explicitly set flag must override")
	require.Equal(t, "DEBUG", cfg.LogLevel, "explicitly set flag must override")
	require.Equal(t, "10.1.1.1", cfg.HostIP, "unset flag must not clobber the loaded config")
}

func TestApplyFlagOverridesNoFlagsLeavesConfigUntouched(t *testing.T) {
	c, f := newTestCmd()
	require.NoError(t, c.ParseFlags(nil))

	cfg := trackercfg.DefaultConfig()
	cfg.NumWorkers = 5
	want := *cfg

	applyFlagOverrides(c, cfg, *f)
	require.Equal(t, want, *cfg)
}

func TestPublishEnvFormatsTheSentinelBlock(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	publishEnv("10.0.0.1", 9091, 4, 0)

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(out, []byte("DMLC_TRACKER_ENV_START\n")))
	require.Contains(t, string(out), "DMLC_NUM_WORKER=4\n")
	require.Contains(t, string(out), "DMLC_NUM_SERVER=0\n")
	require.Contains(t, string(out), "DMLC_TRACKER_URI=10.0.0.1\n")
	require.Contains(t, string(out), "DMLC_TRACKER_PORT=9091\n")
	require.True(t, bytes.HasSuffix(out, []byte("DMLC_TRACKER_ENV_END\n")))
}
