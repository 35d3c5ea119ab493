package trackercfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumWorkers = 4
	require.NoError(t, cfg.Validate())
	require.Equal(t, 64*datasize.KB, cfg.MaxFrameBytes)
}

func TestValidateRejectsMissingNumWorkers(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsParameterServerMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumWorkers = 2
	cfg.NumServers = 1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyPortRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumWorkers = 2
	cfg.PortStart = 9000
	cfg.PortEnd = 9000
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumWorkers = 2
	cfg.LogLevel = "TRACE"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnparsableFrameSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumWorkers = 2
	cfg.MaxFrameBytesRaw = "not-a-size"
	require.Error(t, cfg.Validate())
}

func TestMaxFrameBytesInt32Clamps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFrameBytes = datasize.ByteSize(1) << 40 // 1TB, far beyond int32
	require.Equal(t, int32(2147483647), cfg.MaxFrameBytesInt32())
}

func TestLoadOverlaysYAMLOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker.yaml")
	body := []byte("num_workers: 8\nlog_level: DEBUG\nport_start: 10000\nport_end: 10100\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.NumWorkers)
	require.Equal(t, "DEBUG", cfg.LogLevel)
	require.Equal(t, 10000, cfg.PortStart)
	require.Equal(t, 10100, cfg.PortEnd)
	// untouched fields retain their defaults
	require.Equal(t, "auto", cfg.HostIP)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
