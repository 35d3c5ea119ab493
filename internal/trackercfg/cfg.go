// Package trackercfg assembles the tracker's configuration from built-in
// defaults, an optional YAML file, and CLI flags, in that order of
// increasing precedence -- the same layering the teacher's coordinator
// config uses (DefaultConfig, then YAML, then flags on top, which
// cmd/tracker applies).
package trackercfg

import (
	"fmt"
	"math"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/rabit-tracker/tracker/internal/logging"
)

// Config is the tracker's fully resolved configuration (§6 CLI surface,
// plus the ambient additions of SPEC_FULL.md §10.3).
type Config struct {
	// NumWorkers is the required world size, unless overridden by the
	// first worker's declared world_size (§4.D lazy initialisation).
	NumWorkers int `yaml:"num_workers"`
	// NumServers must be 0: a standalone parameter-server role is not
	// implemented (§6, §12 item 4).
	NumServers int `yaml:"num_servers"`
	// HostIP is "", "auto", "dns", or an explicit address (§4.E).
	HostIP string `yaml:"host_ip"`
	// LogLevel is "INFO" or "DEBUG" (§6).
	LogLevel string `yaml:"log_level"`
	// UseLogger toggles whether `print` payloads and the tracker's own
	// milestones go through the structured logger or straight to
	// stdout (§9 "Global-state-free design").
	UseLogger bool `yaml:"use_logger"`
	// PortStart/PortEnd bound the bind sweep (§4.E). Default [9091, 9999).
	PortStart int `yaml:"port_start"`
	PortEnd   int `yaml:"port_end"`
	// MaxFrameBytesRaw is the human-friendly form read from YAML/flags
	// (e.g. "64KB"); MaxFrameBytes is the parsed value Validate fills in.
	MaxFrameBytesRaw string            `yaml:"max_frame_bytes"`
	MaxFrameBytes    datasize.ByteSize `yaml:"-"`
}

// DefaultConfig returns the tracker's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		NumServers:       0,
		HostIP:           "auto",
		LogLevel:         "INFO",
		UseLogger:        false,
		PortStart:        9091,
		PortEnd:          9999,
		MaxFrameBytesRaw: "64KB",
		MaxFrameBytes:    64 * datasize.KB,
	}
}

// Load starts from DefaultConfig and overlays a YAML file at path, if
// non-empty.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse YAML configuration: %w", err)
	}
	return cfg, nil
}

// Validate enforces the configuration-error class of §7: conditions that
// must be caught before the accept loop starts.
func (c *Config) Validate() error {
	if c.NumWorkers <= 0 {
		return fmt.Errorf("num-workers is required and must be positive")
	}
	if c.NumServers != 0 {
		return fmt.Errorf("num-servers=%d not implemented: standalone parameter-server mode is unsupported", c.NumServers)
	}
	if c.PortStart >= c.PortEnd {
		return fmt.Errorf("port range [%d, %d) is empty", c.PortStart, c.PortEnd)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(c.MaxFrameBytesRaw)); err != nil {
		return fmt.Errorf("invalid max-frame-bytes %q: %w", c.MaxFrameBytesRaw, err)
	}
	c.MaxFrameBytes = size

	return nil
}

// MaxFrameBytesInt32 clamps MaxFrameBytes to int32, the width the framed
// codec's length prefix uses on the wire.
func (c *Config) MaxFrameBytesInt32() int32 {
	if c.MaxFrameBytes > datasize.ByteSize(math.MaxInt32) {
		return math.MaxInt32
	}
	return int32(c.MaxFrameBytes)
}
