// Command tracker is the standalone entry point for the rendezvous
// tracker: the thin launcher-facing wrapper around internal/tracker that
// parses arguments, resolves an endpoint, and publishes it to whatever
// spawned the workers (§1, §6, §12 item 1).
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rabit-tracker/tracker/internal/discovery"
	"github.com/rabit-tracker/tracker/internal/logging"
	"github.com/rabit-tracker/tracker/internal/trackercfg"
	"github.com/rabit-tracker/tracker/internal/tracker"
	"github.com/rabit-tracker/tracker/internal/xcmd"
)

// flags mirrors the CLI surface of §6, bound onto rootCmd in init(). Only
// the flags the user actually set are applied on top of the loaded config,
// so "--config" defaults and CLI flags layer the way §10.3 describes.
type flags struct {
	ConfigPath    string
	NumWorkers    int
	NumServers    int
	HostIP        string
	LogLevel      string
	UseLogger     bool
	PortStart     int
	PortEnd       int
	MaxFrameBytes string
}

var cmd flags

var rootCmd = &cobra.Command{
	Use:   "rabit-tracker",
	Short: "Bootstrap rendezvous tracker for a collective-communication job",
	RunE: func(c *cobra.Command, _ []string) error {
		if err := run(c, cmd); err != nil {
			if errors.As(err, &xcmd.Interrupted{}) {
				return nil
			}
			return err
		}
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to an optional YAML configuration file")
	f.IntVar(&cmd.NumWorkers, "num-workers", 0, "Number of worker processes to be launched (required)")
	f.IntVar(&cmd.NumServers, "num-servers", 0, "Number of server processes; only 0 is supported")
	f.StringVar(&cmd.HostIP, "host-ip", "", "Host IP address: a literal address, \"auto\", or \"dns\"")
	f.StringVar(&cmd.LogLevel, "log-level", "", "Logging level of the logger: INFO or DEBUG")
	f.BoolVar(&cmd.UseLogger, "use-logger", false, "Route print/milestone output through the structured logger instead of stdout")
	f.IntVar(&cmd.PortStart, "port-start", 0, "First port to try when binding the tracker listener")
	f.IntVar(&cmd.PortEnd, "port-end", 0, "End of the port range to try (exclusive)")
	f.StringVar(&cmd.MaxFrameBytes, "max-frame-bytes", "", "Upper bound on a single framed string allocation, e.g. 64KB")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cobra.Command, f flags) error {
	cfg, err := trackercfg.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(c, cfg, f)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, _, err := logging.Init(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	host, err := discovery.ResolveHost(cfg.HostIP)
	if err != nil {
		return fmt.Errorf("resolve host: %w", err)
	}

	listener, err := discovery.Listen(host, cfg.PortStart, cfg.PortEnd)
	if err != nil {
		return fmt.Errorf("bind tracker listener: %w", err)
	}

	var sink tracker.Sink = tracker.StdoutSink{}
	if cfg.UseLogger {
		sink = tracker.NewZapSink(log)
	}

	coord := tracker.NewCoordinator(listener, cfg.NumWorkers, sink, cfg.MaxFrameBytesInt32())

	port := listener.Addr().(*net.TCPAddr).Port
	log.Infow("tracker endpoint ready", "host", host, "port", port)
	publishEnv(host, port, cfg.NumWorkers, cfg.NumServers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		// A clean finish cancels ctx so the signal wait below returns too.
		defer cancel()
		return coord.Run(ctx)
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		log.Infof("caught signal: %v", err)
		return err
	})

	runErr := wg.Wait()

	var all *multierror.Error
	all = multierror.Append(all, runErr)
	if err := coord.Close(); err != nil {
		all = multierror.Append(all, err)
	}
	return all.ErrorOrNil()
}

// applyFlagOverrides copies only the flags the user actually set onto cfg,
// so an unset CLI flag never clobbers a value the YAML file or the
// built-in defaults already supplied.
func applyFlagOverrides(c *cobra.Command, cfg *trackercfg.Config, f flags) {
	changed := c.Flags().Changed

	if changed("num-workers") {
		cfg.NumWorkers = f.NumWorkers
	}
	if changed("num-servers") {
		cfg.NumServers = f.NumServers
	}
	if changed("host-ip") {
		cfg.HostIP = f.HostIP
	}
	if changed("log-level") {
		cfg.LogLevel = f.LogLevel
	}
	if changed("use-logger") {
		cfg.UseLogger = f.UseLogger
	}
	if changed("port-start") {
		cfg.PortStart = f.PortStart
	}
	if changed("port-end") {
		cfg.PortEnd = f.PortEnd
	}
	if changed("max-frame-bytes") {
		cfg.MaxFrameBytesRaw = f.MaxFrameBytes
	}
}

// publishEnv writes the launcher-visible endpoint block (§6 "Published
// endpoint", §12 item 1): DMLC_TRACKER_URI/PORT plus, in standalone mode,
// DMLC_NUM_WORKER/DMLC_NUM_SERVER, bracketed by the sentinel lines the
// launcher scrapes for.
func publishEnv(host string, port, numWorkers, numServers int) {
	fmt.Println("DMLC_TRACKER_ENV_START")
	fmt.Printf("DMLC_NUM_WORKER=%d\n", numWorkers)
	fmt.Printf("DMLC_NUM_SERVER=%d\n", numServers)
	fmt.Printf("DMLC_TRACKER_URI=%s\n", host)
	fmt.Printf("DMLC_TRACKER_PORT=%d\n", port)
	fmt.Println("DMLC_TRACKER_ENV_END")
}
