package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dennypage/mcast-bridge/internal/config"
	"github.com/dennypage/mcast-bridge/internal/daemon"
)

var (
	foreground  bool
	useSyslog   bool
	configPath  string
	pidfilePath string
	igmpQuerier string
	mldQuerier  string
	debugLevel  int
	metricsAddr string

	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "mcast-bridged",
	Short: "IGMP/MLD-aware multicast bridge daemon",
	Long: `mcast-bridged repeats multicast traffic between interfaces, joining and
leaving IPv4/IPv6 multicast groups on each interface's behalf according to
IGMP and MLD membership observed on that interface, and optionally acting
as IGMP/MLD querier.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcast-bridged %s\n", version)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge daemon",
	RunE:  runDaemon,
}

func init() {
	runCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in foreground instead of daemonizing")
	runCmd.Flags().BoolVarP(&useSyslog, "syslog", "s", false, "log notifications via syslog instead of stderr")
	runCmd.Flags().StringVarP(&configPath, "config", "c", "mcast-bridge.yaml", "configuration file path")
	runCmd.Flags().StringVarP(&pidfilePath, "pidfile", "p", "", "process id file path (none by default)")
	runCmd.Flags().StringVarP(&igmpQuerier, "igmp-querier-mode", "I", "", "override the configured IGMP querier mode (never|quick|delay|defer)")
	runCmd.Flags().StringVarP(&mldQuerier, "mld-querier-mode", "M", "", "override the configured MLD querier mode (never|quick|delay|defer)")
	runCmd.Flags().IntVarP(&debugLevel, "debug", "D", 0, "debug level 0-4 (0 disables debug logging; any higher level enables all of it)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9200", "address for the Prometheus /metrics endpoint (empty disables it)")

	rootCmd.AddCommand(versionCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log, err := daemon.NewLogger(foreground, useSyslog, daemon.DebugLevel(debugLevel))
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	cfg, err := config.Load(configPath, config.DefaultResolver)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if igmpQuerier != "" {
		cfg.IGMPQuerierMode = config.QuerierMode(igmpQuerier)
	}
	if mldQuerier != "" {
		cfg.MLDQuerierMode = config.QuerierMode(mldQuerier)
	}

	var pidfile *daemon.Pidfile
	if pidfilePath != "" {
		pidfile, err = daemon.CreatePidfile(pidfilePath)
		if err != nil {
			return fmt.Errorf("pidfile: %w", err)
		}
	}

	if !foreground {
		// NB: os.StartProcess-based daemonization (rather than fork(2),
		// which Go's runtime does not support after the process has
		// started goroutines) re-execs with --foreground so the child
		// carries on as the session's actual runner.
		if err := daemonize(); err != nil {
			return fmt.Errorf("daemonizing: %w", err)
		}
		return nil
	}

	if pidfile != nil {
		if err := pidfile.Write(); err != nil {
			return fmt.Errorf("pidfile: %w", err)
		}
		defer pidfile.Remove()
	}

	reg := prometheus.NewRegistry()
	if metricsAddr != "" {
		serveMetrics(log, reg, metricsAddr)
	}

	d, err := daemon.Build(cfg, log, reg)
	if err != nil {
		return fmt.Errorf("assembling daemon: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	log.Info("mcast-bridged starting", "version", version)
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running: %w", err)
	}
	log.Info("mcast-bridged exiting on signal")
	return nil
}

func serveMetrics(log *slog.Logger, reg *prometheus.Registry, addr string) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to start metrics listener", "error", err)
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go func() {
		log.Info("prometheus metrics listening", "address", listener.Addr().String())
		if err := http.Serve(listener, mux); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()
}

// daemonize re-executes the current binary with --foreground set and
// detaches it into its own session, standing in for fork+setsid since
// the Go runtime cannot safely fork a multi-threaded process past
// start-up.
func daemonize() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	cmdArgs := append([]string{"run", "--foreground"}, reexecArgs()...)
	proc, err := os.StartProcess(exe, append([]string{exe}, cmdArgs...), &os.ProcAttr{
		Dir:   ".",
		Env:   os.Environ(),
		Files: []*os.File{nil, nil, nil},
		Sys:   daemonSysProcAttr(),
	})
	if err != nil {
		return err
	}
	return proc.Release()
}

func reexecArgs() []string {
	var out []string
	if useSyslog {
		out = append(out, "--syslog")
	}
	out = append(out, "--config", configPath)
	if pidfilePath != "" {
		out = append(out, "--pidfile", pidfilePath)
	}
	if igmpQuerier != "" {
		out = append(out, "--igmp-querier-mode", igmpQuerier)
	}
	if mldQuerier != "" {
		out = append(out, "--mld-querier-mode", mldQuerier)
	}
	if debugLevel != 0 {
		out = append(out, "--debug", fmt.Sprint(debugLevel))
	}
	out = append(out, "--metrics-addr", metricsAddr)
	return out
}
