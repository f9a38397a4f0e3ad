package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/YaoYu9404/swot-simulator/calibration"
	"github.com/YaoYu9404/swot-simulator/errgen"
	"github.com/YaoYu9404/swot-simulator/internal/logging"
	"github.com/YaoYu9404/swot-simulator/internal/observability"
	"github.com/YaoYu9404/swot-simulator/internal/pool"
	"github.com/YaoYu9404/swot-simulator/orbit"
	"github.com/YaoYu9404/swot-simulator/product"
	"github.com/YaoYu9404/swot-simulator/settings"
	"github.com/YaoYu9404/swot-simulator/sim"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config      string
	Workers     int
	TaskTimeout time.Duration
	MetricsAddr string
	Start       string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate the configured cycles and passes",
		Long: `Run the simulation described by a YAML parameter file.

For every requested pass the orbit is propagated, the configured noise
models are evaluated concurrently and one product file is written under
the configured output directory.

Example:
  swotsim run --config params.yaml
  swotsim run --config params.yaml --workers 8 --metrics-addr :9090`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to the YAML parameter file (required)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "worker count for noise generation, 0 means NumCPU")
	cmd.Flags().DurationVar(&opts.TaskTimeout, "task-timeout", 0, "limit on a single noise model evaluation, 0 disables")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "listen address for Prometheus metrics, empty disables")
	cmd.Flags().StringVar(&opts.Start, "start", "", "epoch of the first cycle (RFC 3339), defaults to now")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runSimulation(opts *RunOptions) error {
	level := "info"
	if opts.Verbose {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level, Format: os.Getenv("LOG_FORMAT")})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params, err := settings.Load(opts.Config)
	if err != nil {
		return err
	}

	var table *calibration.Table
	if params.NeedsSpectrum() {
		table, err = calibration.Load(params.ErrorSpectrum, params.DeltaAl, params.LenRepeat)
		if err != nil {
			return err
		}
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("initialising metrics collector: %w", err)
	}
	stopMetrics := serveMetrics(opts.MetricsAddr, collector, log)
	defer stopMetrics()

	poolOpts := []pool.Option{pool.WithLogger(log), pool.WithObserver(collector)}
	if opts.TaskTimeout > 0 {
		poolOpts = append(poolOpts, pool.WithTaskTimeout(opts.TaskTimeout))
	}
	workers := pool.New(opts.Workers, poolOpts...)
	defer workers.Close()

	generator, err := errgen.New(params, table, workers, errgen.WithLogger(log))
	if err != nil {
		return err
	}
	propagator, err := orbit.NewPropagator(params.TLE1, params.TLE2)
	if err != nil {
		return err
	}
	catalog, err := product.DefaultCatalog()
	if err != nil {
		return err
	}
	writer := product.NewWriter(catalog, params, product.WithWriterLogger(log))

	simOpts := []sim.Option{
		sim.WithLogger(log),
		sim.WithRecorder(collector),
	}
	if opts.Start != "" {
		start, err := time.Parse(time.RFC3339, opts.Start)
		if err != nil {
			return fmt.Errorf("parsing --start: %w", err)
		}
		simOpts = append(simOpts, sim.WithStartTime(start.UTC()))
	}

	runner := sim.New(params, propagator, generator, writer, simOpts...)
	return runner.Run(ctx)
}

// serveMetrics exposes the collector over HTTP when an address is configured.
func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info(context.Background(), "serving metrics", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
