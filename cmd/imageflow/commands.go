package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ironsheep/image-flow/internal/config"
	"github.com/ironsheep/image-flow/internal/debug"
	"github.com/ironsheep/image-flow/internal/engine"
	"github.com/ironsheep/image-flow/internal/ioport"
	"github.com/ironsheep/image-flow/internal/logging"
	"github.com/ironsheep/image-flow/internal/request"
	"github.com/ironsheep/image-flow/internal/server"
	"github.com/ironsheep/image-flow/internal/telemetry"
)

// flags holds the persistent command-line overrides.
type flags struct {
	configPath  string
	logLevel    string
	maxPasses   int
	debugDir    string
	metricsAddr string
}

// app is everything a command needs once configuration is resolved.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func newRootCmd(out io.Writer) *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:   "imageflow",
		Short: "Graph-based image processing engine",
		Long: `imageflow builds image operations into a graph, rewrites it into
primitive operations over a few passes, and executes it.

Run a request document once with "imageflow run", or expose jobs to an MCP
client over stdin/stdout with "imageflow serve".`,
		SilenceUsage: true,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.IntVar(&f.maxPasses, "max-passes", 0, "Pass ceiling for every job")
	pf.StringVar(&f.debugDir, "debug-dir", "", "Record graph versions to this directory")
	pf.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	root.AddCommand(
		newRunCmd(&f),
		newServeCmd(&f),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(f *flags) *cobra.Command {
	var frames bool
	cmd := &cobra.Command{
		Use:   "run <request.yaml>",
		Short: "Build and execute one request document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx, cmd, f)
			if err != nil {
				return err
			}
			defer rt.close()
			if frames {
				rt.cfg.Debug.Frames = true
			}

			r, err := request.Load(args[0])
			if err != nil {
				return err
			}
			if rt.cfg.BaseDir == "" {
				rt.cfg.BaseDir = filepath.Dir(args[0])
			}

			eng, err := newEngine(rt)
			if err != nil {
				return err
			}
			defer eng.Close()

			h, err := eng.Run(ctx, r)
			if err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), eng, h, r)
		},
	}
	cmd.Flags().BoolVar(&frames, "frames", false, "Also record each node's bitmap (needs --debug-dir)")
	return cmd
}

func newServeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve jobs over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx, cmd, f)
			if err != nil {
				return err
			}
			defer rt.close()

			eng, err := newEngine(rt)
			if err != nil {
				return err
			}
			defer eng.Close()

			rt.logger.Info("image flow server starting",
				"version", Version, "build_time", BuildTime, "commit", GitCommit)
			srv := server.New(
				server.WithEngine(eng),
				server.WithLogger(rt.logger),
				server.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
				server.WithVersion(Version),
			)
			return srv.Run(ctx)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imageflow %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
		},
	}
}

// setup loads configuration, applies flag overrides and starts logging and
// telemetry.
func setup(ctx context.Context, cmd *cobra.Command, f *flags) (*app, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	fl := cmd.Flags()
	if fl.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fl.Changed("max-passes") {
		cfg.MaxPasses = f.maxPasses
	}
	if fl.Changed("debug-dir") {
		cfg.Debug.Dir = f.debugDir
	}
	if fl.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
		if cfg.Telemetry.MetricExporter == "none" {
			cfg.Telemetry.MetricExporter = "prometheus"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// logs never go to stdout, which serve uses for the protocol
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	cfg.Telemetry.ServiceVersion = Version
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	if cfg.MetricsAddr != "" {
		if _, err := telemetry.ServeMetrics(ctx, cfg.MetricsAddr, logger); err != nil {
			_ = shutdown(context.Background())
			return nil, err
		}
	}

	return &app{cfg: cfg, logger: logger, shutdown: shutdown}, nil
}

func (rt *app) close() {
	if err := rt.shutdown(context.Background()); err != nil {
		rt.logger.Warn("telemetry shutdown failed", "error", err)
	}
}

func newEngine(rt *app) (*engine.Context, error) {
	opts := engine.Options{
		MaxPasses: rt.cfg.MaxPasses,
		Logger:    rt.logger,
		BaseDir:   rt.cfg.BaseDir,
	}
	if rt.cfg.Debug.Enabled() {
		opts.Observer = debug.Factory(debug.Options{
			Dir:            rt.cfg.Debug.Dir,
			Frames:         rt.cfg.Debug.Frames,
			Render:         rt.cfg.Debug.Render,
			RenderVersions: rt.cfg.Debug.RenderVersions,
			MaxVersions:    rt.cfg.Debug.MaxVersions,
			Logger:         rt.logger,
		})
	}
	if oc := rt.cfg.ObjectStore; oc != nil {
		store, err := ioport.NewMinioStore(*oc)
		if err != nil {
			return nil, err
		}
		opts.Store = store
		opts.Bucket = oc.Bucket
	}
	return engine.New(opts), nil
}

type outputSummary struct {
	IOID  int `json:"io_id"`
	Bytes int `json:"bytes"`
}

type runSummary struct {
	JobID        string          `json:"job_id"`
	Passes       int             `json:"passes"`
	GraphVersion int             `json:"graph_version"`
	Nodes        int             `json:"nodes"`
	Buffers      []outputSummary `json:"buffers,omitempty"`
}

// writeSummary prints the finished job as JSON. Output buffers have nowhere
// to go from the command line, so only their sizes are reported.
func writeSummary(w io.Writer, eng *engine.Context, h engine.JobHandle, r *request.Request) error {
	snap := eng.Snapshot(h)
	sum := runSummary{
		JobID:        snap.JobID,
		Passes:       snap.Pass,
		GraphVersion: snap.Version,
		Nodes:        len(snap.Nodes),
	}
	for _, spec := range r.IO {
		if !spec.Buffer {
			continue
		}
		data, err := eng.OutputBuffer(h, spec.ID)
		if err != nil {
			return err
		}
		sum.Buffers = append(sum.Buffers, outputSummary{IOID: spec.ID, Bytes: len(data)})
	}
	sort.Slice(sum.Buffers, func(i, j int) bool { return sum.Buffers[i].IOID < sum.Buffers[j].IOID })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
