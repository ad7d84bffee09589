// Command millroom runs puck intake, inventory and mill assignment against
// the configured store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"millroom/internal/blob"
	"millroom/internal/catalog"
	"millroom/internal/config"
	"millroom/internal/core"
	"millroom/internal/logging"
)

// CLI is the command tree.
type CLI struct {
	Env       string `help:"Path to a .env file. Defaults to ./.env when present." type:"path"`
	LogLevel  string `help:"Override MILLROOM_LOG_LEVEL."`
	TraceFile string `help:"Append one JSON line per operation span to this file." type:"path"`
	Metrics   bool   `help:"Print operation counters before exiting."`

	Init     InitCmd     `cmd:"" help:"Load the standard rack and mill layout into an empty store."`
	Status   StatusCmd   `cmd:"" help:"Show puck, slot, mill and queue totals." default:"1"`
	Intake   IntakeCmd   `cmd:"" help:"Scan a new puck into the first vacant storage slot."`
	Pull     PullCmd     `cmd:"" help:"Pull a puck from inventory into storage."`
	Return   ReturnCmd   `cmd:"" help:"Return a stored puck to inventory."`
	Cases    CasesCmd    `cmd:"" help:"Manage the case queue."`
	Assign   AssignCmd   `cmd:"" help:"Assign a puck to a mill slot for a set of cases."`
	Reassign ReassignCmd `cmd:"" help:"Move today's assignment to another mill slot."`
	Log      LogCmd      `cmd:"" help:"Show or search the mill log."`
	Report   ReportCmd   `cmd:"" help:"Replenishment analysis and the retired-puck order queue."`
}

// App carries the wired collaborators into each command.
type App struct {
	Service *core.Service
	Out     io.Writer
	Now     func() time.Time
	Logger  *logging.Logger
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("millroom"),
		kong.Description("Dental lab puck storage and mill assignment"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	app, registry, cleanup, err := setup(ctx, cli, stdout, stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	runErr := kctx.Run(app)
	if runErr != nil {
		app.Logger.Error("command failed", "command", kctx.Command(), "error", runErr)
	}
	if cli.Metrics {
		if err := printMetrics(stdout, registry); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func setup(ctx context.Context, cli CLI, stdout, stderr io.Writer) (*App, *prometheus.Registry, func(), error) {
	cfg, err := config.Load(cli.Env)
	if err != nil {
		return nil, nil, nil, err
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	logger, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return nil, nil, nil, err
	}
	closers := []func() error{logger.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	fail := func(err error) (*App, *prometheus.Registry, func(), error) {
		cleanup()
		return nil, nil, nil, err
	}

	materials, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fail(err)
	}
	store, err := core.OpenPersistentStore(cfg.Storage, nil, materials)
	if err != nil {
		return fail(fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err))
	}
	if c, ok := store.(io.Closer); ok {
		closers = append(closers, c.Close)
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fail(fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err))
	}

	registry := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return fail(err)
	}
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(recorder),
		core.WithBlobStore(blobs),
		core.WithCatalog(materials),
	}
	if cli.TraceFile != "" {
		f, err := os.OpenFile(cli.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fail(fmt.Errorf("open trace file: %w", err))
		}
		closers = append(closers, f.Close)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}

	logger.Debug("millroom configured",
		"storage", string(cfg.Storage.Driver),
		"blob", string(cfg.Blob.Driver),
		"materials", len(materials.Entries()))
	return &App{
		Service: core.NewService(store, opts...),
		Out:     stdout,
		Now:     time.Now,
		Logger:  logger,
	}, registry, cleanup, nil
}

func printMetrics(w io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		if mf.GetName() != "millroom_core_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			lines = append(lines, fmt.Sprintf("%s %s %.0f", labels["operation"], labels["status"], m.GetCounter().GetValue()))
		}
	}
	slices.Sort(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	return nil
}
