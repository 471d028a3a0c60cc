// Package main is the entry point for the chainprobe network observer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/chainprobe/business/chain"
	chainDomain "github.com/fd1az/chainprobe/business/chain/domain"
	"github.com/fd1az/chainprobe/business/gossip"
	"github.com/fd1az/chainprobe/business/report"
	"github.com/fd1az/chainprobe/internal/apm"
	"github.com/fd1az/chainprobe/internal/config"
	"github.com/fd1az/chainprobe/internal/health"
	"github.com/fd1az/chainprobe/internal/logger"
	"github.com/fd1az/chainprobe/internal/metrics"
	"github.com/fd1az/chainprobe/internal/monolith"
	"github.com/fd1az/chainprobe/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chainprobe %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// TUI is the default, CLI is for debugging and headless deployments
	tuiMode := !*cliMode

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, *configPath, tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// step pairs a module with its startup row on the dashboard.
type step struct {
	name    string
	module  monolith.Module
	enabled bool
}

func run(ctx context.Context, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.App.TUIMode = tuiMode

	var out io.Writer = os.Stderr
	if tuiMode {
		// In TUI mode, suppress logs (discard output)
		out = io.Discard
	}
	log := logger.New(out, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting chainprobe",
		"version", version,
		"environment", cfg.App.Environment,
		"network", cfg.App.Network,
	)

	if cfg.Telemetry.Enabled {
		stop, err := setupTelemetry(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	healthServer := health.NewServer(cfg.Health.Port, version, log)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.Health.Port)
	}
	defer healthServer.Stop(context.Background())

	mono := monolith.New(cfg, log, healthServer)
	defer func() {
		if err := mono.Close(); err != nil {
			log.Error(context.Background(), "cleanup failed", "error", err)
		}
	}()

	chainModule := &chain.Module{}
	if tuiMode {
		chainModule.OnTip = func(tip chainDomain.ChainTip) {
			ui.Send(ui.TipMsg{Number: tip.Number, Hash: tip.Hash.Hex()})
		}
	}

	// Dependency order: report provides the emitter the others use.
	steps := []step{
		{name: "report", module: &report.Module{}, enabled: true},
		{name: "chain", module: chainModule, enabled: cfg.Chain.Enabled},
		{name: "gossip", module: &gossip.Module{}, enabled: cfg.Gossip.Enabled},
	}

	modules := make([]monolith.Module, 0, len(steps))
	for _, s := range steps {
		modules = append(modules, s.module)
	}
	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	start := func() error {
		ui.Send(ui.StartupMsg{Step: "config", Status: "done", Message: cfg.App.Network})
		for _, s := range steps {
			if !s.enabled {
				ui.Send(ui.StartupMsg{Step: s.name, Status: "disabled"})
				continue
			}
			ui.Send(ui.StartupMsg{Step: s.name, Status: "connecting"})
			if err := mono.StartModules(ctx, s.module); err != nil {
				ui.Send(ui.StartupMsg{Step: s.name, Status: "failed", Message: err.Error()})
				ui.Send(ui.LogMsg{Level: "error", Message: s.name + ": " + err.Error()})
				return fmt.Errorf("failed to start %s: %w", s.name, err)
			}
			ui.Send(ui.StartupMsg{Step: s.name, Status: "done"})
			ui.Send(ui.LogMsg{Level: "info", Message: s.name + " started"})
		}
		return nil
	}

	if tuiMode {
		go pollHealth(ctx, healthServer, 2*time.Second)
		return runTUI(ctx, cfg.App.Network, start, mono.Run)
	}

	if err := start(); err != nil {
		return err
	}
	log.Info(ctx, "all modules started")

	err = mono.Run(ctx)
	log.Info(context.Background(), "shutting down")
	return err
}

func setupTelemetry(ctx context.Context, cfg *config.Config, log *logger.Logger) (func(), error) {
	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}

	traceProvider, err := apm.NewTraceProvider(serviceName,
		apm.WithProvider(apm.Provider(cfg.Telemetry.TraceProvider), cfg.Telemetry.OTLPEndpoint, log))
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	log.Info(ctx, "tracing initialized", "provider", cfg.Telemetry.TraceProvider, "endpoint", cfg.Telemetry.OTLPEndpoint)

	metricOpts := []metrics.Option{
		metrics.WithServiceName(serviceName),
		metrics.WithExporter(metrics.ExporterCfg{Exporter: metrics.PrometheusExporter}),
	}
	if cfg.Telemetry.OTLPMetrics {
		metricOpts = append(metricOpts, metrics.WithExporter(
			metrics.Collector(cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.OTLPInsecure)))
	}
	meterProvider, err := metrics.NewMetricProvider(ctx, metricOpts...)
	if err != nil {
		_ = traceProvider.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	port := cfg.Telemetry.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go func() {
		if err := metrics.ServePrometheusMetrics(ctx, metrics.WithPort(strconv.Itoa(port))); err != nil {
			log.Error(ctx, "prometheus server stopped", "error", err)
		}
	}()
	log.Info(ctx, "prometheus metrics server started", "port", port)

	return func() {
		_ = meterProvider.Shutdown(context.Background())
		_ = traceProvider.Stop()
	}, nil
}

// pollHealth feeds check results to the dashboard's status panel.
func pollHealth(ctx context.Context, checks *health.Server, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, _ := checks.Evaluate(ctx)
			msg := ui.HealthMsg{Checks: make([]ui.HealthCheck, 0, len(results))}
			for name, c := range results {
				msg.Checks = append(msg.Checks, ui.HealthCheck{Name: name, Healthy: c.Healthy, Detail: c.Message})
			}
			ui.Send(msg)
		}
	}
}

func runTUI(ctx context.Context, network string, start func() error, supervise monolith.Runner) error {
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := ui.NewProgram(network)

	errCh := make(chan error, 1)
	go func() {
		// Wait for the welcome screen to hand over
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}

		if err := start(); err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}

		err := supervise(ctx)
		if err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
		}
		p.Quit()
		errCh <- err
	}()

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}

	// The dashboard exited first: stop the subsystems and wait for them.
	cancel()
	return <-errCh
}
