// Package report implements the metric sink: the event bus and the writers
// that persist or display events.
package report

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/fd1az/chainprobe/business/report/app"
	reportDI "github.com/fd1az/chainprobe/business/report/di"
	"github.com/fd1az/chainprobe/business/report/infra/console"
	"github.com/fd1az/chainprobe/business/report/infra/instrument"
	"github.com/fd1az/chainprobe/business/report/infra/postgres"
	"github.com/fd1az/chainprobe/business/report/infra/tui"
	"github.com/fd1az/chainprobe/internal/di"
	"github.com/fd1az/chainprobe/internal/monolith"
)

// Module implements the report bounded context. Writers are built during
// Startup because opening the store can fail; the bus is therefore only
// resolvable after this module has started.
type Module struct {
	bus *app.Bus
}

// RegisterServices registers all report services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, reportDI.Bus, func(sr di.ServiceRegistry) *app.Bus {
		if m.bus == nil {
			panic("report: bus resolved before module startup")
		}
		return m.bus
	})

	di.RegisterToken(c, reportDI.Emitter, func(sr di.ServiceRegistry) app.Emitter {
		return reportDI.GetBus(sr)
	})

	return nil
}

// Startup opens the writers and schedules the dispatcher.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()

	var writers []app.Writer

	if cfg.Report.Postgres.Enabled {
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:          cfg.Report.Postgres.DSN,
			MaxOpenConns: cfg.Report.Postgres.MaxOpenConns,
		})
		if err != nil {
			return err
		}
		mono.OnClose(db.Close)

		if err := postgres.RunMigrations(db); err != nil {
			return err
		}

		writers = append(writers, postgres.NewWriter(db, cfg.App.Network))
		mono.Health().RegisterCheck("postgres", postgres.HealthCheck(db))
		log.Info(ctx, "postgres event store ready")
	}

	rec, err := instrument.NewRecorder(otel.Meter("chainprobe/events"), cfg.App.Network)
	if err != nil {
		return fmt.Errorf("failed to create event instruments: %w", err)
	}
	writers = append(writers, rec)

	switch {
	case cfg.App.TUIMode:
		writers = append(writers, tui.NewWriter(nil))
	case cfg.Report.Console:
		writers = append(writers, console.NewWriter(os.Stdout, cfg.App.Network))
	}

	busCfg := app.DefaultBusConfig()
	busCfg.BufferSize = cfg.Report.BufferSize
	busCfg.MaxWriteAttempts = cfg.Report.MaxWriteAttempts

	bus, err := app.NewBus(busCfg, log, writers...)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	m.bus = bus

	mono.Health().RegisterCheck("report_bus", func(context.Context) (bool, string) {
		backlog, capacity := bus.Backlog(), bus.Capacity()
		return backlog < capacity, fmt.Sprintf("backlog %d/%d", backlog, capacity)
	})

	mono.Go("report", bus.Run)

	names := make([]string, 0, len(writers))
	for _, w := range writers {
		names = append(names, w.Name())
	}
	log.Info(ctx, "report module started", "writers", names)
	return nil
}
