// Package chain implements the chain reorganization tracker.
package chain

import (
	"context"
	"io"

	"github.com/fd1az/chainprobe/business/chain/app"
	chainDI "github.com/fd1az/chainprobe/business/chain/di"
	"github.com/fd1az/chainprobe/business/chain/infra/ckb"
	"github.com/fd1az/chainprobe/business/chain/infra/ethereum"
	reportDI "github.com/fd1az/chainprobe/business/report/di"
	"github.com/fd1az/chainprobe/internal/config"
	"github.com/fd1az/chainprobe/internal/di"
	"github.com/fd1az/chainprobe/internal/logger"
	"github.com/fd1az/chainprobe/internal/monolith"
)

// Module implements the chain bounded context.
type Module struct {
	// OnTip, when set, is called after every processed header.
	OnTip app.TipObserver
}

// RegisterServices registers all chain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, chainDI.HeaderStream, func(sr di.ServiceRegistry) app.HeaderStream {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		stream, err := newHeaderStream(cfg.Chain, log)
		if err != nil {
			panic("failed to create header stream: " + err.Error())
		}
		return stream
	})

	di.RegisterToken(c, chainDI.HeaderSource, func(sr di.ServiceRegistry) app.HeaderSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		source, err := newHeaderSource(cfg.Chain, log)
		if err != nil {
			panic("failed to create header source: " + err.Error())
		}
		return source
	})

	di.RegisterToken(c, chainDI.Tracker, func(sr di.ServiceRegistry) *app.Tracker {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewTracker(chainDI.GetHeaderSource(sr), reportDI.GetEmitter(sr), log)
	})

	di.RegisterToken(c, chainDI.ChainService, func(sr di.ServiceRegistry) *app.Service {
		log := sr.Get("logger").(logger.LoggerInterface)
		svc, err := app.NewService(chainDI.GetHeaderStream(sr), chainDI.GetTracker(sr), log, m.OnTip)
		if err != nil {
			panic("failed to create chain service: " + err.Error())
		}
		return svc
	})

	return nil
}

// Startup schedules the tracker loop.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()

	if !cfg.Chain.Enabled {
		log.Info(ctx, "chain module disabled")
		return nil
	}

	svc := chainDI.GetChainService(mono.Services())
	source := chainDI.GetHeaderSource(mono.Services())
	if closer, ok := source.(io.Closer); ok {
		mono.OnClose(closer.Close)
	}
	if checker, ok := source.(interface {
		HealthCheck(context.Context) (bool, string)
	}); ok {
		mono.Health().RegisterCheck("chain_rpc", checker.HealthCheck)
	}

	mono.Health().RegisterCheck("chain", svc.HealthCheck)
	mono.Go("chain", svc.Run)

	log.Info(ctx, "chain module started", "backend", cfg.Chain.Backend)
	return nil
}

func newHeaderStream(cfg config.ChainConfig, log logger.LoggerInterface) (app.HeaderStream, error) {
	switch cfg.Backend {
	case config.BackendCKB:
		return ckb.NewSubscriber(cfg.WebSocketURL, 16, log)
	default:
		subCfg := ethereum.DefaultSubscriberConfig(cfg.WebSocketURL, cfg.HTTPURL)
		if cfg.PollInterval > 0 {
			subCfg.PollInterval = cfg.PollInterval
		}
		return ethereum.NewSubscriber(subCfg, log)
	}
}

// newHeaderSource prefers the HTTP endpoint and falls back to the
// WebSocket one.
func newHeaderSource(cfg config.ChainConfig, log logger.LoggerInterface) (app.HeaderSource, error) {
	url := cfg.HTTPURL
	if url == "" {
		url = cfg.WebSocketURL
	}

	switch cfg.Backend {
	case config.BackendCKB:
		return ckb.NewSource(ckb.SourceConfig{
			URL:       url,
			Timeout:   cfg.RPCTimeout,
			RateLimit: cfg.RPCRateLimit,
			Burst:     cfg.RPCBurst,
		}, log)
	default:
		return ethereum.DialHeaderSource(context.Background(), ethereum.HeaderSourceConfig{
			URL:       url,
			Timeout:   cfg.RPCTimeout,
			RateLimit: cfg.RPCRateLimit,
			Burst:     cfg.RPCBurst,
		}, log)
	}
}
