// Package gossip implements the peer propagation probe.
package gossip

import (
	"context"

	"github.com/fd1az/chainprobe/business/gossip/app"
	gossipDI "github.com/fd1az/chainprobe/business/gossip/di"
	"github.com/fd1az/chainprobe/business/gossip/infra/devp2p"
	reportDI "github.com/fd1az/chainprobe/business/report/di"
	"github.com/fd1az/chainprobe/internal/config"
	"github.com/fd1az/chainprobe/internal/di"
	"github.com/fd1az/chainprobe/internal/logger"
	"github.com/fd1az/chainprobe/internal/monolith"
)

// Module implements the gossip bounded context.
type Module struct{}

// RegisterServices registers all gossip services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, gossipDI.PeerTransport, func(sr di.ServiceRegistry) app.PeerTransport {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		tcfg := devp2p.DefaultConfig()
		tcfg.Name = cfg.App.Name
		if cfg.Gossip.ListenAddr != "" {
			tcfg.ListenAddr = cfg.Gossip.ListenAddr
		}
		if cfg.Gossip.MaxPeers > 0 {
			tcfg.MaxPeers = cfg.Gossip.MaxPeers
		}
		tcfg.Bootnodes = cfg.Gossip.Bootnodes
		tcfg.StaticNodes = cfg.Gossip.StaticNodes
		tcfg.NodeKeyFile = cfg.Gossip.NodeKeyFile
		tcfg.NoDiscovery = cfg.Gossip.NoDiscovery

		tr, err := devp2p.New(tcfg, log)
		if err != nil {
			panic("failed to create peer transport: " + err.Error())
		}
		return tr
	})

	di.RegisterToken(c, gossipDI.Probe, func(sr di.ServiceRegistry) *app.Probe {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		probe, err := app.NewProbe(app.ProbeConfig{
			HighLatencyThreshold: cfg.Gossip.HighLatencyThreshold,
			Percentiles:          cfg.Gossip.Percentiles,
			CacheTTL:             cfg.Gossip.CacheTTL,
			CacheSize:            cfg.Gossip.CacheSize,
		}, reportDI.GetEmitter(sr), gossipDI.GetPeerTransport(sr), log)
		if err != nil {
			panic("failed to create probe: " + err.Error())
		}
		return probe
	})

	di.RegisterToken(c, gossipDI.GossipService, func(sr di.ServiceRegistry) *app.Service {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewService(gossipDI.GetPeerTransport(sr), gossipDI.GetProbe(sr), log)
	})

	return nil
}

// Startup schedules the peer transport.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()

	if !cfg.Gossip.Enabled {
		log.Info(ctx, "gossip module disabled")
		return nil
	}

	svc := gossipDI.GetGossipService(mono.Services())
	mono.Health().RegisterCheck("gossip", svc.HealthCheck)
	mono.Go("gossip", svc.Run)

	log.Info(ctx, "gossip module started",
		"listen", cfg.Gossip.ListenAddr,
		"high_latency_threshold", cfg.Gossip.HighLatencyThreshold,
		"percentiles", cfg.Gossip.Percentiles)
	return nil
}
