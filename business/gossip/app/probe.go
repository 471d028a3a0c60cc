package app

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/chainprobe/business/gossip/domain"
	"github.com/fd1az/chainprobe/business/gossip/wire"
	reportApp "github.com/fd1az/chainprobe/business/report/app"
	reportDomain "github.com/fd1az/chainprobe/business/report/domain"
	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/logger"
)

const meterName = "github.com/fd1az/chainprobe/business/gossip/app"

// ProbeConfig configures propagation measurement.
type ProbeConfig struct {
	HighLatencyThreshold time.Duration
	Percentiles          []int
	CacheTTL             time.Duration
	CacheSize            int
}

// DefaultProbeConfig returns the canonical thresholds.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		HighLatencyThreshold: 8 * time.Second,
		Percentiles:          []int{99, 95, 80},
		CacheTTL:             10 * time.Minute,
	}
}

// AddressResolver looks up the remote address of a live peer.
type AddressResolver interface {
	PeerAddress(id domain.PeerID) (string, bool)
}

// Probe measures how announcements spread across the connected peers.
// It implements Handler.
type Probe struct {
	cfg      ProbeConfig
	emitter  reportApp.Emitter
	resolver AddressResolver
	log      logger.LoggerInterface
	now      func() time.Time

	mu    sync.Mutex
	peers map[domain.PeerID]domain.PeerInfo

	blocks *deliveryCache
	txs    *deliveryCache

	deliveries metric.Int64Counter
}

// NewProbe creates a probe. resolver may be nil, in which case addresses
// come from the connect callback only.
func NewProbe(cfg ProbeConfig, emitter reportApp.Emitter, resolver AddressResolver, log logger.LoggerInterface) (*Probe, error) {
	pcts := slices.Clone(cfg.Percentiles)
	slices.Sort(pcts)
	slices.Reverse(pcts)
	cfg.Percentiles = slices.Compact(pcts)

	deliveries, err := otel.Meter(meterName).Int64Counter(
		"gossip_deliveries_total",
		metric.WithDescription("Announcements received from peers"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	return &Probe{
		cfg:        cfg,
		emitter:    emitter,
		resolver:   resolver,
		log:        log,
		now:        time.Now,
		peers:      make(map[domain.PeerID]domain.PeerInfo),
		blocks:     newDeliveryCache(cfg.CacheSize, cfg.CacheTTL),
		txs:        newDeliveryCache(cfg.CacheSize, cfg.CacheTTL),
		deliveries: deliveries,
	}, nil
}

// PeerCount returns the number of live peers.
func (p *Probe) PeerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

// Connected implements Handler.
func (p *Probe) Connected(ctx context.Context, peer domain.PeerInfo) error {
	p.mu.Lock()
	if _, ok := p.peers[peer.ID]; ok {
		p.mu.Unlock()
		return nil
	}
	p.peers[peer.ID] = peer
	total := len(p.peers)
	p.mu.Unlock()

	p.log.Debug(ctx, "peer connected", "peer", peer.ID, "addr", peer.Address, "name", peer.Name, "peers", total)
	return p.emit(ctx, reportDomain.PeerCount{Time: p.now().UTC(), PeersTotal: total})
}

// Disconnected implements Handler.
func (p *Probe) Disconnected(ctx context.Context, id domain.PeerID) error {
	p.mu.Lock()
	if _, ok := p.peers[id]; !ok {
		p.mu.Unlock()
		return nil
	}
	delete(p.peers, id)
	total := len(p.peers)
	p.mu.Unlock()

	p.log.Debug(ctx, "peer disconnected", "peer", id, "peers", total)
	return p.emit(ctx, reportDomain.PeerCount{Time: p.now().UTC(), PeersTotal: total})
}

// Received implements Handler. Decode failures are returned as fatal.
func (p *Probe) Received(ctx context.Context, protocol domain.Protocol, peer domain.PeerID, code uint64, payload []byte) error {
	msg, err := wire.Decode(protocol, code, payload)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *wire.CompactBlock:
		return p.onCompactBlock(ctx, peer, m.Hash())
	case *wire.RelayTransactions:
		for _, rt := range m.Transactions {
			if err := p.onTransactionHash(ctx, peer, rt.Tx.Hash()); err != nil {
				return err
			}
		}
		return nil
	case *wire.RelayTransactionHashes:
		for _, h := range m.Hashes {
			if err := p.onTransactionHash(ctx, peer, h); err != nil {
				return err
			}
		}
		return nil
	case *wire.GetRelayTransactions:
		// A request, not an announcement.
		return nil
	case *wire.GetHeaders, *wire.SendHeaders, *wire.GetBlocks:
		return nil
	case *wire.SendBlock:
		// Full block content is received but not measured.
		return nil
	default:
		return apperror.New(apperror.CodeGossipUnknownMessage,
			apperror.WithContextf("unhandled %T", msg))
	}
}

func (p *Probe) onCompactBlock(ctx context.Context, peer domain.PeerID, hash common.Hash) error {
	now := p.now()
	d := p.blocks.observe(hash, peer, now)
	p.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("message_type", string(reportDomain.MessageCompactBlock))))
	if !d.newlyInserted {
		return nil
	}

	elapsed := now.Sub(d.firstSeen)
	if elapsed >= p.cfg.HighLatencyThreshold {
		if addr, ok := p.address(peer); ok {
			err := p.emit(ctx, reportDomain.HighLatency{
				Time:         now.UTC(),
				PeerAddress:  addr,
				TimeInterval: elapsed,
			})
			if err != nil {
				return err
			}
		} else {
			p.log.Debug(ctx, "high latency from unresolved peer", "peer", peer, "elapsed", elapsed)
		}
	}

	return p.evaluate(ctx, reportDomain.MessageCompactBlock, d, now)
}

func (p *Probe) onTransactionHash(ctx context.Context, peer domain.PeerID, hash common.Hash) error {
	now := p.now()
	d := p.txs.observe(hash, peer, now)
	p.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("message_type", string(reportDomain.MessageTransactionHash))))
	if !d.newlyInserted {
		return nil
	}
	return p.evaluate(ctx, reportDomain.MessageTransactionHash, d, now)
}

// evaluate emits at most one propagation event for a fresh delivery.
func (p *Probe) evaluate(ctx context.Context, typ reportDomain.MessageType, d delivery, now time.Time) error {
	pct, ok := crossedPercentile(d.peersAfter, p.PeerCount(), p.cfg.Percentiles)
	if !ok {
		return nil
	}
	return p.emit(ctx, reportDomain.Propagation{
		Time:         now.UTC(),
		MessageType:  typ,
		Percentile:   pct,
		TimeInterval: now.Sub(d.firstSeen),
	})
}

// crossedPercentile returns the highest threshold t, from descending
// thresholds, with before < t <= after, where before and after are the
// shares of total peers before and after this delivery.
func crossedPercentile(peersAfter, total int, descending []int) (int, bool) {
	if total == 0 || peersAfter == 0 {
		return 0, false
	}
	before := float64(peersAfter-1) * 100 / float64(total)
	after := float64(peersAfter) * 100 / float64(total)
	for _, t := range descending {
		if before < float64(t) && float64(t) <= after {
			return t, true
		}
	}
	return 0, false
}

func (p *Probe) address(id domain.PeerID) (string, bool) {
	p.mu.Lock()
	info, ok := p.peers[id]
	p.mu.Unlock()
	if ok && info.Address != "" {
		return info.Address, true
	}
	if p.resolver != nil {
		return p.resolver.PeerAddress(id)
	}
	return "", false
}

func (p *Probe) emit(ctx context.Context, ev reportDomain.Event) error {
	if err := p.emitter.Emit(ctx, ev); err != nil {
		return apperror.Wrap(err, apperror.CodeReportEmitFailed, string(ev.Kind()))
	}
	return nil
}
