package app

import (
	"context"
	"fmt"

	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/logger"
)

// Service runs the peer transport with the probe as its handler.
type Service struct {
	transport PeerTransport
	probe     *Probe
	log       logger.LoggerInterface
}

// NewService creates a gossip service.
func NewService(transport PeerTransport, probe *Probe, log logger.LoggerInterface) *Service {
	return &Service{transport: transport, probe: probe, log: log}
}

// Probe returns the underlying probe.
func (s *Service) Probe() *Probe {
	return s.probe
}

// Run starts the transport and blocks until ctx is done or a handler
// fails. Handler failures are fatal and returned.
func (s *Service) Run(ctx context.Context) error {
	if err := s.transport.Start(ctx, s.probe); err != nil {
		return apperror.Wrap(err, apperror.CodeGossipTransportFailed, "start")
	}
	defer s.transport.Stop()

	s.log.Info(ctx, "peer transport started")

	select {
	case <-ctx.Done():
		return nil
	case err := <-s.transport.Err():
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// HealthCheck reports the live peer count. Zero peers is reported but
// not unhealthy: discovery may still be running.
func (s *Service) HealthCheck(context.Context) (bool, string) {
	return true, fmt.Sprintf("%d peers (transport %d)", s.probe.PeerCount(), s.transport.PeerCount())
}
