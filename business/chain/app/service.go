package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/chainprobe/business/chain/domain"
	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/logger"
)

const meterName = "github.com/fd1az/chainprobe/business/chain/app"

// TipObserver is notified after every processed header.
type TipObserver func(tip domain.ChainTip)

// Service feeds the header stream to the tracker, one header at a time.
type Service struct {
	stream  HeaderStream
	tracker *Tracker
	log     logger.LoggerInterface
	observe TipObserver

	lastHeader atomic.Int64 // unix nanos

	headersCounter metric.Int64Counter
	tipGauge       metric.Int64Gauge
}

// NewService creates a chain service. observe may be nil.
func NewService(stream HeaderStream, tracker *Tracker, log logger.LoggerInterface, observe TipObserver) (*Service, error) {
	s := &Service{
		stream:  stream,
		tracker: tracker,
		log:     log,
		observe: observe,
	}

	meter := otel.Meter(meterName)
	var err error
	s.headersCounter, err = meter.Int64Counter(
		"chain_headers_processed_total",
		metric.WithDescription("Tip headers processed by the tracker"),
		metric.WithUnit("{header}"),
	)
	if err != nil {
		return nil, err
	}
	s.tipGauge, err = meter.Int64Gauge(
		"chain_tip_number",
		metric.WithDescription("Number of the tracked tip"),
	)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Tracker returns the underlying tracker.
func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// Run subscribes once and processes headers until ctx is done. A stream
// failure or a tracker error ends Run with that error; there is no
// resubscription.
func (s *Service) Run(ctx context.Context) error {
	sub, err := s.stream.Subscribe(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeChainSubscriptionFailed, "subscribe")
	}
	defer sub.Unsubscribe()

	s.log.Info(ctx, "header stream subscribed")

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-sub.Err():
			if ctx.Err() != nil {
				return nil
			}
			if !ok || err == nil {
				return apperror.New(apperror.CodeChainSubscriptionFailed,
					apperror.WithContext("header stream closed"))
			}
			return apperror.Wrap(err, apperror.CodeChainSubscriptionFailed, "header stream")

		case h, ok := <-sub.Headers():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return apperror.New(apperror.CodeChainSubscriptionFailed,
					apperror.WithContext("header stream closed"))
			}
			if err := s.process(ctx, h); err != nil {
				return err
			}
		}
	}
}

func (s *Service) process(ctx context.Context, h *domain.Header) error {
	if err := s.tracker.OnNewHeader(ctx, h); err != nil {
		return err
	}

	s.lastHeader.Store(time.Now().UnixNano())
	s.headersCounter.Add(ctx, 1)
	s.tipGauge.Record(ctx, int64(h.Number), metric.WithAttributes(attribute.String("state", string(s.stream.State()))))

	s.log.Debug(ctx, "tip advanced", "number", h.Number, "hash", h.Hash.Hex())

	if s.observe != nil {
		s.observe(h.Tip())
	}
	return nil
}

// HealthCheck reports whether the stream is connected.
func (s *Service) HealthCheck(context.Context) (bool, string) {
	state := s.stream.State()
	if state != domain.StateConnected {
		return false, "header stream " + string(state)
	}

	last := s.lastHeader.Load()
	if last == 0 {
		return true, "connected, waiting for first header"
	}
	return true, "last header " + time.Since(time.Unix(0, last)).Round(time.Second).String() + " ago"
}
