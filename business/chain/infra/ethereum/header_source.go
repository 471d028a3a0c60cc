package ethereum

import (
	"context"
	"errors"
	"fmt"
	"time"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainprobe/business/chain/domain"
	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/circuitbreaker"
	"github.com/fd1az/chainprobe/internal/logger"
	"github.com/fd1az/chainprobe/internal/ratelimit"
)

// HeaderSourceConfig holds configuration for the JSON-RPC header source.
type HeaderSourceConfig struct {
	URL       string
	Timeout   time.Duration // per call
	RateLimit float64       // requests per second, 0 = unlimited
	Burst     int
}

// DefaultHeaderSourceConfig returns sensible defaults.
func DefaultHeaderSourceConfig(url string) HeaderSourceConfig {
	return HeaderSourceConfig{
		URL:     url,
		Timeout: 10 * time.Second,
		Burst:   1,
	}
}

// HeaderSource implements app.HeaderSource over eth_getBlockByHash.
type HeaderSource struct {
	config  HeaderSourceConfig
	client  *ethclient.Client
	logger  logger.LoggerInterface
	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[*types.Header]

	tracer  trace.Tracer
	lookups metric.Int64Counter
}

// DialHeaderSource connects to cfg.URL.
func DialHeaderSource(ctx context.Context, cfg HeaderSourceConfig, log logger.LoggerInterface) (*HeaderSource, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeConfigInvalid, apperror.WithContext("header source url not configured"))
	}

	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, apperror.New(apperror.CodeChainConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext(cfg.URL))
	}

	s, err := NewHeaderSource(client, cfg, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// NewHeaderSource wraps an existing client.
func NewHeaderSource(client *ethclient.Client, cfg HeaderSourceConfig, log logger.LoggerInterface) (*HeaderSource, error) {
	s := &HeaderSource{
		config:  cfg,
		client:  client,
		logger:  log,
		limiter: ratelimit.New(cfg.RateLimit, cfg.Burst),
		tracer:  otel.Tracer(tracerName),
	}

	var err error
	s.lookups, err = otel.Meter(meterName).Int64Counter(
		"eth_header_lookups_total",
		metric.WithDescription("Header lookups by hash"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig("eth-header-source")
	cbCfg.IsExcluded = func(err error) bool {
		return errors.Is(err, gethereum.NotFound) || errors.Is(err, context.Canceled)
	}
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	s.cb = circuitbreaker.New[*types.Header](cbCfg)

	return s, nil
}

// HealthCheck reports the circuit breaker guarding lookups.
func (s *HeaderSource) HealthCheck(ctx context.Context) (bool, string) {
	return s.cb.HealthCheck(ctx)
}

// HeaderByHash implements app.HeaderSource.
func (s *HeaderSource) HeaderByHash(ctx context.Context, hash common.Hash) (*domain.Header, error) {
	return s.fetch(ctx, "header", hash, func(ctx context.Context) (*types.Header, error) {
		return s.client.HeaderByHash(ctx, hash)
	})
}

// BlockByHash implements app.HeaderSource.
func (s *HeaderSource) BlockByHash(ctx context.Context, hash common.Hash) (*domain.Header, error) {
	return s.fetch(ctx, "block", hash, func(ctx context.Context) (*types.Header, error) {
		block, err := s.client.BlockByHash(ctx, hash)
		if err != nil {
			return nil, err
		}
		return block.Header(), nil
	})
}

func (s *HeaderSource) fetch(ctx context.Context, kind string, hash common.Hash, call func(context.Context) (*types.Header, error)) (*domain.Header, error) {
	ctx, span := s.tracer.Start(ctx, "eth.lookup."+kind,
		trace.WithAttributes(attribute.String("hash", hash.Hex())),
	)
	defer span.End()

	if err := s.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	header, err := s.cb.Execute(func() (*types.Header, error) {
		return call(ctx)
	})

	result := "found"
	switch {
	case errors.Is(err, gethereum.NotFound):
		result = "not_found"
		err = domain.ErrNotFound
	case err != nil:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		err = apperror.Wrap(err, apperror.CodeChainRPCFailed, kind+" "+hash.Hex())
	}
	s.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
	if err != nil {
		return nil, err
	}

	span.SetStatus(codes.Ok, "fetched")
	return toDomain(header), nil
}

// Close releases the client.
func (s *HeaderSource) Close() error {
	s.client.Close()
	return nil
}
