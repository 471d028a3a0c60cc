package ckb

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fd1az/chainprobe/business/chain/domain"
	"github.com/fd1az/chainprobe/internal/apm"
	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/circuitbreaker"
	"github.com/fd1az/chainprobe/internal/httpclient"
	"github.com/fd1az/chainprobe/internal/logger"
	"github.com/fd1az/chainprobe/internal/ratelimit"
)

// SourceConfig configures the JSON-RPC header source.
type SourceConfig struct {
	URL       string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

type blockView struct {
	Header jsonHeader `json:"header"`
}

// Source implements app.HeaderSource over the CKB JSON-RPC API.
type Source struct {
	rpc     *httpclient.RPCClient
	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[*domain.Header]
	tracer  apm.Tracer
}

// NewSource builds a source posting to cfg.URL.
func NewSource(cfg SourceConfig, log logger.LoggerInterface) (*Source, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeConfigInvalid, apperror.WithContext("ckb rpc url not configured"))
	}
	opts := []httpclient.ClientOption{
		httpclient.WithBaseURL(cfg.URL),
		httpclient.WithProviderName("ckb"),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, httpclient.WithRequestTimeout(cfg.Timeout))
	}
	client, err := httpclient.NewInstrumentedClient(opts...)
	if err != nil {
		return nil, err
	}

	cbCfg := circuitbreaker.DefaultConfig("ckb-header-source")
	cbCfg.IsExcluded = func(err error) bool {
		return errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled)
	}
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}

	return &Source{
		rpc:     httpclient.NewRPCClient(client),
		limiter: ratelimit.New(cfg.RateLimit, cfg.Burst),
		cb:      circuitbreaker.New[*domain.Header](cbCfg),
		tracer:  apm.NewTracer("ckb"),
	}, nil
}

// HealthCheck reports the circuit breaker guarding lookups.
func (s *Source) HealthCheck(ctx context.Context) (bool, string) {
	return s.cb.HealthCheck(ctx)
}

// HeaderByHash implements app.HeaderSource via get_header.
func (s *Source) HeaderByHash(ctx context.Context, hash common.Hash) (*domain.Header, error) {
	return s.call(ctx, "get_header", hash, func(ctx context.Context) (*domain.Header, error) {
		var h jsonHeader
		found, err := s.rpc.Call(ctx, &h, "get_header", hash.Hex())
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, domain.ErrNotFound
		}
		return h.toDomain()
	})
}

// BlockByHash implements app.HeaderSource via get_fork_block, which also
// serves blocks that are no longer on the main chain.
func (s *Source) BlockByHash(ctx context.Context, hash common.Hash) (*domain.Header, error) {
	return s.call(ctx, "get_fork_block", hash, func(ctx context.Context) (*domain.Header, error) {
		var b blockView
		found, err := s.rpc.Call(ctx, &b, "get_fork_block", hash.Hex())
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, domain.ErrNotFound
		}
		return b.Header.toDomain()
	})
}

func (s *Source) call(ctx context.Context, method string, hash common.Hash, fn func(context.Context) (*domain.Header, error)) (*domain.Header, error) {
	ctx, span := s.tracer.StartSpanFromContext(ctx, "ckb."+method)
	defer span.End()
	span.SetAttributes(attribute.String("hash", hash.Hex()))

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	h, err := s.cb.Execute(func() (*domain.Header, error) { return fn(ctx) })
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, domain.ErrNotFound):
		return nil, domain.ErrNotFound
	default:
		span.NoticeError(err)
		return nil, apperror.Wrap(err, apperror.CodeChainRPCFailed, method+" "+hash.Hex())
	}
}
