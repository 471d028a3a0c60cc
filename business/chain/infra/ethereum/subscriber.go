package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainprobe/business/chain/app"
	"github.com/fd1az/chainprobe/business/chain/domain"
	"github.com/fd1az/chainprobe/business/chain/infra/feed"
	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/logger"
)

// maxGapFill bounds how many skipped heights the poller fetches between
// two polls. Larger gaps are delivered as-is.
const maxGapFill = 64

// SubscriberConfig holds configuration for the Ethereum subscriber.
type SubscriberConfig struct {
	WSURL        string        // WebSocket endpoint, preferred when set
	HTTPURL      string        // HTTP endpoint used for polling otherwise
	PollInterval time.Duration // Polling interval for HTTP mode
	BufferSize   int           // Header channel buffer size
}

// DefaultSubscriberConfig returns sensible defaults.
func DefaultSubscriberConfig(wsURL, httpURL string) SubscriberConfig {
	return SubscriberConfig{
		WSURL:        wsURL,
		HTTPURL:      httpURL,
		PollInterval: 12 * time.Second, // ~1 slot
		BufferSize:   16,
	}
}

type subscriberMetrics struct {
	headersReceived metric.Int64Counter
	subscribeErrors metric.Int64Counter
	connectionState metric.Int64Gauge
	gapFilled       metric.Int64Counter
}

// Subscriber implements app.HeaderStream using go-ethereum's client. It
// subscribes to newHeads over WebSocket, or polls the latest header over
// HTTP when no WebSocket endpoint is configured.
type Subscriber struct {
	config SubscriberConfig
	logger logger.LoggerInterface

	state   domain.ConnectionState
	stateMu sync.RWMutex

	tracer  trace.Tracer
	metrics *subscriberMetrics
}

// NewSubscriber creates a new Ethereum header subscriber.
func NewSubscriber(cfg SubscriberConfig, log logger.LoggerInterface) (*Subscriber, error) {
	if cfg.WSURL == "" && cfg.HTTPURL == "" {
		return nil, apperror.New(apperror.CodeConfigInvalid,
			apperror.WithContext("either ws_url or http_url must be set"))
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 12 * time.Second
	}

	s := &Subscriber{
		config: cfg,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Subscriber) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &subscriberMetrics{}

	s.metrics.headersReceived, err = meter.Int64Counter(
		"eth_headers_received_total",
		metric.WithDescription("Total Ethereum headers received"),
		metric.WithUnit("{header}"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscribeErrors, err = meter.Int64Counter(
		"eth_subscribe_errors_total",
		metric.WithDescription("Total Ethereum subscription errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.connectionState, err = meter.Int64Gauge(
		"eth_connection_state",
		metric.WithDescription("Ethereum connection state (0=disconnected, 1=connecting, 2=connected)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	s.metrics.gapFilled, err = meter.Int64Counter(
		"eth_poll_gap_filled_total",
		metric.WithDescription("Headers fetched to fill gaps between polls"),
		metric.WithUnit("{header}"),
	)
	return err
}

// State implements app.HeaderStream.
func (s *Subscriber) State() domain.ConnectionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.state == "" {
		return domain.StateDisconnected
	}
	return s.state
}

func (s *Subscriber) setState(state domain.ConnectionState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()

	var v int64
	switch state {
	case domain.StateConnecting:
		v = 1
	case domain.StateConnected:
		v = 2
	}
	s.metrics.connectionState.Record(context.Background(), v)
}

// Subscribe implements app.HeaderStream. The returned subscription is
// not re-established on failure.
func (s *Subscriber) Subscribe(ctx context.Context) (app.Subscription, error) {
	ctx, span := s.tracer.Start(ctx, "eth.subscribe")
	defer span.End()

	s.setState(domain.StateConnecting)

	url := s.config.WSURL
	mode := "websocket"
	if url == "" {
		url = s.config.HTTPURL
		mode = "polling"
	}
	span.SetAttributes(attribute.String("mode", mode))

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		s.setState(domain.StateDisconnected)
		s.metrics.subscribeErrors.Add(ctx, 1)
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeChainConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext(url))
	}

	sub := feed.New(s.config.BufferSize, func() {
		client.Close()
		s.setState(domain.StateDisconnected)
	})

	if mode == "websocket" {
		heads := make(chan *types.Header, s.config.BufferSize)
		ethSub, err := client.SubscribeNewHead(ctx, heads)
		if err != nil {
			client.Close()
			s.setState(domain.StateDisconnected)
			s.metrics.subscribeErrors.Add(ctx, 1)
			span.RecordError(err)
			return nil, apperror.New(apperror.CodeChainSubscriptionFailed, apperror.WithCause(err))
		}
		go s.forward(sub, ethSub.Err(), heads, ethSub.Unsubscribe)
	} else {
		go s.poll(sub, client)
	}

	s.setState(domain.StateConnected)
	s.logger.Info(ctx, "header stream connected", "mode", mode, "url", url)
	return sub, nil
}

func (s *Subscriber) forward(sub *feed.Feed, errc <-chan error, heads <-chan *types.Header, unsubscribe func()) {
	defer unsubscribe()
	for {
		select {
		case <-sub.Done():
			return
		case err := <-errc:
			s.metrics.subscribeErrors.Add(context.Background(), 1)
			sub.Fail(apperror.New(apperror.CodeChainSubscriptionFailed, apperror.WithCause(err)))
			return
		case h := <-heads:
			s.metrics.headersReceived.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("mode", "websocket")))
			if !sub.Deliver(toDomain(h)) {
				return
			}
		}
	}
}

func (s *Subscriber) poll(sub *feed.Feed, client *ethclient.Client) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sub.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	var last *types.Header
	for {
		head, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.metrics.subscribeErrors.Add(ctx, 1)
			sub.Fail(apperror.New(apperror.CodeChainRPCFailed,
				apperror.WithCause(err),
				apperror.WithContext("poll latest header")))
			return
		}

		if last == nil || head.Hash() != last.Hash() {
			batch, err := s.fillGap(ctx, client, last, head)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				sub.Fail(err)
				return
			}
			for _, h := range batch {
				s.metrics.headersReceived.Add(ctx, 1,
					metric.WithAttributes(attribute.String("mode", "polling")))
				if !sub.Deliver(toDomain(h)) {
					return
				}
			}
			last = head
		}

		select {
		case <-sub.Done():
			return
		case <-ticker.C:
		}
	}
}

// fillGap returns the headers to deliver for a new head: the skipped
// heights between last and head, followed by head itself.
func (s *Subscriber) fillGap(ctx context.Context, client *ethclient.Client, last, head *types.Header) ([]*types.Header, error) {
	if last == nil {
		return []*types.Header{head}, nil
	}
	from := last.Number.Uint64() + 1
	to := head.Number.Uint64()
	if to <= from || to-from > maxGapFill {
		return []*types.Header{head}, nil
	}

	batch := make([]*types.Header, 0, to-from+1)
	for n := from; n < to; n++ {
		h, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return nil, apperror.New(apperror.CodeChainRPCFailed,
				apperror.WithCause(err),
				apperror.WithContextf("fill header %d", n))
		}
		batch = append(batch, h)
	}
	s.metrics.gapFilled.Add(ctx, int64(len(batch)))
	return append(batch, head), nil
}
