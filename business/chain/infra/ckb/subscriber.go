package ckb

import (
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/chainprobe/business/chain/app"
	"github.com/fd1az/chainprobe/business/chain/domain"
	"github.com/fd1az/chainprobe/business/chain/infra/feed"
	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/logger"
	"github.com/fd1az/chainprobe/internal/wsconn"
)

const topicNewTipHeader = "new_tip_header"

// envelope covers both the subscribe reply and topic notifications.
type envelope struct {
	ID     *uint64                   `json:"id"`
	Method string                    `json:"method"`
	Result json.RawMessage           `json:"result"`
	Error  *struct{ Message string } `json:"error"`
	Params *struct {
		Result       json.RawMessage `json:"result"`
		Subscription string          `json:"subscription"`
	} `json:"params"`
}

// Subscriber implements app.HeaderStream over the CKB subscription
// endpoint.
type Subscriber struct {
	url        string
	bufferSize int
	logger     logger.LoggerInterface

	mu    sync.RWMutex
	state domain.ConnectionState

	received metric.Int64Counter
}

// NewSubscriber creates a subscriber for the WebSocket endpoint url.
func NewSubscriber(url string, bufferSize int, log logger.LoggerInterface) (*Subscriber, error) {
	received, err := otel.Meter("chainprobe/ckb").Int64Counter(
		"ckb_headers_received_total",
		metric.WithDescription("Total CKB tip headers received"),
		metric.WithUnit("{header}"),
	)
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		url:        url,
		bufferSize: bufferSize,
		logger:     log,
		state:      domain.StateDisconnected,
		received:   received,
	}, nil
}

// State implements app.HeaderStream.
func (s *Subscriber) State() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Subscriber) setState(state domain.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Subscribe implements app.HeaderStream.
func (s *Subscriber) Subscribe(ctx context.Context) (app.Subscription, error) {
	client, err := wsconn.New(wsconn.DefaultConfig(s.url, "ckb"))
	if err != nil {
		return nil, err
	}

	sub := feed.New(s.bufferSize, func() { _ = client.Close() })

	client.OnStateChange(func(state wsconn.State, err error) {
		switch state {
		case wsconn.StateConnecting:
			s.setState(domain.StateConnecting)
		case wsconn.StateConnected:
			s.setState(domain.StateConnected)
		default:
			s.setState(domain.StateDisconnected)
		}
		if state == wsconn.StateDisconnected && err != nil {
			sub.Fail(apperror.New(apperror.CodeChainSubscriptionFailed, apperror.WithCause(err)))
		}
	})
	client.OnMessage(func(ctx context.Context, msg []byte) {
		s.handle(ctx, sub, msg)
	})

	if err := client.Connect(ctx); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeChainConnectionFailed, s.url)
	}

	req := map[string]any{
		"id":      1,
		"jsonrpc": "2.0",
		"method":  "subscribe",
		"params":  []string{topicNewTipHeader},
	}
	if err := client.SendJSON(ctx, req); err != nil {
		_ = client.Close()
		return nil, apperror.Wrap(err, apperror.CodeChainSubscriptionFailed, topicNewTipHeader)
	}

	s.logger.Info(ctx, "header stream connected", "url", s.url, "topic", topicNewTipHeader)
	return sub, nil
}

// handle runs on the connection's read loop, so a slow consumer holds
// back further reads.
func (s *Subscriber) handle(ctx context.Context, sub *feed.Feed, msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		sub.Fail(apperror.New(apperror.CodeChainInvalidHeader, apperror.WithCause(err)))
		return
	}

	switch {
	case env.Error != nil:
		sub.Fail(apperror.New(apperror.CodeChainSubscriptionFailed, apperror.WithMessage(env.Error.Message)))
	case env.Method == "subscribe" && env.Params != nil:
		h, err := decodeHeader(env.Params.Result)
		if err != nil {
			sub.Fail(err)
			return
		}
		s.received.Add(ctx, 1)
		sub.Deliver(h)
	default:
		s.logger.Debug(ctx, "subscription reply", "id", env.ID, "result", string(env.Result))
	}
}
