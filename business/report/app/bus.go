package app

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/chainprobe/business/report/domain"
	"github.com/fd1az/chainprobe/internal/apperror"
	"github.com/fd1az/chainprobe/internal/logger"
)

const meterName = "chainprobe/report"

// BusConfig holds event bus settings.
type BusConfig struct {
	BufferSize       int
	MaxWriteAttempts uint
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DrainTimeout     time.Duration
}

// DefaultBusConfig returns sensible defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		BufferSize:       1024,
		MaxWriteAttempts: 5,
		InitialBackoff:   200 * time.Millisecond,
		MaxBackoff:       5 * time.Second,
		DrainTimeout:     5 * time.Second,
	}
}

// Bus is a multi-producer single-consumer event channel. Producers block
// on a full buffer; the consumer hands every event to every writer and
// halts when a writer keeps failing.
type Bus struct {
	cfg     BusConfig
	log     logger.LoggerInterface
	writers []Writer

	events    chan domain.Event
	closed    chan struct{}
	closeOnce sync.Once

	emittedCounter metric.Int64Counter
	writtenCounter metric.Int64Counter
	retryCounter   metric.Int64Counter
}

var _ Emitter = (*Bus)(nil)

// NewBus creates a bus delivering to writers.
func NewBus(cfg BusConfig, log logger.LoggerInterface, writers ...Writer) (*Bus, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBusConfig().BufferSize
	}
	if cfg.MaxWriteAttempts == 0 {
		cfg.MaxWriteAttempts = 1
	}

	b := &Bus{
		cfg:     cfg,
		log:     log,
		writers: writers,
		events:  make(chan domain.Event, cfg.BufferSize),
		closed:  make(chan struct{}),
	}

	if err := b.initMetrics(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bus) initMetrics() error {
	meter := otel.Meter(meterName)

	var err error
	b.emittedCounter, err = meter.Int64Counter(
		"report_events_emitted_total",
		metric.WithDescription("Events accepted by the bus"),
	)
	if err != nil {
		return err
	}

	b.writtenCounter, err = meter.Int64Counter(
		"report_events_written_total",
		metric.WithDescription("Events delivered to a writer"),
	)
	if err != nil {
		return err
	}

	b.retryCounter, err = meter.Int64Counter(
		"report_write_retries_total",
		metric.WithDescription("Writer attempts that failed and were retried"),
	)
	if err != nil {
		return err
	}

	_, err = meter.Int64ObservableGauge(
		"report_bus_backlog",
		metric.WithDescription("Events waiting for the dispatcher"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(len(b.events)))
			return nil
		}),
	)
	return err
}

// Emit enqueues ev, blocking while the buffer is full. It fails only when
// ctx ends or the bus has been closed.
func (b *Bus) Emit(ctx context.Context, ev domain.Event) error {
	select {
	case <-b.closed:
		return apperror.New(apperror.CodeReportBusClosed, apperror.WithContext(string(ev.Kind())))
	default:
	}

	select {
	case b.events <- ev:
		b.emittedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(ev.Kind()))))
		return nil
	case <-ctx.Done():
		return apperror.New(apperror.CodeReportEmitFailed,
			apperror.WithContext(string(ev.Kind())),
			apperror.WithCause(ctx.Err()))
	case <-b.closed:
		return apperror.New(apperror.CodeReportBusClosed, apperror.WithContext(string(ev.Kind())))
	}
}

// Run dispatches events until ctx is done, then flushes what is buffered.
// A writer that fails MaxWriteAttempts times stops the bus with
// REPORT_WRITE_FAILED.
func (b *Bus) Run(ctx context.Context) error {
	defer b.Close()

	for {
		select {
		case <-ctx.Done():
			return b.drain()
		case ev := <-b.events:
			if ctx.Err() != nil {
				return b.drain(ev)
			}
			if err := b.dispatch(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// Close stops accepting events. Blocked producers are released with
// REPORT_BUS_CLOSED.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
}

// Backlog returns the number of buffered events.
func (b *Bus) Backlog() int {
	return len(b.events)
}

// Capacity returns the buffer size.
func (b *Bus) Capacity() int {
	return cap(b.events)
}

// drain flushes pending and then the buffer on a fresh context, since the
// run context is already done.
func (b *Bus) drain(pending ...domain.Event) error {
	b.Close()

	timeout := b.cfg.DrainTimeout
	if timeout <= 0 {
		timeout = DefaultBusConfig().DrainTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, ev := range pending {
		if err := b.dispatch(ctx, ev); err != nil {
			return err
		}
	}

	for {
		select {
		case ev := <-b.events:
			if err := b.dispatch(ctx, ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, ev domain.Event) error {
	for _, w := range b.writers {
		if err := b.write(ctx, w, ev); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) write(ctx context.Context, w Writer, ev domain.Event) error {
	kind := attribute.String("kind", string(ev.Kind()))
	writer := attribute.String("writer", w.Name())

	eb := backoff.NewExponentialBackOff()
	if b.cfg.InitialBackoff > 0 {
		eb.InitialInterval = b.cfg.InitialBackoff
	}
	if b.cfg.MaxBackoff > 0 {
		eb.MaxInterval = b.cfg.MaxBackoff
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.Write(ctx, ev)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(b.cfg.MaxWriteAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			b.retryCounter.Add(ctx, 1, metric.WithAttributes(writer))
			b.log.Warn(ctx, "event write failed, retrying",
				"writer", w.Name(), "kind", ev.Kind(), "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		return apperror.New(apperror.CodeReportWriteFailed,
			apperror.WithContextf("%s: %s", w.Name(), ev.Kind()),
			apperror.WithCause(err))
	}

	b.writtenCounter.Add(ctx, 1, metric.WithAttributes(writer, kind))
	return nil
}
