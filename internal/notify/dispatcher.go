package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rollcall/internal/platform/metrics"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 250 * time.Millisecond
	drainTimeout         = 2 * time.Second
)

// Dispatcher buffers published events and delivers them to a Sink from a
// single background worker. Publish only enqueues.
type Dispatcher struct {
	sink    Sink
	buffer  *RingBuffer
	breaker *CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Metrics

	batchSize int
	interval  time.Duration
	wake      chan struct{}
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithBuffer(capacity int) Option {
	return func(d *Dispatcher) {
		d.buffer = NewRingBuffer(capacity)
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(d *Dispatcher) {
		d.breaker = cb
	}
}

func WithFlushInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		d.interval = interval
	}
}

func NewDispatcher(sink Sink, opts ...Option) (*Dispatcher, error) {
	if sink == nil {
		return nil, errors.New("notification sink is required")
	}
	d := &Dispatcher{
		sink:      sink,
		buffer:    NewRingBuffer(0),
		breaker:   NewCircuitBreaker(0, 0),
		batchSize: defaultBatchSize,
		interval:  defaultFlushInterval,
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Dispatcher) Publish(_ context.Context, event Event) {
	if d.buffer.Enqueue(event) {
		d.metrics.IncrementNotifyDropped("overflow", 1)
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run delivers events until ctx ends, then makes one bounded attempt to
// drain what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			d.Flush(drainCtx)
			cancel()
			return nil
		case <-d.wake:
			d.Flush(ctx)
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}

// Flush sends queued events in batches and returns how many were delivered.
// Batches that fail or meet an open circuit are dropped.
func (d *Dispatcher) Flush(ctx context.Context) int {
	delivered := 0
	for {
		batch := d.buffer.DequeueBatch(d.batchSize)
		if len(batch) == 0 {
			return delivered
		}
		if !d.breaker.Allow() {
			d.metrics.IncrementNotifyDropped("circuit_open", len(batch))
			continue
		}
		if err := d.sink.Send(ctx, batch); err != nil {
			open := d.breaker.RecordFailure()
			d.metrics.SetNotifyCircuitOpen(open)
			d.metrics.IncrementNotifyDropped("send_failed", len(batch))
			if d.logger != nil {
				d.logger.WarnContext(ctx, "notification delivery failed",
					"events", len(batch),
					"circuit_open", open,
					"error", err,
				)
			}
			if ctx.Err() != nil {
				return delivered
			}
			continue
		}
		d.breaker.RecordSuccess()
		d.metrics.SetNotifyCircuitOpen(false)
		d.metrics.IncrementNotifyDelivered(len(batch))
		delivered += len(batch)
	}
}

func (d *Dispatcher) Pending() int {
	return d.buffer.Len()
}
