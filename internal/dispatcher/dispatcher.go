// Package dispatcher fans committed strokes out to named sinks.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OpenFunscripter/playback/internal/tcode"
)

var (
	// ErrUnknownSink is returned when dispatching to a name with no sink.
	ErrUnknownSink = errors.New("unknown sink")
	// ErrQueueFull is returned when a buffered, non-blocking sink drops an event.
	ErrQueueFull = errors.New("queue full")
)

// SinkFunc consumes a stroke.
type SinkFunc func(tcode.StrokeEvent) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures sink registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the sink async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered sink block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the sink.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes strokes to registered sinks.
type Dispatcher struct {
	sinks  map[string]SinkFunc
	order  []string
	logger Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter

	// Track buffers for gauge callback
	mu      sync.RWMutex
	buffers map[string]chan tcode.StrokeEvent
	wg      sync.WaitGroup
	closed  bool
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		sinks:   make(map[string]SinkFunc),
		buffers: make(map[string]chan tcode.StrokeEvent),
		logger:  logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of strokes in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("sink", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total strokes delivered to sinks"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total strokes dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.events.failed",
		metric.WithDescription("Total strokes a sink returned an error for"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Register adds a sink under name with optional configuration. Registering
// the same name twice replaces the sink and closes its previous queue.
// Registering after Close is ignored.
func (d *Dispatcher) Register(name string, s SinkFunc, opts ...Option) {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		d.logger.Error("sink registered after close", "sink", name)
		return
	}

	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	sink := s

	if cfg.logged {
		sink = d.withLogging(name, sink)
	}

	if cfg.bufferSize > 0 {
		sink = d.withBuffer(name, cfg.bufferSize, cfg.blocking, sink)
	}

	if _, exists := d.sinks[name]; !exists {
		d.order = append(d.order, name)
	}
	d.sinks[name] = sink
}

// Dispatch delivers a stroke to the named sink.
func (d *Dispatcher) Dispatch(name string, e tcode.StrokeEvent) error {
	s, ok := d.sinks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSink, name)
	}
	return s(e)
}

// Publish delivers a stroke to every sink in registration order and joins
// their errors.
func (d *Dispatcher) Publish(e tcode.StrokeEvent) error {
	var errs []error
	for _, name := range d.order {
		if err := d.sinks[name](e); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// OnStroke implements tcode.StrokeObserver. Sink errors are logged.
func (d *Dispatcher) OnStroke(e tcode.StrokeEvent) {
	if err := d.Publish(e); err != nil {
		d.logger.Error("stroke dispatch failed", "channel", e.Channel.String(), "error", err)
	}
}

// HasSink returns true if a sink is registered under name.
func (d *Dispatcher) HasSink(name string) bool {
	_, ok := d.sinks[name]
	return ok
}

// Sinks returns the registered sink names in registration order.
func (d *Dispatcher) Sinks() []string {
	return append([]string(nil), d.order...)
}

// Close stops accepting buffered strokes and waits for the queues to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) withBuffer(name string, size int, blocking bool, s SinkFunc) SinkFunc {
	buffer := make(chan tcode.StrokeEvent, size)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return func(tcode.StrokeEvent) error {
			return fmt.Errorf("dispatcher closed: %s", name)
		}
	}
	if old, ok := d.buffers[name]; ok {
		close(old)
	}
	d.buffers[name] = buffer
	d.wg.Add(1)
	d.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("sink", name))

	go func() {
		defer d.wg.Done()
		for e := range buffer {
			if err := s(e); err != nil {
				d.failed.Add(context.Background(), 1, attrs)
				d.logger.Error("buffered sink failed", "sink", name, "error", err)
				continue
			}
			d.processed.Add(context.Background(), 1, attrs)
		}
	}()

	send := func(e tcode.StrokeEvent) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return fmt.Errorf("dispatcher closed: %s", name)
		}
		if blocking {
			buffer <- e
			return nil
		}
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, attrs)
			return fmt.Errorf("%w: %s", ErrQueueFull, name)
		}
	}
	return send
}

func (d *Dispatcher) withLogging(name string, s SinkFunc) SinkFunc {
	return func(e tcode.StrokeEvent) error {
		start := time.Now()
		d.logger.Debug("delivering stroke", "sink", name, "channel", e.Channel.String())

		err := s(e)

		if err != nil {
			d.logger.Error("stroke failed", "sink", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("stroke delivered", "sink", name, "duration", time.Since(start))
		}

		return err
	}
}
