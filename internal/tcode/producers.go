package tcode

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OpenFunscripter/playback/internal/funscript"
	"github.com/OpenFunscripter/playback/internal/registry"
)

// Option configures Producers.
type Option func(*Producers)

// WithLogger sets the logger used for stroke debug output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producers) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver reports every committed bracket to o.
func WithObserver(o StrokeObserver) Option {
	return func(p *Producers) {
		p.observer = o
	}
}

// WithResyncThreshold overrides the seek detection threshold in milliseconds.
func WithResyncThreshold(ms int64) Option {
	return func(p *Producers) {
		if ms > 0 {
			for i := range p.producers {
				p.producers[i].resyncMs = ms
			}
		}
	}
}

// Producers is the fixed set of channel producers, one per Channel.
type Producers struct {
	producers [ChannelCount]ChannelProducer
	resolver  registry.Resolver
	outputs   *Outputs
	observer  StrokeObserver
	logger    *slog.Logger

	// OTEL metrics
	resyncs metric.Int64Counter
	strokes metric.Int64Counter
	attrs   [ChannelCount]metric.MeasurementOption
}

// NewProducers creates the producer set. Scripts are looked up through res.
// Uses the global OTel meter for metrics (no-op if not configured).
func NewProducers(res registry.Resolver, opts ...Option) (*Producers, error) {
	p := &Producers{
		resolver: res,
		logger:   slog.Default(),
	}
	for i := range p.producers {
		p.producers[i] = newChannelProducer(Channel(i))
		p.attrs[i] = metric.WithAttributes(attribute.String("channel", Channel(i).String()))
	}
	for _, opt := range opts {
		opt(p)
	}

	m := meter()

	var err error
	p.resyncs, err = m.Int64Counter(
		"producer.resyncs",
		metric.WithDescription("Bracket resynchronizations after a time jump"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resync counter: %w", err)
	}

	p.strokes, err = m.Int64Counter(
		"producer.strokes",
		metric.WithDescription("Committed bracketing pairs"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stroke counter: %w", err)
	}

	return p, nil
}

// Producer returns the producer of ch.
func (p *Producers) Producer(ch Channel) *ChannelProducer {
	return &p.producers[ch]
}

// Hookup binds the supplied scripts and clears every channel not named in
// bindings, then attaches all producers to outputs.
func (p *Producers) Hookup(outputs *Outputs, bindings map[Channel]registry.Handle) {
	for i := range p.producers {
		ch := Channel(i)
		if h, ok := bindings[ch]; ok {
			p.producers[i].Bind(h)
		} else {
			p.producers[i].Unbind()
		}
	}
	p.SetChannels(outputs)
}

// Bind rebinds a single channel without touching the others.
func (p *Producers) Bind(ch Channel, h registry.Handle) {
	if ch.Valid() {
		p.producers[ch].Bind(h)
	}
}

// SetChannels attaches every producer to its slot in outputs.
func (p *Producers) SetChannels(outputs *Outputs) {
	p.outputs = outputs
	for i := range p.producers {
		if outputs == nil {
			p.producers[i].slot = noSlot
		} else {
			p.producers[i].slot = i
		}
	}
}

// ClearChannels detaches all producers from their slots and scripts.
func (p *Producers) ClearChannels() {
	p.outputs = nil
	for i := range p.producers {
		p.producers[i].slot = noSlot
		p.producers[i].Unbind()
	}
}

// Outputs returns the attached slot array, or nil.
func (p *Producers) Outputs() *Outputs {
	return p.outputs
}

// Bracket returns the current bracketing pair of ch.
func (p *Producers) Bracket(ch Channel) (start, next funscript.Action, ok bool) {
	if p.outputs == nil || !ch.Valid() {
		return funscript.Action{}, funscript.Action{}, false
	}
	slot := p.outputs.Slots[ch]
	return slot.Start, slot.Next, slot.Valid
}

// Tick advances every producer to nowMs in channel order.
func (p *Producers) Tick(nowMs int64) {
	for i := range p.producers {
		prod := &p.producers[i]
		res := prod.Tick(p.resolver, p.outputs, nowMs)
		if res.Resynced {
			p.resyncs.Add(context.Background(), 1, p.attrs[i])
		}
		if !res.Committed {
			continue
		}

		slot := p.outputs.Slots[i]
		p.strokes.Add(context.Background(), 1, p.attrs[i])
		p.logger.Debug("New stroke",
			"channel", prod.channel.String(),
			"from", slot.Start.Pos,
			"to", slot.Next.Pos,
			"index", prod.currentIndex,
		)
		if p.observer != nil {
			p.observer.OnStroke(StrokeEvent{
				Channel: prod.channel,
				Start:   slot.Start,
				Next:    slot.Next,
				AtMs:    nowMs,
			})
		}
	}
}
