// Package playback drives the channel producers from a playback clock.
//
// The Player owns the producer set and the output slots. One mutex guards
// every frame, so editors mutate scripts through Edit and the producers
// pick the change up from the script revision on the next tick.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/OpenFunscripter/playback/internal/config"
	"github.com/OpenFunscripter/playback/internal/funscript"
	"github.com/OpenFunscripter/playback/internal/registry"
	"github.com/OpenFunscripter/playback/internal/spline"
	"github.com/OpenFunscripter/playback/internal/tcode"
)

// ErrAlreadyRunning is returned by Run while another Run is active.
var ErrAlreadyRunning = errors.New("player already running")

// Seeker is notified when the playback position jumps.
type Seeker interface {
	Seek(fromMs, toMs int64) error
}

// Config holds the playback loop settings.
type Config struct {
	FrameInterval       time.Duration
	ResyncThresholdMs   int64
	SplineMaxIterations int
	SimulateRaw         bool
}

// FromSettings builds a Config from the loaded settings.
func FromSettings(s config.PlaybackConfig) Config {
	return Config{
		FrameInterval:       s.FrameInterval(),
		ResyncThresholdMs:   s.ResyncThresholdMs,
		SplineMaxIterations: s.SplineMaxIterations,
		SimulateRaw:         s.SimulateRaw,
	}
}

// Dependencies holds all dependencies for the player
type Dependencies struct {
	Resolver registry.Resolver
	Logger   *slog.Logger
	Observer tcode.StrokeObserver
	Seeker   Seeker
	Clock    Clock
}

// Player runs the per-frame producer tick.
type Player struct {
	deps Dependencies
	cfg  Config

	mu        sync.Mutex
	producers *tcode.Producers
	outputs   *tcode.Outputs
	samplers  [tcode.ChannelCount]*spline.Sampler
	handles   map[tcode.Channel]registry.Handle

	// positionMs is the position at anchor while running
	positionMs int64
	anchor     time.Time
	running    bool
	stopChan   chan struct{}

	// frame time for log records; read without mu
	frameMs atomic.Int64
	ticking atomic.Bool

	frames metric.Int64Counter
	seeks  metric.Int64Counter
}

// New creates a player.
func New(deps Dependencies, cfg Config) (*Player, error) {
	if deps.Resolver == nil {
		return nil, errors.New("player requires a resolver")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = time.Second / 60
	}

	opts := []tcode.Option{
		tcode.WithLogger(deps.Logger),
		tcode.WithResyncThreshold(cfg.ResyncThresholdMs),
	}
	if deps.Observer != nil {
		opts = append(opts, tcode.WithObserver(deps.Observer))
	}
	producers, err := tcode.NewProducers(deps.Resolver, opts...)
	if err != nil {
		return nil, err
	}

	p := &Player{
		deps:      deps,
		cfg:       cfg,
		producers: producers,
		outputs:   tcode.NewOutputs(),
		handles:   map[tcode.Channel]registry.Handle{},
		stopChan:  make(chan struct{}),
	}
	for i := range p.samplers {
		p.samplers[i] = spline.New(spline.WithMaxIterations(cfg.SplineMaxIterations))
	}

	m := meter()
	p.frames, err = m.Int64Counter(
		"playback.frames",
		metric.WithDescription("Producer ticks run by the playback loop"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frame counter: %w", err)
	}
	p.seeks, err = m.Int64Counter(
		"playback.seeks",
		metric.WithDescription("Explicit position jumps"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating seek counter: %w", err)
	}

	return p, nil
}

// Load binds scripts to channels. Channels missing from bindings are cleared.
func (p *Player) Load(bindings map[tcode.Channel]registry.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handles = make(map[tcode.Channel]registry.Handle, len(bindings))
	for ch, h := range bindings {
		if ch.Valid() {
			p.handles[ch] = h
		}
	}
	p.outputs.Reset()
	p.producers.Hookup(p.outputs, p.handles)
	for _, s := range p.samplers {
		s.Invalidate()
	}
}

// Edit runs fn between frames. Scripts may be mutated freely inside fn.
func (p *Player) Edit(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// DurationMs is the time of the last action across all bound scripts.
func (p *Player) DurationMs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.durationMs()
}

func (p *Player) durationMs() int64 {
	var d float64
	for _, h := range p.handles {
		set, ok := p.deps.Resolver.Resolve(h)
		if !ok || set.Empty() {
			continue
		}
		d = max(d, set.Back().AtMs())
	}
	return int64(d)
}

// Position returns the current playback time in milliseconds.
func (p *Player) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position()
}

func (p *Player) position() int64 {
	if !p.running {
		return p.positionMs
	}
	return p.positionMs + p.deps.Clock.Now().Sub(p.anchor).Milliseconds()
}

// PlaybackMs reports the time of the last frame while the loop runs. It
// matches the logging context provider signature and never takes the frame
// lock, so it is safe to call from code logging inside a frame.
func (p *Player) PlaybackMs() (int64, bool) {
	return p.frameMs.Load(), p.ticking.Load()
}

// Running reports whether Run is active.
func (p *Player) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Seek moves the playback position. Negative targets clamp to 0.
func (p *Player) Seek(ms int64) {
	ms = max(ms, 0)

	p.mu.Lock()
	from := p.position()
	p.positionMs = ms
	p.anchor = p.deps.Clock.Now()
	p.mu.Unlock()

	p.seeks.Add(context.Background(), 1)
	p.deps.Logger.Debug("Seek", "fromMs", from, "toMs", ms)

	if p.deps.Seeker != nil {
		if err := p.deps.Seeker.Seek(from, ms); err != nil {
			p.deps.Logger.Warn("Failed to report seek", "error", err)
		}
	}
}

// Step runs a single producer tick at nowMs.
func (p *Player) Step(nowMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.step(nowMs)
}

func (p *Player) step(nowMs int64) {
	p.frameMs.Store(nowMs)
	p.producers.Tick(nowMs)
	p.frames.Add(context.Background(), 1)
}

// Bracket returns the current bracketing pair of ch.
func (p *Player) Bracket(ch tcode.Channel) (start, next funscript.Action, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.producers.Bracket(ch)
}

// Value samples the script bound to ch at the current position.
func (p *Player) Value(ch tcode.Channel) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valueAt(ch, p.position())
}

// ValueAt samples the script bound to ch at atMs.
func (p *Player) ValueAt(ch tcode.Channel, atMs int64) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valueAt(ch, atMs)
}

func (p *Player) valueAt(ch tcode.Channel, atMs int64) (float64, bool) {
	h, ok := p.handles[ch]
	if !ok {
		return 0, false
	}
	set, ok := p.deps.Resolver.Resolve(h)
	if !ok {
		return 0, false
	}
	atS := float64(atMs) / 1000
	if p.cfg.SimulateRaw {
		return spline.SampleLinear(set, atS), true
	}
	return p.samplers[ch].Sample(set, atS), true
}

// Run ticks the producers every frame until the position passes the end of
// the loaded scripts, Stop is called or ctx is done.
func (p *Player) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.anchor = p.deps.Clock.Now()
	p.stopChan = make(chan struct{})
	stop := p.stopChan
	end := p.durationMs()
	p.frameMs.Store(p.positionMs)
	p.mu.Unlock()
	p.ticking.Store(true)

	defer func() {
		p.ticking.Store(false)
		p.mu.Lock()
		p.positionMs = p.position()
		p.running = false
		p.mu.Unlock()
	}()

	logger := p.deps.Logger
	logger.Info("Playback started", "fromMs", p.Position(), "durationMs", end)
	// end is re-read every frame so edits during playback move it.

	ticker := time.NewTicker(p.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Playback cancelled", "positionMs", p.Position())
			return ctx.Err()
		case <-stop:
			logger.Info("Playback stopped", "positionMs", p.Position())
			return nil
		case <-ticker.C:
			p.mu.Lock()
			now := p.position()
			p.step(now)
			end = p.durationMs()
			p.mu.Unlock()
			if now >= end {
				logger.Info("Playback finished", "positionMs", now)
				return nil
			}
		}
	}
}

// Stop ends a running Run. It is a no-op when stopped.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	select {
	case <-p.stopChan:
	default:
		close(p.stopChan)
	}
}
