package logging

import (
	"context"
	"errors"
	"log/slog"
)

// MultiHandler hands every record to each of its handlers. A failing
// handler does not stop the others; their errors are joined.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler fans out to handlers, skipping nil entries.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	m := &MultiHandler{handlers: make([]slog.Handler, 0, len(handlers))}
	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
	return m
}

// Len is the number of handlers.
func (m *MultiHandler) Len() int {
	return len(m.handlers)
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			errs = errors.Join(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errs
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}
	return m.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m *MultiHandler) derive(fn func(slog.Handler) slog.Handler) *MultiHandler {
	out := &MultiHandler{handlers: make([]slog.Handler, len(m.handlers))}
	for i, h := range m.handlers {
		out.handlers[i] = fn(h)
	}
	return out
}

type playbackKey struct{}

// WithPlaybackMs tags records logged with the returned context with ms.
func WithPlaybackMs(ctx context.Context, ms int64) context.Context {
	return context.WithValue(ctx, playbackKey{}, ms)
}

// PlaybackMsFrom returns the position stored by WithPlaybackMs.
func PlaybackMsFrom(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	ms, ok := ctx.Value(playbackKey{}).(int64)
	return ms, ok
}

// ContextProvider returns the attributes added to every record.
type ContextProvider func() []slog.Attr

// ContextHandler adds the provider's attributes to each record before
// passing it on. A playback position carried by the record's context
// replaces them.
type ContextHandler struct {
	next     slog.Handler
	provider ContextProvider
}

func NewContextHandler(next slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{next: next, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	switch ms, ok := PlaybackMsFrom(ctx); {
	case ok:
		r.AddAttrs(slog.Int64("playbackMs", ms))
	case h.provider != nil:
		r.AddAttrs(h.provider()...)
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewContextHandler(h.next.WithAttrs(attrs), h.provider)
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return NewContextHandler(h.next.WithGroup(name), h.provider)
}
