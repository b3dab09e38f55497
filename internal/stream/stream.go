// Package stream sends committed strokes over a WebSocket to a visualizer
// or device bridge.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/OpenFunscripter/playback/internal/config"
	"github.com/OpenFunscripter/playback/internal/tcode"
	"github.com/OpenFunscripter/playback/pkg/streaming"
)

// Config holds WebSocket sink configuration.
type Config struct {
	URL    string
	Secret string

	// ReconnectBackoff is the first reconnect delay; it doubles per attempt.
	ReconnectBackoff time.Duration
}

// FromSettings builds a Config from the loaded settings.
func FromSettings(s config.StreamConfig) Config {
	return Config{URL: s.URL, Secret: s.Secret}
}

// Sink streams strokes as JSON envelopes.
type Sink struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket stroke sink.
func New(cfg Config, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	c := newConnection(logger)
	if cfg.ReconnectBackoff > 0 {
		c.backoff = cfg.ReconnectBackoff
	}
	return &Sink{conn: c, cfg: cfg}
}

// Init connects to the WebSocket server.
func (s *Sink) Init() error {
	return s.conn.dial(s.cfg.URL, s.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (s *Sink) Close() error {
	return s.conn.close()
}

// Dropped is the number of messages dropped because the send queue was full.
func (s *Sink) Dropped() int {
	return s.conn.droppedFrames()
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (s *Sink) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	if !s.conn.send(data) {
		return fmt.Errorf("outbox full, dropped %s", msgType)
	}
	return nil
}

// StartSession announces the session and waits for the server ack. The
// message is replayed after every reconnect until EndSession.
func (s *Sink) StartSession(p streaming.StartSessionPayload) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, p)
	if err != nil {
		return err
	}

	s.conn.setSession(data)

	return s.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for the server ack.
func (s *Sink) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	err = s.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	s.conn.setSession(nil)

	return err
}

// StrokePayload converts a stroke into its wire form.
func StrokePayload(e tcode.StrokeEvent) streaming.StrokePayload {
	return streaming.StrokePayload{
		Channel:  e.Channel.String(),
		FromAtMs: e.Start.AtMs(),
		FromPos:  e.Start.Pos,
		ToAtMs:   e.Next.AtMs(),
		ToPos:    e.Next.Pos,
		AtMs:     e.AtMs,
		Final:    e.Final(),
	}
}

// WriteStroke is the dispatcher sink; it never blocks.
func (s *Sink) WriteStroke(e tcode.StrokeEvent) error {
	return s.sendEnvelope(streaming.TypeStroke, StrokePayload(e))
}

// Seek reports a jump of the playback position.
func (s *Sink) Seek(fromMs, toMs int64) error {
	return s.sendEnvelope(streaming.TypeSeek, streaming.SeekPayload{FromMs: fromMs, ToMs: toMs})
}
