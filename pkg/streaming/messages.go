// Package streaming defines the wire messages of the stroke stream: JSON
// envelopes sent over a WebSocket to a visualizer or device bridge.
package streaming

import "encoding/json"

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeStroke       = "stroke"
	TypeSeek         = "seek"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces the scripts about to be played.
type StartSessionPayload struct {
	Script     string            `json:"script"`
	Channels   map[string]string `json:"channels"` // channel id -> script name
	DurationMs float64           `json:"durationMs"`
}

// StrokePayload is one committed bracket of a channel.
type StrokePayload struct {
	Channel  string  `json:"channel"`
	FromAtMs float64 `json:"fromAtMs"`
	FromPos  int16   `json:"fromPos"`
	ToAtMs   float64 `json:"toAtMs"`
	ToPos    int16   `json:"toPos"`
	AtMs     int64   `json:"atMs"`
	Final    bool    `json:"final,omitempty"`
}

// SeekPayload reports a jump of the playback position.
type SeekPayload struct {
	FromMs int64 `json:"fromMs"`
	ToMs   int64 `json:"toMs"`
}
