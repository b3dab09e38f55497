package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OpenFunscripter/playback/pkg/streaming"
)

const (
	outboxSize   = 4096
	ackBuffer    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

var errClosed = errors.New("stream closed")

// connection owns one WebSocket at a time. Only the write loop of the
// current socket writes data frames to it.
type connection struct {
	mu      sync.Mutex
	conn    *ws.Conn
	stop    chan struct{} // closed when conn is replaced
	closed  bool
	dropped int

	// session is the start_session frame replayed on every new socket.
	session []byte

	outbox chan []byte
	acks   chan streaming.AckMessage
	done   chan struct{}

	target  string
	backoff time.Duration
	logger  *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		outbox:  make(chan []byte, outboxSize),
		acks:    make(chan streaming.AckMessage, ackBuffer),
		done:    make(chan struct{}),
		backoff: time.Second,
		logger:  logger,
	}
}

// targetURL appends the secret as a query parameter.
func targetURL(raw, secret string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL: %w", err)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// dial connects for the first time. Later sockets come from reconnect.
func (c *connection) dial(rawURL, secret string) error {
	target, err := targetURL(rawURL, secret)
	if err != nil {
		return err
	}
	c.target = target
	return c.connect()
}

// connect opens a socket, replays the session frame and starts its loops.
func (c *connection) connect() error {
	conn, _, err := ws.DefaultDialer.Dial(c.target, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errClosed
	}
	session := c.session
	c.mu.Unlock()

	if session != nil {
		if err := writeFrame(conn, session); err != nil {
			_ = conn.Close()
			return fmt.Errorf("replaying start_session: %w", err)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errClosed
	}
	stop := make(chan struct{})
	c.conn = conn
	c.stop = stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn)
	return nil
}

func writeFrame(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// writeLoop drains the outbox into conn until stop is closed. A frame taken
// after stop goes back to the outbox for the next socket.
func (c *connection) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.outbox:
			select {
			case <-stop:
				c.send(data)
				return
			default:
			}
			if err := writeFrame(conn, data); err != nil {
				c.logger.Warn("Stroke stream write failed", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

// readLoop forwards acks; any other frame is ignored.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("Stroke stream read failed", "error", err)
				go c.reconnect(conn)
			}
			return
		}

		var ack streaming.AckMessage
		if json.Unmarshal(frame, &ack) != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Ignoring stream frame", "raw", string(frame))
			continue
		}
		select {
		case c.acks <- ack:
		default:
			c.logger.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// reconnect replaces broken with a new socket, doubling the delay per failed
// attempt. Both loops of a socket report its failure; the second call finds
// the socket already replaced and returns.
func (c *connection) reconnect(broken *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != broken {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	close(c.stop)
	c.stop = nil
	c.mu.Unlock()
	_ = broken.Close()

	delay := c.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting stroke stream", "attempt", attempt, "backoff", delay)
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		err := c.connect()
		if err == nil {
			c.logger.Info("Stroke stream reconnected", "attempt", attempt)
			return
		}
		if errors.Is(err, errClosed) {
			return
		}
		c.logger.Warn("Reconnect failed", "attempt", attempt, "error", err)
		delay = min(delay*2, maxBackoff)
	}

	c.logger.Error("Giving up on stroke stream", "maxAttempts", maxReconnect)
}

// send queues data without blocking. It reports false when the outbox is
// full and the frame was dropped.
func (c *connection) send(data []byte) bool {
	select {
	case c.outbox <- data:
		return true
	default:
	}

	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
	c.logger.Warn("Stroke stream outbox full, dropping frame")
	return false
}

// sendAndWait queues data and waits for the ack of ackFor.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	if !c.send(data) {
		return fmt.Errorf("outbox full for %q", ackFor)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("%w while waiting for ack of %q", errClosed, ackFor)
		}
	}
}

func (c *connection) setSession(data []byte) {
	c.mu.Lock()
	c.session = data
	c.mu.Unlock()
}

func (c *connection) droppedFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// close stops both loops and sends a close frame. Control frames may be
// written concurrently with the write loop.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return conn.Close()
}
