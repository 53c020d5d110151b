package websocket

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/fleetview/animator/pkg/streaming"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendChSize   = 10_000
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// connection manages a WebSocket connection with a single write goroutine.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{} // closed on shutdown
	stop   chan struct{} // closed when conn is replaced
	closed bool

	wsURL  string
	secret string

	// replay returns the messages that rebuild the frontend state after a
	// reconnect, in order.
	replay func() [][]byte

	initialBackoff time.Duration

	logger zerolog.Logger
}

func newConnection(logger zerolog.Logger) *connection {
	return &connection{
		sendCh:         make(chan []byte, sendChSize),
		ackCh:          make(chan streaming.AckMessage, ackChSize),
		done:           make(chan struct{}),
		initialBackoff: time.Second,
		logger:         logger,
	}
}

// dial connects to the WebSocket server and starts read/write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.start(conn)
	return nil
}

// start makes conn current and runs a read/write loop pair bound to it.
func (c *connection) start(conn *ws.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn, stop)
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeText writes one text frame to conn within writeWait.
func writeText(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// writeLoop is the only writer of conn while it is current. It returns on
// a write error, on shutdown or once conn has been replaced.
func (c *connection) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.sendCh:
			if err := writeText(conn, data); err != nil {
				c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("WebSocket write failed, reconnecting")
				go c.reconnect(conn)
				return
			}
		}
	}
}

// readLoop reads ack messages from the frontend and routes them to ackCh.
func (c *connection) readLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case <-stop:
				return
			default:
			}
			c.logger.Warn().Err(err).Msg("WebSocket read failed, reconnecting")
			go c.reconnect(conn)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil {
			c.logger.Debug().Str("raw", string(message)).Msg("Non-ack message received")
			continue
		}

		if ack.Type == streaming.TypeAck {
			select {
			case c.ackCh <- ack:
			default:
				c.logger.Debug().Str("for", ack.For).Msg("Ack channel full, dropping")
			}
		}
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. On success it replays the frontend state and restarts
// the read/write loops. Only the first caller for a failed conn proceeds.
func (c *connection) reconnect(failed *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != failed {
		c.mu.Unlock()
		return
	}
	close(c.stop)
	_ = c.conn.Close()
	c.conn = nil
	c.mu.Unlock()

	backoff := c.initialBackoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info().Int("attempt", attempt).Dur("backoff", backoff).Msg("Reconnecting to WebSocket")

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect dial failed")
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		if err := c.replayOn(conn); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to replay state after reconnect")
			_ = conn.Close()
			continue
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			_ = conn.Close()
			return
		}

		c.start(conn)
		c.logger.Info().Int("attempt", attempt).Msg("WebSocket reconnected")
		return
	}

	c.logger.Error().Int("maxAttempts", maxReconnect).Msg("WebSocket reconnect failed after max attempts")
}

// replayOn writes the replay messages directly, before the write loop
// resumes, so they precede anything queued meanwhile.
func (c *connection) replayOn(conn *ws.Conn) error {
	if c.replay == nil {
		return nil
	}
	msgs := c.replay()
	for i, data := range msgs {
		if err := writeText(conn, data); err != nil {
			return fmt.Errorf("replay message %d of %d: %w", i+1, len(msgs), err)
		}
	}
	c.logger.Debug().Int("messages", len(msgs)).Msg("Replayed view state")
	return nil
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn().Msg("WebSocket send channel full, dropping message")
	}
}

// sendAndWait sends data and blocks until the frontend acknowledges with a
// matching ack message or the timeout expires.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
			// Not our ack, keep waiting.
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a WebSocket close frame and shuts down all goroutines.
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

	if conn != nil {
		_ = conn.WriteMessage(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		)
		return conn.Close()
	}
	return nil
}
