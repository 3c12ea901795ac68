package feed

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrSendBufferFull is returned when a subscriber cannot keep up and its
// outbound buffer overflows; the connection is then closed.
var ErrSendBufferFull = errors.New("send buffer full")

// Connection wraps one websocket subscriber with a buffered writer loop and
// heartbeats.
type Connection struct {
	ws       *websocket.Conn
	instance string
	logger   zerolog.Logger

	send         chan []byte
	done         chan struct{}
	writeTimeout time.Duration
	pingInterval time.Duration
	onClose      func()
}

func newConnection(ws *websocket.Conn, instance string, logger zerolog.Logger, sendBuffer int, writeTimeout, pingInterval time.Duration, onClose func()) *Connection {
	return &Connection{
		ws:           ws,
		instance:     instance,
		logger:       logger,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		onClose:      onClose,
	}
}

// Send queues the payload for delivery. A full buffer closes the connection.
func (c *Connection) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errors.New("connection closed")
	default:
		c.logger.Warn().Msg("feed subscriber too slow, dropping connection")
		c.close()
		return ErrSendBufferFull
	}
}

func (c *Connection) close() {
	select {
	case <-c.done:
		return
	default:
	}
	close(c.done)
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose()
	}
}

// run owns both directions of the socket: incoming frames are drained (the
// feed is one-way) and queued payloads are written with heartbeats.
func (c *Connection) run() {
	go c.readLoop()
	c.writeLoop()
}

func (c *Connection) readLoop() {
	defer c.close()
	c.ws.SetReadLimit(1024)
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug().Err(err).Msg("feed write failed")
				return
			}
			feedDeliveries.WithLabelValues(c.instance).Inc()
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
