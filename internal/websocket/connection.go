package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a WebSocket connection behind a single writer
// goroutine so protocol replies and transport pings never interleave a
// write. It implements interfaces.Connection.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan string
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection wraps an upgraded socket and starts its writer.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan string, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case frame := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteText queues one text frame for delivery.
func (c *Connection) WriteText(frame string) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- frame:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// WriteControl sends a transport-level control message directly; gorilla
// serializes control writes internally, so this is safe alongside the
// writer goroutine.
func (c *Connection) WriteControl(messageType int, deadline time.Time) error {
	return c.conn.WriteControl(messageType, []byte{}, deadline)
}

// Close shuts down the writer and closes the socket. Safe to call more
// than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the connection is shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// RemoteAddr identifies the peer for logging.
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
