package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/Tandem/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// WSConnection is a transport endpoint (WebSocket).
// It implements core.Conn. The send channel is never closed: the write
// loop may die (write error) while the relay still holds the connection,
// and TrySend from another connection's read goroutine must degrade to an
// error, never panic.
type WSConnection struct {
	id   core.ConnID
	conn WSConn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewWSConnection(id core.ConnID, conn WSConn) *WSConnection {
	return &WSConnection{
		id:   id,
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (c *WSConnection) ID() core.ConnID { return c.id }

func (c *WSConnection) TrySend(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *WSConnection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	_ = c.conn.Close()
}

// StartWriteLoop pumps frames to the network.
// Adapter owns transport resources and closes them on exit.
func (c *WSConnection) StartWriteLoop(ctx context.Context) {
	go func() {
		defer c.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case data := <-c.send:
				_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}()
}
