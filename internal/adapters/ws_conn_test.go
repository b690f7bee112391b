package adapters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubWS struct {
	mu       sync.Mutex
	writeErr error
	written  [][]byte
	closed   bool
}

func (s *stubWS) ReadMessage() (int, []byte, error) {
	return 0, nil, errors.New("not readable")
}

func (s *stubWS) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, data)
	return nil
}

func (s *stubWS) SetWriteDeadline(time.Time) error { return nil }

func (s *stubWS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubWS) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestTrySendAfterCloseReturnsError(t *testing.T) {
	t.Parallel()
	ws := &stubWS{}
	conn := NewWSConnection("c1", ws)

	conn.Close()
	conn.Close() // idempotent

	assert.ErrorIs(t, conn.TrySend([]byte("x")), ErrClosed)
	assert.True(t, ws.isClosed())
}

func TestWriteErrorClosesWithoutBreakingTrySend(t *testing.T) {
	t.Parallel()
	ws := &stubWS{writeErr: errors.New("broken pipe")}
	conn := NewWSConnection("c1", ws)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn.StartWriteLoop(ctx)

	// The write pump dies on the failed write and closes the connection.
	// A sender racing with that must get an error, never a panic.
	assert.NoError(t, conn.TrySend([]byte("x")))
	assert.Eventually(t, func() bool {
		return errors.Is(conn.TrySend([]byte("y")), ErrClosed)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTrySendBackpressure(t *testing.T) {
	t.Parallel()
	conn := NewWSConnection("c1", &stubWS{})

	// No write loop draining: the buffer eventually refuses.
	var err error
	for i := 0; i < 256; i++ {
		if err = conn.TrySend([]byte("x")); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrBackpressure)
}
