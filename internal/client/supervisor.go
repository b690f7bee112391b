// Package client owns one logical connection from an agent to the relay:
// dialing, the join handshake, heartbeats, and reconnect-with-backoff.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/protocol"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Transport is the subset of *websocket.Conn the supervisor uses,
// an indirection to ease testing.
type Transport interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type DialFunc func(ctx context.Context, url string) (Transport, error)

func gorillaDial(ctx context.Context, url string) (Transport, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type Config struct {
	URL        string
	Session    domain.SessionKey
	Role       domain.Role
	FollowerID string

	Heartbeat    time.Duration // default 30s
	InitialDelay time.Duration // default 1s, doubles per attempt, uncapped
	MaxAttempts  int           // default 10, then OnTerminal fires
}

// Supervisor drives the connection state machine:
// disconnected → connecting → open → disconnected (reconnect scheduled).
// Every goroutine and timer it spawns is keyed to a generation counter so
// nothing stale fires after Stop() or after a reconnect cycle.
type Supervisor struct {
	// Callbacks, wire before Start. All invoked from supervisor goroutines.
	OnSnapshot func(protocol.PlaybackSnapshot) // follower role: inbound state updates
	OnOpen     func()                          // fires after the join message is sent
	OnTerminal func(error)                     // reconnect attempts exhausted

	cfg   Config
	clock clockwork.Clock
	dial  DialFunc
	ctx   context.Context

	mu        sync.Mutex
	state     State
	gen       int
	attempts  int
	conn      Transport
	reconnect clockwork.Timer

	writeMu sync.Mutex
}

func NewSupervisor(cfg Config) *Supervisor {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Supervisor{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		dial:  gorillaDial,
		state: StateDisconnected,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins connecting. The context bounds dialing and read loops;
// cancelling it behaves like Stop().
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	gen := s.gen
	s.mu.Unlock()
	go s.connect(gen)
}

// Stop cancels any pending reconnect and heartbeat and closes the
// transport. After Stop returns, no timer fires and nothing reconnects.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.state = StateClosing
	s.gen++ // invalidate every outstanding timer and goroutine
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	log.Info().Str("module", "client").Msg("supervisor stopped")
}

func (s *Supervisor) connect(gen int) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	ctx := s.ctx
	s.mu.Unlock()

	conn, err := s.dial(ctx, s.cfg.URL)
	if err != nil {
		log.Warn().Str("module", "client").Err(err).Msg("dial failed")
		s.mu.Lock()
		if gen == s.gen {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		s.scheduleReconnect(gen)
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.state = StateOpen
	s.attempts = 0
	s.conn = conn
	s.mu.Unlock()

	log.Info().Str("module", "client").Str("session", string(s.cfg.Session)).
		Str("role", string(s.cfg.Role)).Msg("connection open, joining")

	s.writeJSON(conn, protocol.Join{
		Type:       protocol.TypeJoin,
		SessionID:  string(s.cfg.Session),
		Role:       string(s.cfg.Role),
		ListenerID: s.cfg.FollowerID,
	})
	if s.OnOpen != nil {
		s.OnOpen()
	}

	go s.readLoop(gen, conn)
	go s.heartbeat(ctx, gen, conn)
}

// scheduleReconnect handles an unexpected drop for the given generation.
// It bumps the generation so stale goroutines die, then either schedules
// the next attempt or gives up through OnTerminal.
func (s *Supervisor) scheduleReconnect(gen int) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	next := s.gen
	s.state = StateDisconnected
	s.conn = nil

	if s.attempts >= s.cfg.MaxAttempts {
		s.mu.Unlock()
		err := fmt.Errorf("gave up after %d reconnect attempts", s.cfg.MaxAttempts)
		log.Error().Str("module", "client").Err(err).Msg("reconnect exhausted")
		if s.OnTerminal != nil {
			s.OnTerminal(err)
		}
		return
	}

	delay := s.cfg.InitialDelay << s.attempts
	s.attempts++
	if s.reconnect != nil {
		s.reconnect.Stop()
	}
	s.reconnect = s.clock.AfterFunc(delay, func() { s.connect(next) })
	attempt := s.attempts
	s.mu.Unlock()

	log.Info().Str("module", "client").Dur("delay", delay).Int("attempt", attempt).Msg("reconnect scheduled")
}

func (s *Supervisor) readLoop(gen int, conn Transport) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Str("module", "client").Err(err).Msg("read loop closed")
			_ = conn.Close()
			s.scheduleReconnect(gen)
			return
		}
		s.handleMessage(data)
	}
}

func (s *Supervisor) heartbeat(ctx context.Context, gen int, conn Transport) {
	ticker := s.clock.NewTicker(s.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.mu.Lock()
			stale := gen != s.gen
			s.mu.Unlock()
			if stale {
				return
			}
			s.writeJSON(conn, protocol.NewPing())
		}
	}
}

func (s *Supervisor) handleMessage(data []byte) {
	typ, err := protocol.Peek(data)
	if err != nil {
		log.Debug().Str("module", "client").Err(err).Msg("bad frame from relay")
		return
	}
	switch typ {
	case protocol.TypeStateUpdate:
		var p protocol.StateUpdate
		if err := json.Unmarshal(data, &p); err != nil {
			log.Debug().Str("module", "client").Err(err).Msg("bad state update")
			return
		}
		if s.cfg.Role == domain.RoleFollower && s.OnSnapshot != nil {
			s.OnSnapshot(p.Payload)
		}
	case protocol.TypePing:
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			s.writeJSON(conn, protocol.NewPong())
		}
	case protocol.TypeJoined:
		log.Info().Str("module", "client").Msg("joined session")
	case protocol.TypeError:
		var p protocol.ErrorMsg
		_ = json.Unmarshal(data, &p)
		log.Warn().Str("module", "client").Str("message", p.Message).Msg("relay error")
	case protocol.TypePong:
		// heartbeat answered, nothing to do
	default:
		log.Debug().Str("module", "client").Str("type", typ).Msg("unexpected message type")
	}
}

// Publish forwards a locally captured snapshot to the relay. Dropped
// silently unless the connection is open.
func (s *Supervisor) Publish(snap protocol.PlaybackSnapshot) {
	s.mu.Lock()
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()
	if !open || conn == nil {
		log.Debug().Str("module", "client").Msg("not open, snapshot dropped")
		return
	}
	s.writeJSON(conn, protocol.NewStateUpdate(s.cfg.Session, snap))
}

func (s *Supervisor) writeJSON(conn Transport, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("module", "client").Err(err).Msg("marshal outbound")
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(s.clock.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Debug().Str("module", "client").Err(err).Msg("write failed")
	}
}
