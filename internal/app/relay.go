package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/protocol"
)

// Relay groups connections into sessions and fans source state out to
// followers. All shared state lives in the registry and the liveness
// monitor, both owned here; adapters only deliver transport events.
type Relay struct {
	Registry *core.Registry
	monitor  *Monitor

	mu     sync.Mutex
	conns  map[core.ConnID]core.Conn
	joined map[core.ConnID]*core.Member
}

func NewRelay(reg *core.Registry, clock clockwork.Clock, livenessTimeout time.Duration) *Relay {
	r := &Relay{
		Registry: reg,
		conns:    make(map[core.ConnID]core.Conn),
		joined:   make(map[core.ConnID]*core.Member),
	}
	r.monitor = NewMonitor(clock, livenessTimeout, r.evict)
	return r
}

// RunLiveness blocks sweeping for dead connections until ctx is done.
func (r *Relay) RunLiveness(ctx context.Context, interval time.Duration) {
	r.monitor.Run(ctx, interval)
}

// OnConnect registers a new transport connection, not yet in any session.
func (r *Relay) OnConnect(id core.ConnID, conn core.Conn) {
	r.mu.Lock()
	r.conns[id] = conn
	r.mu.Unlock()
	r.monitor.Touch(id)
	log.Info().Str("module", "app.relay").Str("conn", string(id)).Msg("connected")
}

// OnDisconnect removes the connection from the session registry (if it had
// joined) and from liveness tracking. Safe to call more than once.
func (r *Relay) OnDisconnect(id core.ConnID) {
	r.mu.Lock()
	member := r.joined[id]
	delete(r.joined, id)
	delete(r.conns, id)
	r.mu.Unlock()

	r.monitor.Forget(id)
	if member != nil {
		r.Registry.Leave(member)
	}
	log.Info().Str("module", "app.relay").Str("conn", string(id)).Msg("disconnected")
}

// OnMessage handles one inbound frame. Every frame counts as liveness
// activity regardless of whether it parses.
func (r *Relay) OnMessage(id core.ConnID, data []byte) {
	r.monitor.Touch(id)

	conn := r.connOf(id)
	if conn == nil {
		return
	}

	typ, err := protocol.Peek(data)
	if err != nil {
		r.sendJSON(conn, protocol.NewError("malformed message"))
		return
	}

	switch typ {
	case protocol.TypeJoin:
		r.handleJoin(id, conn, data)
	case protocol.TypeStateUpdate:
		r.handleStateUpdate(id, conn, data)
	case protocol.TypePing:
		r.sendJSON(conn, protocol.NewPong())
	case protocol.TypePong:
		// touch already recorded, nothing to reply
	default:
		log.Debug().Str("module", "app.relay").Str("conn", string(id)).Str("type", typ).Msg("unknown message type")
		r.sendJSON(conn, protocol.NewError(domain.ErrUnknownType.Error()))
	}
}

func (r *Relay) handleJoin(id core.ConnID, conn core.Conn, data []byte) {
	var p protocol.Join
	if err := json.Unmarshal(data, &p); err != nil {
		r.sendJSON(conn, protocol.NewError("malformed join"))
		return
	}

	member := &core.Member{
		ID:   id,
		Conn: conn,
		Meta: domain.NewMember(domain.SessionKey(p.SessionID), domain.Role(p.Role), p.ListenerID),
	}
	if err := r.Registry.Join(member); err != nil {
		r.sendJSON(conn, protocol.NewError(err.Error()))
		return
	}

	// A rejoin replaces the previous membership.
	r.mu.Lock()
	prev := r.joined[id]
	r.joined[id] = member
	r.mu.Unlock()
	if prev != nil {
		r.Registry.Leave(prev)
	}

	r.sendJSON(conn, protocol.NewJoined(member.Meta.Session, member.Meta.Role))
}

func (r *Relay) handleStateUpdate(id core.ConnID, conn core.Conn, data []byte) {
	r.mu.Lock()
	member := r.joined[id]
	r.mu.Unlock()

	if member == nil {
		r.sendJSON(conn, protocol.NewError(domain.ErrNotJoined.Error()))
		return
	}

	var p protocol.StateUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		r.sendJSON(conn, protocol.NewError("malformed state update"))
		return
	}
	if member.Meta.Role != domain.RoleSource || domain.SessionKey(p.SessionID) != member.Meta.Session {
		r.sendJSON(conn, protocol.NewError(domain.ErrNotSource.Error()))
		return
	}
	if err := p.Payload.Validate(); err != nil {
		r.sendJSON(conn, protocol.NewError(err.Error()))
		return
	}

	// Fire-and-forget fan-out of the frame verbatim. Followers whose write
	// buffer is full are skipped, not queued.
	sent := 0
	for _, f := range r.Registry.MembersOf(member.Meta.Session, domain.RoleFollower) {
		if err := f.Conn.TrySend(data); err != nil {
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.relay").Str("session", string(member.Meta.Session)).
		Int("sent_to", sent).Msg("state update broadcast")
}

// evict is the liveness monitor's hard-close callback.
func (r *Relay) evict(id core.ConnID) {
	r.mu.Lock()
	conn := r.conns[id]
	r.mu.Unlock()
	r.OnDisconnect(id)
	if conn != nil {
		conn.Close()
	}
}

func (r *Relay) connOf(id core.ConnID) core.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[id]
}

func (r *Relay) sendJSON(conn core.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("module", "app.relay").Err(err).Msg("marshal reply")
		return
	}
	_ = conn.TrySend(b)
}

// Touch is exposed for transports that observe activity outside OnMessage
// (e.g. websocket-level pong frames).
func (r *Relay) Touch(id core.ConnID) { r.monitor.Touch(id) }
