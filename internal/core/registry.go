package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/domain"
)

// Registry is the threadsafe in-memory map of session key → members.
// Sessions are created implicitly on first join and dropped as soon as the
// last member leaves, so an empty session never lingers. It never closes
// adapter-owned transports.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionKey]map[ConnID]*Member
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.SessionKey]map[ConnID]*Member)}
}

// Join registers the member under its session key. It rejects an empty key
// or an unknown role; it deliberately does not enforce a single source per
// session, the last broadcast simply wins downstream.
func (r *Registry) Join(m *Member) error {
	if m.Meta == nil || m.Meta.Session == "" || !m.Meta.Role.Valid() {
		return domain.ErrInvalidJoin
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := m.Meta.Session
	if r.sessions[key] == nil {
		r.sessions[key] = make(map[ConnID]*Member)
	}
	r.sessions[key][m.ID] = m
	log.Info().Str("module", "core.registry").Str("session", string(key)).
		Str("conn", string(m.ID)).Str("role", string(m.Meta.Role)).Msg("member joined")
	return nil
}

// Leave removes the member and drops the session once it is empty.
// Removing a member that is not present is a no-op. The check is by
// identity, not connection id: a stale membership handed in after the
// same connection re-joined must not evict the replacement entry.
func (r *Registry) Leave(m *Member) {
	if m == nil || m.Meta == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := m.Meta.Session
	members, ok := r.sessions[key]
	if !ok {
		return
	}
	if cur, ok := members[m.ID]; !ok || cur != m {
		return
	}
	delete(members, m.ID)
	if len(members) == 0 {
		delete(r.sessions, key)
	}
	log.Info().Str("module", "core.registry").Str("session", string(key)).
		Str("conn", string(m.ID)).Msg("member left")
}

// MembersOf returns the members of a session, optionally filtered by role.
// An empty role matches everyone.
func (r *Registry) MembersOf(key domain.SessionKey, role domain.Role) []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.sessions[key]
	out := make([]*Member, 0, len(members))
	for _, m := range members {
		if role != "" && m.Meta.Role != role {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Has reports whether the session key is currently present.
func (r *Registry) Has(key domain.SessionKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[key]
	return ok
}

func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for key, members := range r.sessions {
		out = append(out, SessionInfo{Key: key, MemberCount: len(members)})
	}
	return out
}
