package core

import "github.com/dkeye/Tandem/internal/domain"

// ConnID identifies one live transport connection.
type ConnID string

// Conn abstracts the transport endpoint a member is reachable on.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	// TrySend enqueues a frame without blocking. It fails when the peer's
	// write buffer is full, which the relay treats as "not write-ready"
	// and skips the delivery.
	TrySend(data []byte) error
	Close()
}

// Member binds participation meta to the transport it is reachable on.
// This is what a session stores and what broadcasts fan out to.
type Member struct {
	ID   ConnID
	Conn Conn
	Meta *domain.Member
}

// SessionInfo is a read-only view for APIs (no transport fields).
type SessionInfo struct {
	Key         domain.SessionKey `json:"key"`
	MemberCount int               `json:"member_count"`
}
