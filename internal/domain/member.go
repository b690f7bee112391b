// Package domain contains entity without logic, just meta-data
package domain

import "errors"

var (
	ErrInvalidJoin = errors.New("invalid join: empty session or unknown role")
	ErrNotSource   = errors.New("only sources may send state updates")
	ErrNotJoined   = errors.New("join a session first")
	ErrBadSnapshot = errors.New("malformed playback snapshot")
	ErrUnknownType = errors.New("unknown message type")
)

type SessionKey string

// Role is what a member does inside a session: a source produces playback
// snapshots, a follower consumes them and chases the source's position.
type Role string

const (
	RoleSource   Role = "source"
	RoleFollower Role = "follower"
)

func (r Role) Valid() bool {
	return r == RoleSource || r == RoleFollower
}

// Member represents one live connection's participation meta in a session.
// No transport or lifecycle logic here.
type Member struct {
	Session SessionKey
	Role    Role
	// FollowerID correlates a follower with the credentials held by the
	// external playback-control side. Empty for sources.
	FollowerID string
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(session SessionKey, role Role, followerID string) *Member {
	return &Member{Session: session, Role: role, FollowerID: followerID}
}
