// Package protocol defines the line-delimited JSON messages exchanged
// between agents and the relay. Every message carries a "type" tag;
// unrecognized tags are rejected explicitly, never ignored.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Tandem/internal/domain"
)

const (
	TypeJoin        = "JOIN"
	TypeJoined      = "JOINED"
	TypeStateUpdate = "STATE_UPDATE"
	TypePing        = "PING"
	TypePong        = "PONG"
	TypeError       = "ERROR"
)

// PlayState mirrors what the source player reports about itself.
type PlayState string

const (
	StatePlaying PlayState = "playing"
	StatePaused  PlayState = "paused"
	StateStopped PlayState = "stopped"
)

func (s PlayState) Valid() bool {
	return s == StatePlaying || s == StatePaused || s == StateStopped
}

// PlaybackSnapshot is an immutable description of what the source is
// playing and where, stamped with the source-local capture instant.
// A nil TrackID means nothing is playing and all track metadata is nil.
type PlaybackSnapshot struct {
	TrackID            *string   `json:"trackId"`
	Title              *string   `json:"title"`
	Artist             *string   `json:"artist"`
	Album              *string   `json:"album"`
	DurationSec        *float64  `json:"durationSec"`
	PositionSec        float64   `json:"positionSec"`
	PlaybackState      PlayState `json:"playbackState"`
	CaptureTimestampMs int64     `json:"captureTimestampMs"`
}

// Validate checks the structural invariants of a snapshot. The relay calls
// this before re-broadcasting so followers never see a malformed payload.
func (s *PlaybackSnapshot) Validate() error {
	if !s.PlaybackState.Valid() {
		return fmt.Errorf("%w: playbackState %q", domain.ErrBadSnapshot, s.PlaybackState)
	}
	if s.PositionSec < 0 {
		return fmt.Errorf("%w: negative positionSec", domain.ErrBadSnapshot)
	}
	if s.DurationSec != nil && *s.DurationSec < 0 {
		return fmt.Errorf("%w: negative durationSec", domain.ErrBadSnapshot)
	}
	if s.TrackID == nil {
		if s.Title != nil || s.Artist != nil || s.Album != nil || s.DurationSec != nil {
			return fmt.Errorf("%w: track metadata without trackId", domain.ErrBadSnapshot)
		}
	}
	return nil
}

type Join struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	Role       string `json:"role"`
	ListenerID string `json:"listenerId,omitempty"`
}

type Joined struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
}

type StateUpdate struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId"`
	Payload   PlaybackSnapshot `json:"payload"`
}

type Ping struct {
	Type string `json:"type"`
}

type Pong struct {
	Type string `json:"type"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Peek extracts the type tag without committing to a full decode.
func Peek(data []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("bad envelope: %w", err)
	}
	if env.Type == "" {
		return "", domain.ErrUnknownType
	}
	return env.Type, nil
}

func NewJoined(session domain.SessionKey, role domain.Role) Joined {
	return Joined{Type: TypeJoined, SessionID: string(session), Role: string(role)}
}

func NewStateUpdate(session domain.SessionKey, snap PlaybackSnapshot) StateUpdate {
	return StateUpdate{Type: TypeStateUpdate, SessionID: string(session), Payload: snap}
}

func NewError(msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Message: msg}
}

func NewPing() Ping { return Ping{Type: TypePing} }
func NewPong() Pong { return Pong{Type: TypePong} }
