// Package syncer re-derives the source's current playback position from a
// possibly stale snapshot and decides when a follower should play, pause,
// or seek. Seeking is audibly disruptive, so bounded drift is tolerated.
package syncer

import (
	"time"

	"github.com/dkeye/Tandem/internal/protocol"
)

type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionStartTrack
	ActionPause
	ActionSeek
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionStartTrack:
		return "start_track"
	case ActionPause:
		return "pause"
	case ActionSeek:
		return "seek"
	}
	return "unknown"
}

// Action is at most one corrective step per evaluation.
type Action struct {
	Kind       ActionKind
	TrackID    string
	PositionMs int64
}

// State is the follower-local sync memory. The zero value means "nothing
// applied yet"; it is reset whenever the session is rejoined.
type State struct {
	LastTrackID   string
	LastTargetMs  int64
	LastCaptureMs int64
	LastEvalMs    int64
	LastSeekMs    int64
}

// Policy holds the pacing constants. Throttle must not exceed SeekCooldown
// or corrective seeks starve entirely.
type Policy struct {
	Throttle         time.Duration
	SeekCooldown     time.Duration
	DriftThresholdMs int64
}

func DefaultPolicy() Policy {
	return Policy{
		Throttle:         200 * time.Millisecond,
		SeekCooldown:     time.Second,
		DriftThresholdMs: 3750,
	}
}

// Evaluate is a pure function of (state, snapshot, now) → (state, action).
// The snapshot position is extrapolated by the capture age only while the
// source reports playing; a paused position is exact by definition.
func Evaluate(st State, snap protocol.PlaybackSnapshot, now time.Time, p Policy) (State, Action) {
	nowMs := now.UnixMilli()

	if nowMs-st.LastEvalMs < p.Throttle.Milliseconds() {
		return st, Action{Kind: ActionNone}
	}
	st.LastEvalMs = nowMs

	if snap.TrackID == nil {
		return st, Action{Kind: ActionNone}
	}
	trackID := *snap.TrackID

	estimatedMs := int64(snap.PositionSec * 1000)
	if snap.PlaybackState == protocol.StatePlaying {
		estimatedMs += nowMs - snap.CaptureTimestampMs
	}

	if trackID != st.LastTrackID {
		st.LastTrackID = trackID
		st.LastTargetMs = estimatedMs
		st.LastCaptureMs = snap.CaptureTimestampMs
		return st, Action{Kind: ActionStartTrack, TrackID: trackID, PositionMs: clampMs(estimatedMs)}
	}

	if snap.PlaybackState == protocol.StatePaused {
		// Pausing an already paused sink must be a no-op there.
		return st, Action{Kind: ActionPause}
	}
	if snap.PlaybackState != protocol.StatePlaying {
		return st, Action{Kind: ActionNone}
	}

	drift := st.LastTargetMs - estimatedMs
	if drift < 0 {
		drift = -drift
	}
	if drift > p.DriftThresholdMs && nowMs-st.LastSeekMs >= p.SeekCooldown.Milliseconds() {
		st.LastTargetMs = estimatedMs
		st.LastCaptureMs = snap.CaptureTimestampMs
		st.LastSeekMs = nowMs
		return st, Action{Kind: ActionSeek, TrackID: trackID, PositionMs: clampMs(estimatedMs)}
	}
	return st, Action{Kind: ActionNone}
}

func clampMs(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms
}
