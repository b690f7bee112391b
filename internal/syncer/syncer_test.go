package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Tandem/internal/protocol"
)

func snap(trackID string, state protocol.PlayState, positionSec float64, captureMs int64) protocol.PlaybackSnapshot {
	return protocol.PlaybackSnapshot{
		TrackID:            &trackID,
		PositionSec:        positionSec,
		PlaybackState:      state,
		CaptureTimestampMs: captureMs,
	}
}

func at(ms int64) time.Time { return time.UnixMilli(ms) }

func TestEstimateExtrapolatesWhilePlaying(t *testing.T) {
	t.Parallel()
	// positionSec=100 captured at T, evaluated at T+2000 → 102000ms.
	st, action := Evaluate(State{}, snap("t1", protocol.StatePlaying, 100, 50_000), at(52_000), DefaultPolicy())

	assert.Equal(t, ActionStartTrack, action.Kind)
	assert.Equal(t, int64(102_000), action.PositionMs)
	assert.Equal(t, "t1", st.LastTrackID)
	assert.Equal(t, int64(102_000), st.LastTargetMs)
}

func TestPausedSnapshotIsNotExtrapolated(t *testing.T) {
	t.Parallel()
	_, action := Evaluate(State{}, snap("t1", protocol.StatePaused, 100, 50_000), at(60_000), DefaultPolicy())

	assert.Equal(t, ActionStartTrack, action.Kind)
	assert.Equal(t, int64(100_000), action.PositionMs)
}

func TestThrottleSwallowsRapidSnapshots(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()

	st, action := Evaluate(State{}, snap("t1", protocol.StatePlaying, 10, 1_000), at(1_000), p)
	assert.Equal(t, ActionStartTrack, action.Kind)

	// 150ms later: under the 200ms throttle, state untouched.
	st2, action := Evaluate(st, snap("t2", protocol.StatePlaying, 0, 1_100), at(1_150), p)
	assert.Equal(t, ActionNone, action.Kind)
	assert.Equal(t, st, st2)

	// Past the throttle the track change is picked up.
	_, action = Evaluate(st, snap("t2", protocol.StatePlaying, 0, 1_100), at(1_250), p)
	assert.Equal(t, ActionStartTrack, action.Kind)
}

func TestNilTrackMeansNothingToSync(t *testing.T) {
	t.Parallel()
	st, action := Evaluate(State{}, protocol.PlaybackSnapshot{PlaybackState: protocol.StateStopped}, at(5_000), DefaultPolicy())

	assert.Equal(t, ActionNone, action.Kind)
	assert.Empty(t, st.LastTrackID)
	assert.Equal(t, int64(5_000), st.LastEvalMs, "throttle window still advances")
}

func TestTrackChangeAlwaysStarts(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()

	st, a := Evaluate(State{}, snap("t1", protocol.StatePlaying, 0, 1_000), at(1_000), p)
	assert.Equal(t, ActionStartTrack, a.Kind)
	assert.Equal(t, "t1", a.TrackID)

	st, b := Evaluate(st, snap("t2", protocol.StatePlaying, 5, 1_100), at(1_400), p)
	assert.Equal(t, ActionStartTrack, b.Kind)
	assert.Equal(t, "t2", b.TrackID)
	// 5000ms reported plus 300ms of capture age.
	assert.Equal(t, int64(5_300), b.PositionMs)
	assert.Equal(t, "t2", st.LastTrackID)
}

func TestSmallDriftIsTolerated(t *testing.T) {
	t.Parallel()
	st := State{LastTrackID: "t1", LastTargetMs: 50_000}

	// Estimated 52000ms → drift 2000 < 3750, let it ride.
	st2, action := Evaluate(st, snap("t1", protocol.StatePlaying, 52, 100_000), at(100_000), DefaultPolicy())
	assert.Equal(t, ActionNone, action.Kind)
	assert.Equal(t, int64(50_000), st2.LastTargetMs, "target unchanged without a seek")
}

func TestLargeDriftSeeksAfterCooldown(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	st := State{LastTrackID: "t1", LastTargetMs: 50_000, LastSeekMs: 99_500}

	// Drift 5000 > 3750 but the last seek was 500ms ago.
	st2, action := Evaluate(st, snap("t1", protocol.StatePlaying, 55, 100_000), at(100_000), p)
	assert.Equal(t, ActionNone, action.Kind)
	assert.Equal(t, int64(50_000), st2.LastTargetMs)

	// Same drift once the cooldown has elapsed.
	st3, action := Evaluate(st, snap("t1", protocol.StatePlaying, 55, 100_500), at(100_500), p)
	assert.Equal(t, ActionSeek, action.Kind)
	assert.Equal(t, int64(55_000), action.PositionMs)
	assert.Equal(t, int64(55_000), st3.LastTargetMs)
	assert.Equal(t, int64(100_500), st3.LastSeekMs)
}

func TestPauseIsIdempotentIntent(t *testing.T) {
	t.Parallel()
	st := State{LastTrackID: "t1", LastTargetMs: 50_000}

	_, action := Evaluate(st, snap("t1", protocol.StatePaused, 50, 100_000), at(100_000), DefaultPolicy())
	assert.Equal(t, ActionPause, action.Kind)

	// A second paused snapshot produces pause again; the sink treats the
	// repeat as a no-op.
	_, action = Evaluate(st, snap("t1", protocol.StatePaused, 50, 100_300), at(100_300), DefaultPolicy())
	assert.Equal(t, ActionPause, action.Kind)
}

func TestStartPositionClampedToZero(t *testing.T) {
	t.Parallel()
	// Capture timestamp ahead of local clock: negative elapsed can push the
	// estimate below zero.
	_, action := Evaluate(State{}, snap("t1", protocol.StatePlaying, 0, 10_000), at(9_000), DefaultPolicy())
	assert.Equal(t, ActionStartTrack, action.Kind)
	assert.Equal(t, int64(0), action.PositionMs)
}
