package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Tandem/internal/domain"
)

func strp(s string) *string   { return &s }
func f64p(f float64) *float64 { return &f }

func TestPeek(t *testing.T) {
	t.Parallel()

	typ, err := Peek([]byte(`{"type":"PING"}`))
	require.NoError(t, err)
	assert.Equal(t, TypePing, typ)

	_, err = Peek([]byte(`{`))
	assert.Error(t, err)

	_, err = Peek([]byte(`{"sessionId":"room"}`))
	assert.ErrorIs(t, err, domain.ErrUnknownType)
}

func TestSnapshotValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		snap PlaybackSnapshot
		ok   bool
	}{
		{
			name: "playing track",
			snap: PlaybackSnapshot{TrackID: strp("t1"), Title: strp("Song"), DurationSec: f64p(180), PositionSec: 10, PlaybackState: StatePlaying},
			ok:   true,
		},
		{
			name: "nothing playing",
			snap: PlaybackSnapshot{PlaybackState: StateStopped},
			ok:   true,
		},
		{
			name: "metadata without track",
			snap: PlaybackSnapshot{Title: strp("Song"), PlaybackState: StateStopped},
		},
		{
			name: "negative position",
			snap: PlaybackSnapshot{TrackID: strp("t1"), PositionSec: -1, PlaybackState: StatePlaying},
		},
		{
			name: "negative duration",
			snap: PlaybackSnapshot{TrackID: strp("t1"), DurationSec: f64p(-5), PlaybackState: StatePlaying},
		},
		{
			name: "unknown playback state",
			snap: PlaybackSnapshot{TrackID: strp("t1"), PlaybackState: "humming"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.snap.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrBadSnapshot)
		})
	}
}

func TestWireFieldNames(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Join{Type: TypeJoin, SessionID: "room", Role: "follower", ListenerID: "l1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"JOIN","sessionId":"room","role":"follower","listenerId":"l1"}`, string(b))

	update := NewStateUpdate("room", PlaybackSnapshot{
		TrackID:            strp("t1"),
		Title:              strp("Song"),
		Artist:             strp("Band"),
		Album:              strp("Album"),
		DurationSec:        f64p(180),
		PositionSec:        12.5,
		PlaybackState:      StatePlaying,
		CaptureTimestampMs: 1700000000000,
	})
	b, err = json.Marshal(update)
	require.NoError(t, err)

	var decoded StateUpdate
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, update, decoded)
}
