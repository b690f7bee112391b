// Package sink is the boundary to the external playback-control side.
// The real player API (and its token exchange) lives outside this repo;
// everything here treats it as an opaque asynchronous capability.
package sink

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoActiveDevice   = errors.New("no active device")
	ErrPremiumRequired  = errors.New("premium required")
)

// Player drives a follower's playback toward the source's state.
// Implementations may fail with the sentinel errors above; callers treat
// all of them as non-fatal for the current evaluation.
type Player interface {
	StartTrack(ctx context.Context, trackID string, positionMs int64) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, positionMs int64) error
}

// LogPlayer is the shipped stand-in sink: it only logs what a real player
// would be told to do. Useful for running an agent without credentials.
type LogPlayer struct{}

func (LogPlayer) StartTrack(_ context.Context, trackID string, positionMs int64) error {
	log.Info().Str("module", "sink").Str("track", trackID).Int64("position_ms", positionMs).Msg("start track")
	return nil
}

func (LogPlayer) Pause(_ context.Context) error {
	log.Info().Str("module", "sink").Msg("pause")
	return nil
}

func (LogPlayer) Seek(_ context.Context, positionMs int64) error {
	log.Info().Str("module", "sink").Int64("position_ms", positionMs).Msg("seek")
	return nil
}
