package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/protocol"
	"github.com/dkeye/Tandem/internal/sink"
)

// Runner serializes evaluations over one State and pushes corrective
// actions to the sink without waiting for them. A failed sink call is
// logged and the next snapshot re-evaluates from scratch.
type Runner struct {
	clock  clockwork.Clock
	policy Policy
	player sink.Player

	mu sync.Mutex
	st State
}

func NewRunner(player sink.Player, policy Policy, clock clockwork.Clock) *Runner {
	return &Runner{clock: clock, policy: policy, player: player}
}

// Reset clears the sync memory; call on every session rejoin.
func (r *Runner) Reset() {
	r.mu.Lock()
	r.st = State{}
	r.mu.Unlock()
}

// Handle evaluates one snapshot. Exactly one evaluation runs at a time;
// the sink call it may trigger runs detached.
func (r *Runner) Handle(snap protocol.PlaybackSnapshot) {
	r.mu.Lock()
	st, action := Evaluate(r.st, snap, r.clock.Now(), r.policy)
	r.st = st
	r.mu.Unlock()

	if action.Kind == ActionNone {
		return
	}
	log.Debug().Str("module", "syncer").Str("action", action.Kind.String()).
		Int64("position_ms", action.PositionMs).Msg("corrective action")
	go r.dispatch(action)
}

func (r *Runner) dispatch(a Action) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch a.Kind {
	case ActionStartTrack:
		err = r.player.StartTrack(ctx, a.TrackID, a.PositionMs)
	case ActionPause:
		err = r.player.Pause(ctx)
	case ActionSeek:
		err = r.player.Seek(ctx, a.PositionMs)
	}
	if err != nil {
		log.Warn().Str("module", "syncer").Str("action", a.Kind.String()).Err(err).Msg("sink call failed")
	}
}
