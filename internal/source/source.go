// Package source is the boundary to the now-playing detection side.
// Detectors push snapshots; they are never polled.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/protocol"
)

// Detector emits a snapshot whenever the observed player state changes.
// CaptureTimestampMs must come from the same clock domain the transport
// uses.
type Detector interface {
	Run(ctx context.Context, emit func(protocol.PlaybackSnapshot)) error
}

// LineDetector reads line-delimited snapshot JSON from a reader, one
// snapshot per line. It is the shipped stand-in for a real now-playing
// detector and doubles as a scripting hook (pipe snapshots into stdin).
type LineDetector struct {
	R io.Reader
}

func (d LineDetector) Run(ctx context.Context, emit func(protocol.PlaybackSnapshot)) error {
	sc := bufio.NewScanner(d.R)
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var snap protocol.PlaybackSnapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			log.Warn().Str("module", "source").Err(err).Msg("bad snapshot line")
			continue
		}
		if err := snap.Validate(); err != nil {
			log.Warn().Str("module", "source").Err(err).Msg("invalid snapshot line")
			continue
		}
		emit(snap)
	}
	return sc.Err()
}
