package app

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Tandem/internal/core"
)

func TestMonitorEvictsOnlyStaleConnections(t *testing.T) {
	fc := clockwork.NewFakeClock()
	evicted := make(chan core.ConnID, 4)
	m := NewMonitor(fc, 45*time.Second, func(id core.ConnID) { evicted <- id })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, 30*time.Second)
	fc.BlockUntil(1)

	m.Touch("stale")
	m.Touch("fresh")

	// First sweep: both aged 30s, under the 45s timeout.
	fc.Advance(30 * time.Second)
	fc.BlockUntil(1)
	select {
	case id := <-evicted:
		t.Fatalf("unexpected eviction of %s", id)
	default:
	}

	// Only one of them keeps talking.
	m.Touch("fresh")

	fc.Advance(30 * time.Second)
	select {
	case id := <-evicted:
		assert.Equal(t, core.ConnID("stale"), id)
	case <-time.After(2 * time.Second):
		t.Fatal("stale connection was not evicted")
	}
	select {
	case id := <-evicted:
		t.Fatalf("unexpected second eviction of %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMonitorForgetStopsTracking(t *testing.T) {
	fc := clockwork.NewFakeClock()
	evicted := make(chan core.ConnID, 1)
	m := NewMonitor(fc, time.Minute, func(id core.ConnID) { evicted <- id })

	m.Touch("gone")
	m.Forget("gone")
	fc.Advance(2 * time.Minute)
	m.sweep()

	select {
	case id := <-evicted:
		t.Fatalf("forgotten connection %s was evicted", id)
	default:
	}
}

func TestRelayEvictionClosesAndCleansUp(t *testing.T) {
	fc := clockwork.NewFakeClock()
	r := NewRelay(core.NewRegistry(), fc, time.Minute)
	conn := &fakeConn{}
	join(t, r, "c1", conn, "room", "follower")

	fc.Advance(2 * time.Minute)
	r.monitor.sweep()

	assert.True(t, conn.closed)
	assert.False(t, r.Registry.Has("room"))
}
