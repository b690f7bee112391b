package app

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tandem/internal/core"
)

// Monitor tracks last-activity per connection and evicts the silent ones.
// Half-open sockets do not always surface a transport close promptly, so
// every inbound message counts as a touch and a periodic sweep hard-closes
// anything older than the timeout.
type Monitor struct {
	clock    clockwork.Clock
	timeout  time.Duration
	onExpire func(core.ConnID)

	mu   sync.Mutex
	last map[core.ConnID]time.Time
}

func NewMonitor(clock clockwork.Clock, timeout time.Duration, onExpire func(core.ConnID)) *Monitor {
	return &Monitor{
		clock:    clock,
		timeout:  timeout,
		onExpire: onExpire,
		last:     make(map[core.ConnID]time.Time),
	}
}

// Touch records activity for the connection, registering it if new.
func (m *Monitor) Touch(id core.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[id] = m.clock.Now()
}

// Forget drops the connection from tracking without closing it.
func (m *Monitor) Forget(id core.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.last, id)
}

// Run sweeps at the given interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.sweep()
		}
	}
}

func (m *Monitor) sweep() {
	now := m.clock.Now()
	var expired []core.ConnID
	m.mu.Lock()
	for id, seen := range m.last {
		if now.Sub(seen) > m.timeout {
			expired = append(expired, id)
			delete(m.last, id)
		}
	}
	m.mu.Unlock()

	// Callbacks run outside the lock; they close transports.
	for _, id := range expired {
		log.Warn().Str("module", "app.liveness").Str("conn", string(id)).Msg("liveness timeout, evicting")
		if m.onExpire != nil {
			m.onExpire(id)
		}
	}
}
