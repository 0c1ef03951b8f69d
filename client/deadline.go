package client

import (
	"sync"
	"time"

	"clawdash/clock"
)

// deadlineGuard is the one countdown of a call.
type deadlineGuard struct {
	clock clock.Clock

	mu    sync.Mutex
	timer *clock.Timer
}

func newDeadlineGuard(clk clock.Clock) *deadlineGuard {
	return &deadlineGuard{clock: clk}
}

// arm schedules onExpire after timeout. A guard is armed once per call.
func (g *deadlineGuard) arm(timeout time.Duration, onExpire func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		return
	}
	g.timer = g.clock.AfterFunc(timeout, onExpire)
}

// disarm stops the countdown. Safe to call repeatedly, before arm, or after expiry.
func (g *deadlineGuard) disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
}
