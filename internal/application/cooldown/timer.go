// Package cooldown implements the resend countdown shown after a code is sent.
package cooldown

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer counts whole seconds down to zero. It only gates client-initiated
// resends; providers apply their own limits.
type Timer struct {
	clock     clockwork.Clock
	remaining int
	deadline  time.Time
}

// New returns a stopped timer on clock.
func New(clock clockwork.Clock) *Timer {
	return &Timer{clock: clock}
}

// Restore rebuilds a timer from a persisted deadline.
func Restore(clock clockwork.Clock, deadline time.Time) *Timer {
	t := &Timer{clock: clock, deadline: deadline}
	t.Sync()
	return t
}

// Start begins a countdown of seconds.
func (t *Timer) Start(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	t.remaining = seconds
	t.deadline = t.clock.Now().Add(time.Duration(seconds) * time.Second)
}

// Tick removes one second from the countdown.
func (t *Timer) Tick() {
	if t.remaining > 0 {
		t.remaining--
	}
}

// Sync recomputes the remaining seconds from the deadline, rounding up.
func (t *Timer) Sync() {
	left := t.deadline.Sub(t.clock.Now())
	if left <= 0 {
		t.remaining = 0
		return
	}
	t.remaining = int((left + time.Second - 1) / time.Second)
}

// Remaining returns the seconds left.
func (t *Timer) Remaining() int { return t.remaining }

// Deadline returns the instant the countdown reaches zero.
func (t *Timer) Deadline() time.Time { return t.deadline }

// CanResend reports whether the countdown has reached zero.
func (t *Timer) CanResend() bool { return t.remaining == 0 }
