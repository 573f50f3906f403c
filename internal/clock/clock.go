// internal/clock/clock.go
package clock

import "time"

// Clock supplies the ambient execution timestamp. Core packages never
// call time.Now directly; cooldown windows and claim deadlines are
// compared against an injected Clock so tests and replay stay
// deterministic.
type Clock interface {
	Now() time.Time
}

// System is the wall-clock implementation used in production wiring.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Manual is a hand-advanced clock for tests and deterministic replay.
type Manual struct {
	current time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{current: start}
}

func (m *Manual) Now() time.Time { return m.current }

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) { m.current = m.current.Add(d) }

// Set jumps the clock to t.
func (m *Manual) Set(t time.Time) { m.current = t }
