// Package debounce guards external source dispatch against duplicate rapid
// triggers, e.g. a double tap on a source row launching two pickers for the
// same logical action.
package debounce

import (
	"time"

	"golang.org/x/time/rate"
)

// DefaultWindow is the minimum time between accepted dispatch triggers.
const DefaultWindow = 1000 * time.Millisecond

// Guard accepts at most one trigger per cool-down window. It is scoped to a
// single acquisition session, not shared across concurrent requests.
type Guard struct {
	lim *rate.Limiter
}

// NewGuard creates a guard with the given window. A non-positive window falls
// back to DefaultWindow.
func NewGuard(window time.Duration) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Guard{lim: rate.NewLimiter(rate.Every(window), 1)}
}

// TryProceed reports whether a dispatch may proceed at now. It returns true
// and starts a new cool-down only if at least one window has elapsed since
// the last accepted trigger; otherwise it returns false with no side effects.
func (g *Guard) TryProceed(now time.Time) bool {
	return g.lim.AllowN(now, 1)
}
