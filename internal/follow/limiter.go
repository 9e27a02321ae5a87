package follow

import "time"

// Limiter enforces a minimum spacing between camera commands.
type Limiter struct {
	spacing time.Duration
	last    time.Time
}

func NewLimiter(spacing time.Duration) *Limiter {
	return &Limiter{spacing: spacing}
}

// Ready reports whether a command may be sent at now.
func (l *Limiter) Ready(now time.Time) bool {
	return l.last.IsZero() || now.Sub(l.last) >= l.spacing
}

// Mark records a command sent at now.
func (l *Limiter) Mark(now time.Time) { l.last = now }

// Remaining is the wait until the next command is allowed.
func (l *Limiter) Remaining(now time.Time) time.Duration {
	if l.Ready(now) {
		return 0
	}
	return l.spacing - now.Sub(l.last)
}
