package canvas

import "time"

// RateLimiter enforces a minimum interval between two accepted edits of the same user. It
// only decides; recording the edit time is up to the caller.
type RateLimiter struct {
	Cooldown time.Duration
}

// TryAcquire reports whether s may edit at now. When it may not, wait is the remaining
// cooldown.
func (l RateLimiter) TryAcquire(s *Session, now time.Time) (wait time.Duration, ok bool) {
	last, edited := s.LastEdit()
	if !edited {
		return 0, true
	}
	elapsed := now.Sub(last)
	if elapsed >= l.Cooldown {
		return 0, true
	}
	return l.Cooldown - elapsed, false
}
