package limiters

import "time"

// Policy decides lockout from a failure count and the time of the last failure.
type Policy struct {
	Track       bool
	MaxAttempts int
	Window      time.Duration
}

// Locked reports whether count failures, the last one at last, lock the key at now.
// MaxAttempts == 0 records failures but never locks.
func (p Policy) Locked(count int, last, now time.Time) bool {
	if !p.Track || p.MaxAttempts <= 0 || count < p.MaxAttempts {
		return false
	}
	return now.Sub(last) < p.Window
}
