// Package lockout holds the time-window rules for temporary account lockout.
//
// Counting happens in the credential store through a single atomic statement; this
// package only answers questions about thresholds and timestamps.
package lockout

import "time"

const (
	DefaultMaxAttempts = 5
	DefaultDuration    = 15 * time.Minute
)

// Policy is the lockout threshold and window.
type Policy struct {
	MaxAttempts int
	Duration    time.Duration
}

// Default returns five attempts and a fifteen minute lock.
func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Duration: DefaultDuration}
}

// Locked reports whether lockedUntil is still in the future at now.
func (p Policy) Locked(now time.Time, lockedUntil *time.Time) bool {
	return lockedUntil != nil && now.Before(*lockedUntil)
}

// Elapsed reports whether a lock was set and its window has passed. The caller must
// then reset the counter, since an unlocked account starts from zero.
func (p Policy) Elapsed(now time.Time, lockedUntil *time.Time) bool {
	return lockedUntil != nil && !now.Before(*lockedUntil)
}

// Reached reports whether failures has hit the threshold.
func (p Policy) Reached(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}

// LockUntil is the end of a lock that starts at now.
func (p Policy) LockUntil(now time.Time) time.Time {
	return now.Add(p.Duration)
}
