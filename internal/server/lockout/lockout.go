// Package lockout decides whether a login attempt may proceed given the
// account's lockout deadline and its recent failure count. It performs no
// I/O; callers persist the outcome.
package lockout

import "time"

// Decision is the outcome of Evaluate.
type Decision int

const (
	// Allow lets the attempt continue to the credential check.
	Allow Decision = iota
	// Locked rejects the attempt because a lock is already in force.
	Locked
	// LockNow rejects the attempt as invalid credentials and starts a lock.
	LockNow
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Locked:
		return "locked"
	case LockNow:
		return "lock_now"
	default:
		return "unknown"
	}
}

// Verdict carries the decision and, for LockNow, the deadline to persist.
type Verdict struct {
	Decision Decision
	Until    time.Time
}

// Policy holds the configured thresholds.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
	Duration    time.Duration
}

// Evaluate applies the policy. An active lock wins without looking at the
// failure count.
func (p Policy) Evaluate(lockoutUntil *time.Time, now time.Time, failedInWindow int) Verdict {
	if lockoutUntil != nil && lockoutUntil.After(now) {
		return Verdict{Decision: Locked, Until: *lockoutUntil}
	}
	if p.Tripped(failedInWindow) {
		return Verdict{Decision: LockNow, Until: p.LockUntil(now)}
	}
	return Verdict{Decision: Allow}
}

// WindowStart is the inclusive lower bound of the counting window [start, now).
func (p Policy) WindowStart(now time.Time) time.Time {
	return now.Add(-p.Window)
}

// Tripped reports whether count has reached the threshold.
func (p Policy) Tripped(count int) bool {
	return count >= p.MaxAttempts
}

// LockUntil is the deadline of a lock starting at now.
func (p Policy) LockUntil(now time.Time) time.Time {
	return now.Add(p.Duration)
}
