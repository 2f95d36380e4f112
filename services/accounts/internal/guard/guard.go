// Package guard holds the login lockout rules. It is pure: callers load the
// state, apply a transition and persist the result in one transaction.
package guard

import "time"

type Policy struct {
	MaxAttempts int
	// Window is how long a failure counts; older failures are forgotten
	// before the next one is recorded.
	Window time.Duration
}

type State struct {
	Attempts    int
	LastFailure *time.Time
	Active      bool
}

// Fail records a failed password check at now. locked is true only for the
// failure that deactivates the account, so a lockout issues exactly one
// recovery token.
func (p Policy) Fail(s State, now time.Time) (next State, locked bool) {
	next = s
	if s.LastFailure != nil && now.Sub(*s.LastFailure) > p.Window {
		next.Attempts = 0
	}
	next.Attempts++
	at := now
	next.LastFailure = &at

	if next.Active && next.Attempts >= p.MaxAttempts {
		next.Active = false
		return next, true
	}
	return next, false
}

// Succeed clears the failure history after a correct password.
func (p Policy) Succeed(s State) State {
	s.Attempts = 0
	s.LastFailure = nil
	return s
}

// Clean reports whether s has no failure history to clear.
func (s State) Clean() bool { return s.Attempts == 0 && s.LastFailure == nil }
