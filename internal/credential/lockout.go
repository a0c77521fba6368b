package credential

import (
	"time"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutWindow    = 10 * time.Minute
)

// LockoutState is the slice of an account the lockout policy reads and writes.
type LockoutState struct {
	FailedAttempts int
	Enabled        bool
	Until          *time.Time
}

// StateOf copies the lockout fields out of an account.
func StateOf(a *entity.Account) LockoutState {
	return LockoutState{
		FailedAttempts: a.FailedAttemptCount,
		Enabled:        a.LockoutEnabled,
		Until:          a.LockoutUntil,
	}
}

// Apply writes s back onto a.
func (s LockoutState) Apply(a *entity.Account) {
	a.FailedAttemptCount = s.FailedAttempts
	a.LockoutEnabled = s.Enabled
	a.LockoutUntil = s.Until
}

// LockoutPolicy is the per-account state machine
// Active -> accumulating failures -> Locked (until expiry) -> Active.
// All methods are pure.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
}

// DefaultLockoutPolicy locks for 10 minutes after 5 consecutive failures.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: DefaultLockoutThreshold, Window: DefaultLockoutWindow}
}

// Check reports whether s is locked at now. An expired window is cleared in
// the returned state (lazy expiry) even if nothing ever reset the flag.
func (p LockoutPolicy) Check(s LockoutState, now time.Time) (bool, LockoutState) {
	if !s.Enabled {
		return false, s
	}
	if s.Until != nil && s.Until.After(now) {
		return true, s
	}
	return false, LockoutState{}
}

// RecordFailure applies a failed, non-locked password check. The second
// result is true when this failure started a lockout window.
func (p LockoutPolicy) RecordFailure(s LockoutState, now time.Time) (LockoutState, bool) {
	s.FailedAttempts++
	if s.FailedAttempts < p.threshold() {
		return s, false
	}
	until := now.Add(p.window())
	return LockoutState{Enabled: true, Until: &until}, true
}

// RecordSuccess resets the counter and clears any lockout.
func (p LockoutPolicy) RecordSuccess(LockoutState) LockoutState {
	return LockoutState{}
}

func (p LockoutPolicy) threshold() int {
	if p.Threshold <= 0 {
		return DefaultLockoutThreshold
	}
	return p.Threshold
}

func (p LockoutPolicy) window() time.Duration {
	if p.Window <= 0 {
		return DefaultLockoutWindow
	}
	return p.Window
}
