package credential

import (
	"fmt"
	"time"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

// VerifyResult is the outcome of a password check.
type VerifyResult struct {
	Succeeded bool
	LockedOut bool
	// LockoutTriggered is set when this failure started a lockout window.
	LockoutTriggered bool
}

// Verifier checks passwords and applies the lockout policy. It mutates the
// account's lockout fields in memory; persisting them is the caller's job.
// Email confirmation gating is also the caller's job and must happen first.
type Verifier struct {
	hasher PasswordHasher
	policy LockoutPolicy
	now    func() time.Time
}

func NewVerifier(hasher PasswordHasher, policy LockoutPolicy, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{hasher: hasher, policy: policy, now: now}
}

// Verify never compares the password of a locked account.
func (v *Verifier) Verify(a *entity.Account, password string) (VerifyResult, error) {
	now := v.now()

	locked, state := v.policy.Check(StateOf(a), now)
	state.Apply(a)
	if locked {
		return VerifyResult{LockedOut: true}, nil
	}

	ok, err := v.hasher.Verify(password, a.PasswordHash)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify password for %s: %w", a.ID, err)
	}
	if !ok {
		next, triggered := v.policy.RecordFailure(state, now)
		next.Apply(a)
		return VerifyResult{LockoutTriggered: triggered}, nil
	}

	v.policy.RecordSuccess(state).Apply(a)
	return VerifyResult{Succeeded: true}, nil
}
