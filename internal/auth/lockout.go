// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package auth

import (
	"time"
)

// Lockout defaults.
const (
	// DefaultLockoutDuration is the time a user is locked out after too many failures.
	DefaultLockoutDuration = 15 * time.Minute

	// DefaultLockoutThreshold is the number of consecutive failures that triggers a lockout.
	DefaultLockoutThreshold = 7
)

// Clock returns the current time. Components take a Clock so tests can
// control expiry.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now()
}

// LockoutPolicy decides when repeated login failures lock an identity.
// A Threshold of zero or less disables lockout.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy returns the default lockout policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold: DefaultLockoutThreshold,
		Duration:  DefaultLockoutDuration,
	}
}

// IsLocked returns true if the identity's lockout time is after now.
func (p LockoutPolicy) IsLocked(identity *UserIdentity, now time.Time) bool {
	return identity.LockedUntil != nil && identity.LockedUntil.After(now)
}

// Remaining returns the time until the lockout ends, or zero.
func (p LockoutPolicy) Remaining(identity *UserIdentity, now time.Time) time.Duration {
	if !p.IsLocked(identity, now) {
		return 0
	}
	return identity.LockedUntil.Sub(now)
}

// Failure returns the threshold and lock expiry a failed login at now is
// counted against. The threshold is zero when lockout is disabled. Storage
// applies them in one atomic update, so parallel failures are all counted.
func (p LockoutPolicy) Failure(now time.Time) (threshold int, lockUntil time.Time) {
	if p.Threshold <= 0 {
		return 0, now
	}
	return p.Threshold, now.Add(p.Duration)
}

// RecordSuccess resets the failure counter and lockout. It reports whether
// anything changed.
func (p LockoutPolicy) RecordSuccess(identity *UserIdentity) bool {
	changed := identity.FailedAttempts != 0 || identity.LockedUntil != nil
	identity.FailedAttempts = 0
	identity.LockedUntil = nil
	return changed
}
