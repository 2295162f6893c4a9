package domain

import "time"

// IsLocked reports whether the account is locked at now. A lock in the past counts as no lock.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// LockExpired reports whether a lock was set and has since passed.
func (a *Account) LockExpired(now time.Time) bool {
	return a.LockedUntil != nil && !a.LockedUntil.After(now)
}

// RegisterFailedLogin applies one failed credential check at now:
//   - an expired lock restarts the count at 1 and clears the lock;
//   - an active lock keeps its expiry and only counts the attempt;
//   - otherwise the count grows and reaching threshold locks until now+lockFor.
//
// The Postgres repository performs the same transition in a single UPDATE.
func (a *Account) RegisterFailedLogin(now time.Time, threshold int, lockFor time.Duration) {
	switch {
	case a.LockExpired(now):
		a.FailedLoginAttempts = 1
		a.LockedUntil = nil
	case a.IsLocked(now):
		a.FailedLoginAttempts++
	default:
		a.FailedLoginAttempts++
		if a.FailedLoginAttempts >= threshold {
			until := now.Add(lockFor)
			a.LockedUntil = &until
		}
	}
	a.UpdatedAt = now
}

// RegisterSuccessfulLogin clears lockout bookkeeping and stamps the login time.
func (a *Account) RegisterSuccessfulLogin(now time.Time) {
	a.FailedLoginAttempts = 0
	a.LockedUntil = nil
	a.LastLoginAt = &now
	a.UpdatedAt = now
}

// ClearLockout resets attempts and lock, e.g. after a password reset.
func (a *Account) ClearLockout() {
	a.FailedLoginAttempts = 0
	a.LockedUntil = nil
}
