// Package limiters provides Redis-backed counters that sit beside the durable
// lockout state.
//
// # Limiters
//
//   - [PendingFailures]: failed logins for emails with no user record. Keys hold
//     a SHA-256 of the identifier and expire with the lockout window.
//   - [MFAAttempts]: wrong TOTP and backup codes per user. The window opens at the
//     first failure and a successful check clears it.
//
// All limiters are nil-safe: calling any method on a nil receiver returns a zero
// value and nil error.
//
// # What this package must NOT do
//
//   - Import goRiskAuth or any sibling internal package.
//   - Make policy decisions beyond counting. The engine decides consequences.
package limiters
