// Package risk scores a login attempt against the account's recent history.
//
// [Assess] is a pure function over [Signals]: it performs no I/O and reads no clock.
// The caller gathers history (success-login events, failed-login counts, known devices)
// and the request context (country, fingerprint, user-agent, time) before calling it.
//
// # What this package must NOT do
//
//   - Query stores, caches or geolocation services.
//   - Decide what happens after a decision; the engine owns MFA and blocking.
package risk
