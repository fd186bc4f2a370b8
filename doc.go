// Package goRiskAuth is a risk-based authentication engine. Every login attempt is
// scored and then allowed, challenged for a second factor or blocked; successful
// logins get a durable session, a cached session mirror and a signed token pair.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goRiskAuth is the public surface. It exposes [Engine], [Builder], [Config], the store
// interfaces a deployment implements ([CredentialStore], [SessionStore], [EventStore]) and
// value types. Scoring, lockout arithmetic, TOTP handling and audit dispatch live under
// internal/ and are never exported. store/gormstore implements the stores on gorm.
//
// # Login pipeline
//
//  1. Lockout gate: an active lock short-circuits before the password is read.
//  2. Credential check: Argon2id (bcrypt for legacy rows), atomic failure counter.
//  3. Risk assessment: country, device, hour, failures and user agent history.
//  4. MFA: TOTP or a single-use backup code when the assessment challenges.
//  5. Session and tokens: durable row, cache mirror, access and refresh JWTs.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Return risk factors or the existence of an account to the caller.
//   - Import any sub-package that re-imports goRiskAuth (no import cycles).
package goRiskAuth
