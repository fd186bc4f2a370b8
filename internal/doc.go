// Package internal holds helpers private to goRiskAuth: random identifiers,
// opaque session tokens and identifier hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - bootstrap: server config loading and process runtime
//   - httpapi: chi router and JSON handlers for the auth server
//   - limiters: Redis counters for unknown identifiers and second-factor attempts
//   - lockout: failed-attempt and lock-window policy
//   - mfa: TOTP and backup-code primitives
//   - risk: signal scoring and action selection
//
// # What this package must NOT do
//
//   - Export types that appear in the public goRiskAuth API.
//   - Be imported by any package outside the goRiskAuth module.
package internal
