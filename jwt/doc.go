// Package jwt issues and verifies the signed access and refresh tokens bound to a session.
//
// Access tokens carry the identity (user id, email, roles, session id). Refresh tokens
// carry only the user id, session id and a token id whose existence is tracked in the
// session cache. Both carry a "typ" claim so one can never be used as the other.
//
// Signature verification always happens before expiry checks: a tampered token reports
// [ErrTokenInvalid] whether or not it has expired.
package jwt
