// Package session is the fast TTL cache that mirrors active sessions and outstanding
// refresh tokens in Redis.
//
// The relational store remains the source of truth for revocation; this cache exists so
// the per-request token path never touches it. Every key carries a TTL that matches the
// lifetime of what it mirrors.
//
// # Keys
//
//	<prefix>:s:<sessionID>  hash   session mirror
//	<prefix>:u:<userID>     set    session ids of a user, for revoke-all
//	<prefix>:r:<refreshID>  string session id the refresh token belongs to
//
// # What this package must NOT do
//
//   - Interpret tokens or decide whether a session should be accepted.
//   - Store passwords, TOTP secrets or backup codes.
package session
