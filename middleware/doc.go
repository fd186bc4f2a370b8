// Package middleware exposes net/http adapters over goRiskAuth.Engine token
// authentication.
//
// # Guards
//
//   - [Authenticate] reads a bearer token (or the access cookie), calls
//     Engine.AuthenticateToken and attaches the [goRiskAuth.Identity] to the request context.
//   - [RequireRole] rejects requests whose identity lacks a role.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse tokens or
// touch Redis; every decision is delegated to the engine.
package middleware
