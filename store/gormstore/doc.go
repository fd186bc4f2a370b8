// Package gormstore implements the goRiskAuth credential, session and event stores on
// gorm. Postgres is the production target; SQLite is supported for local runs and tests.
//
// Lockout counters and backup-code consumption are single statements so concurrent
// logins never lose an increment or spend one code twice.
//
// # Tables
//
//	users             accounts, lockout counter, last login
//	mfa_secrets       one TOTP secret per user
//	mfa_backup_codes  (user_id, code_hash) pairs, deleted when used
//	user_sessions     durable sessions
//	security_events   append-only audit log, read back for risk history
package gormstore
