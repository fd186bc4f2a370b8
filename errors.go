package goRiskAuth

import "errors"

var (
	// ErrInvalidCredentials covers unknown emails, wrong passwords and inactive users alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lock window is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrMFARequired asks the caller to resubmit the login with a second factor.
	ErrMFARequired = errors.New("mfa required")
	// ErrInvalidMFA is returned for a TOTP or backup code that did not verify.
	ErrInvalidMFA = errors.New("invalid mfa code")
	// ErrHighRiskBlocked is returned when risk assessment blocks the login.
	ErrHighRiskBlocked = errors.New("login blocked due to security concerns")
	// ErrTokenInvalid is returned for malformed, tampered or replayed tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned for correctly signed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrSessionInvalid is returned when the session behind a token is gone or expired.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrInternal wraps store, cache and timeout failures.
	ErrInternal = errors.New("internal error")

	// ErrNotFound is returned by stores for a missing record.
	ErrNotFound = errors.New("not found")
	// ErrMFANotEnrolled is returned when an MFA operation needs a stored secret.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")
	// ErrMFAAlreadyEnabled is returned by SetupMFA for users that already finished enrollment.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrEngineNotReady is returned by methods on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Error codes returned by ErrorCode and written to audit events.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeAccountLocked      = "account_locked"
	CodeMFARequired        = "mfa_required"
	CodeInvalidMFA         = "invalid_mfa"
	CodeHighRiskBlocked    = "high_risk_blocked"
	CodeInvalidToken       = "invalid_token"
	CodeTokenExpired       = "token_expired"
	CodeSessionInvalid     = "session_invalid"
	CodeInternal           = "internal_error"
	CodeNotFound           = "not_found"
	CodeMFANotEnrolled     = "mfa_not_enrolled"
	CodeMFAAlreadyEnabled  = "mfa_already_enabled"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrAccountLocked, CodeAccountLocked},
	{ErrMFARequired, CodeMFARequired},
	{ErrInvalidMFA, CodeInvalidMFA},
	{ErrHighRiskBlocked, CodeHighRiskBlocked},
	{ErrTokenInvalid, CodeInvalidToken},
	{ErrTokenExpired, CodeTokenExpired},
	{ErrSessionInvalid, CodeSessionInvalid},
	{ErrMFANotEnrolled, CodeMFANotEnrolled},
	{ErrMFAAlreadyEnabled, CodeMFAAlreadyEnabled},
	{ErrNotFound, CodeNotFound},
	{ErrInternal, CodeInternal},
}

// ErrorCode maps err to its taxonomy string. Nil maps to "" and unknown errors map to
// internal_error.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, candidate := range errorCodes {
		if errors.Is(err, candidate.err) {
			return candidate.code
		}
	}
	return CodeInternal
}
