package internaldefs

import (
	goRiskAuth "github.com/MrEthical07/goRiskAuth"
)

// Def names one exported series.
type Def struct {
	ID   goRiskAuth.MetricID
	Name string
	Help string
}

// Counters lists every counter in exposition order.
var Counters = []Def{
	{goRiskAuth.MetricLoginSuccess, "riskauth_login_success_total", "Logins that produced a session."},
	{goRiskAuth.MetricLoginFailure, "riskauth_login_failure_total", "Logins rejected for invalid credentials."},
	{goRiskAuth.MetricAccountLocked, "riskauth_account_locked_total", "Logins rejected because the account was locked."},
	{goRiskAuth.MetricLoginBlocked, "riskauth_login_blocked_total", "Logins blocked by risk assessment."},
	{goRiskAuth.MetricRiskAllow, "riskauth_risk_allow_total", "Risk assessments that allowed the login."},
	{goRiskAuth.MetricRiskChallenge, "riskauth_risk_challenge_total", "Risk assessments that required a second factor."},
	{goRiskAuth.MetricRiskBlock, "riskauth_risk_block_total", "Risk assessments that blocked the login."},
	{goRiskAuth.MetricMFARequired, "riskauth_mfa_required_total", "Logins answered with an MFA challenge."},
	{goRiskAuth.MetricMFASuccess, "riskauth_mfa_success_total", "Accepted TOTP or backup codes."},
	{goRiskAuth.MetricMFAFailure, "riskauth_mfa_failure_total", "Rejected TOTP or backup codes."},
	{goRiskAuth.MetricMFAEnabled, "riskauth_mfa_enabled_total", "Completed MFA enrollments."},
	{goRiskAuth.MetricBackupCodeUsed, "riskauth_backup_code_used_total", "Consumed backup codes."},
	{goRiskAuth.MetricSessionCreated, "riskauth_session_created_total", "Created sessions."},
	{goRiskAuth.MetricSessionInvalid, "riskauth_session_invalid_total", "Token checks rejected for a missing or expired session."},
	{goRiskAuth.MetricTokenInvalid, "riskauth_token_invalid_total", "Token checks rejected for an invalid token."},
	{goRiskAuth.MetricTokenExpired, "riskauth_token_expired_total", "Token checks rejected for an expired token."},
	{goRiskAuth.MetricRefreshSuccess, "riskauth_refresh_success_total", "Successful refresh exchanges."},
	{goRiskAuth.MetricRefreshFailure, "riskauth_refresh_failure_total", "Rejected refresh exchanges."},
	{goRiskAuth.MetricLogout, "riskauth_logout_total", "Single-session logouts."},
	{goRiskAuth.MetricLogoutAll, "riskauth_logout_all_total", "Logout-all operations."},
	{goRiskAuth.MetricInternalError, "riskauth_internal_error_total", "Operations failed by store or cache errors."},
}

// Histograms lists every latency histogram.
var Histograms = []Def{
	{goRiskAuth.MetricLoginLatency, "riskauth_login_latency_seconds", "Login latency."},
	{goRiskAuth.MetricAuthenticateLatency, "riskauth_authenticate_latency_seconds", "Token authentication latency."},
}

// Bounds are the upper bounds of the eight engine buckets, in seconds.
var Bounds = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// BoundSuffix is Bounds made safe for instrument names.
var BoundSuffix = [8]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// Cumulative converts raw per-bucket counts into cumulative counts. Missing buckets count as zero.
func Cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
