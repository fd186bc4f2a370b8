package goRiskAuth

import (
	"context"
	"fmt"
	"io"

	"github.com/MrEthical07/goRiskAuth/internal/audit"
	"github.com/MrEthical07/goRiskAuth/internal/limiters"
	"github.com/MrEthical07/goRiskAuth/internal/lockout"
	"github.com/MrEthical07/goRiskAuth/internal/mfa"
	"github.com/MrEthical07/goRiskAuth/internal/risk"
	"github.com/MrEthical07/goRiskAuth/jwt"
	"github.com/MrEthical07/goRiskAuth/password"
	"github.com/MrEthical07/goRiskAuth/session"
	"go.uber.org/zap"
)

// Engine runs logins, token checks and session lifecycle operations.
//
// Engine instances are immutable after Build and safe for concurrent use.
type Engine struct {
	config Config

	credentials CredentialStore
	sessions    SessionStore
	events      EventStore
	cache       *session.Cache
	pending     *limiters.PendingFailures
	mfaAttempts *limiters.MFAAttempts

	tokens  *jwt.Manager
	hasher  *password.Hasher
	lockout lockout.Policy
	risk    risk.Policy
	mfa     mfa.Config

	clock  Clock
	random io.Reader
	geo    GeoLocator
	device DeviceParser

	audit   *audit.Dispatcher
	logger  *zap.Logger
	metrics *Metrics
}

// Close drains the audit dispatcher. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped is the number of events discarded because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// HashPassword encodes password with the configured Argon2id parameters, for
// provisioning users into a CredentialStore.
func (e *Engine) HashPassword(password string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return e.hasher.Hash(password)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.hasher != nil && e.tokens != nil && e.cache != nil
}

// operationContext applies Config.OperationTimeout on top of the caller's context.
func (e *Engine) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.config.OperationTimeout > 0 {
		return context.WithTimeout(ctx, e.config.OperationTimeout)
	}
	return ctx, func() {}
}

// internalError counts, logs and audits a store or cache failure and wraps it in ErrInternal.
func (e *Engine) internalError(ctx context.Context, op, userID string, err error) error {
	e.metricInc(MetricInternalError)
	e.logger.Error("operation failed", zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
	e.emitAudit(ctx, EventInternalError, false, userID, "", ErrInternal, func() map[string]string {
		return map[string]string{"op": op}
	})
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

// warn logs a best-effort failure that does not change the outcome.
func (e *Engine) warn(op string, err error, fields ...zap.Field) {
	e.logger.Warn("best-effort step failed", append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)...)
}
