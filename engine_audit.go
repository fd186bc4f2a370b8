package goRiskAuth

import (
	"context"
	"time"

	"github.com/MrEthical07/goRiskAuth/internal"
	"go.uber.org/zap"
)

// appendTimeout bounds the synchronous event append when the request context is gone.
const appendTimeout = 2 * time.Second

// emitAudit records a security event in the EventStore, where risk history reads it
// back, then forwards it to the external sink through the dispatcher.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	id, idErr := internal.NewID(e.random)
	if idErr != nil {
		e.warn("audit.id", idErr)
	}

	event := SecurityEvent{
		ID:        id,
		Timestamp: e.clock.Now().UTC(),
		Type:      eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Error:     ErrorCode(err),
		Metadata:  metadata,
	}

	if e.events != nil {
		// history must survive a caller that already gave up
		appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
		if appendErr := e.events.AppendEvent(appendCtx, event); appendErr != nil {
			e.warn("audit.append", appendErr, zap.String("event_type", eventType))
		}
		cancel()
	}

	e.audit.Emit(ctx, event)
}
