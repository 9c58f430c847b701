package authcore

import (
	"context"
	"errors"
)

// AuditErrorCode is the stable error label carried by failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountNotActive   AuditErrorCode = "account_not_active"
	auditErrLockedOut          AuditErrorCode = "locked_out"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrExpired            AuditErrorCode = "expired"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrConsistency        AuditErrorCode = "consistency_violation"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// auditEventType is "<operation>_success" or "<operation>_failure".
func auditEventType(op Operation, success bool) string {
	if success {
		return string(op) + "_success"
	}
	return string(op) + "_failure"
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	identity string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Identity:  identity,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// finish is the single exit of every observed operation: it collapses err to its public
// sentinel, then records the outcome in audit, metrics and hooks.
func (e *Engine) finish(ctx context.Context, ev HookEvent, err error, metadataBuilder func() map[string]string) error {
	err = e.publicError(ctx, ev.Operation, err)
	success := err == nil

	e.emitAudit(ctx, auditEventType(ev.Operation, success), success, ev.UserID, ev.Identity, err, metadataBuilder)
	if id, ok := outcomeMetric(ev.Operation, err); ok {
		e.metricInc(id)
	}

	if success {
		e.runHooks(ctx, AfterSuccess, ev)
	} else {
		ev.Err = err
		e.runHooks(ctx, AfterFailure, ev)
	}
	return err
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotActive):
		return auditErrAccountNotActive
	case errors.Is(err, ErrLockedOut):
		return auditErrLockedOut
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrExpired):
		return auditErrExpired
	case errors.Is(err, ErrDuplicateIdentity):
		return auditErrDuplicate
	case errors.Is(err, ErrConsistencyViolation):
		return auditErrConsistency
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
