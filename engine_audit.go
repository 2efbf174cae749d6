package goSession

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventLoginRateLimited = "login_rate_limited"
	auditEventSessionRevoked   = "session_revoked"
	auditEventSessionNoop      = "session_revoke_noop"
	auditEventForcedSignout    = "forced_signout"
)

// AuditErrorCode is the stable error vocabulary used in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrIdentityRejected      AuditErrorCode = "identity_rejected"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrInvalidIdentity       AuditErrorCode = "invalid_identity"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrProfileProvision      AuditErrorCode = "profile_provision_failed"
	auditErrSessionInvalidation   AuditErrorCode = "session_invalidation_failed"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

// emitAudit queues one event. An event succeeds when err is nil; meta is a
// flat list of key/value pairs.
func (e *Engine) emitAudit(ctx context.Context, eventType, identity string, err error, meta ...string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Identity:  identity,
		IP:        clientIPFromContext(ctx),
		Success:   err == nil,
		Error:     string(auditErrorCode(err)),
	}
	if len(meta) > 1 {
		event.Metadata = make(map[string]string, len(meta)/2)
		for i := 0; i+1 < len(meta); i += 2 {
			event.Metadata[meta[i]] = meta[i+1]
		}
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode maps err onto the stable code vocabulary. Checks run from
// most to least specific since wrapped errors match several sentinels.
func auditErrorCode(err error) AuditErrorCode {
	for _, c := range auditErrorCodes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	if err != nil {
		return auditErrInternal
	}
	return ""
}

var auditErrorCodes = []struct {
	target error
	code   AuditErrorCode
}{
	{ErrIdentityRejected, auditErrIdentityRejected},
	{ErrLoginRateLimited, auditErrRateLimited},
	{ErrInvalidIdentity, auditErrInvalidIdentity},
	{ErrInvalidLifetime, auditErrInvalidIdentity},
	{ErrProfileProvisionFailed, auditErrProfileProvision},
	{ErrSessionCreationFailed, auditErrSessionCreationFailed},
	{ErrSessionInvalidationFailed, auditErrSessionInvalidation},
	{ErrUpstreamUnavailable, auditErrUnavailable},
}
