package guard

import (
	"context"
	"log/slog"
	"time"
)

type AuditSink interface {
	Emit(ctx context.Context, e AuditEvent) error
	Close() error
}

// Auditor records governance events best-effort: a missing audit trail must
// not block the agent, so write failures are logged and swallowed.
type Auditor struct {
	sink AuditSink
	log  *slog.Logger
}

func NewAuditor(sink AuditSink, log *slog.Logger) *Auditor {
	if log == nil {
		log = slog.Default()
	}
	return &Auditor{sink: sink, log: log}
}

// Record redacts data and appends one audit event. Safe on a nil receiver.
func (a *Auditor) Record(ctx context.Context, typ AuditEventType, callID string, data map[string]any) {
	if a == nil || a.sink == nil {
		return
	}
	redacted, _ := RedactValue(data).(map[string]any)
	e := AuditEvent{
		Timestamp: time.Now().UTC(),
		Type:      typ,
		CallID:    callID,
		Data:      redacted,
	}
	if err := a.sink.Emit(ctx, e); err != nil {
		a.log.Warn("guard_audit_write_error", "type", string(typ), "call_id", callID, "error", err.Error())
	}
}

func (a *Auditor) Close() error {
	if a == nil || a.sink == nil {
		return nil
	}
	return a.sink.Close()
}
