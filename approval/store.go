package approval

import (
	"context"
	"time"
)

type RecordStatus string

const (
	RecordPending  RecordStatus = "pending"
	RecordApproved RecordStatus = "approved"
	RecordRejected RecordStatus = "rejected"
	RecordEdited   RecordStatus = "edited"
)

// Record is the durable trace of one approval's lifecycle. The broker writes
// it best-effort; the in-memory indices remain the source of truth for
// resolution.
type Record struct {
	ID          string
	CallID      string
	Key         string
	Command     string
	RiskLevel   string
	RiskReasons []string
	CreatedAt   time.Time
	ResolvedAt  *time.Time

	Status       RecordStatus
	Source       string
	ApproverID   string
	ApproverName string
	Comment      string
	// EditedCommand is the replacement the approver supplied, when any.
	EditedCommand string
}

type Store interface {
	Create(ctx context.Context, rec Record) error
	Resolve(ctx context.Context, id string, out Outcome) error
	List(ctx context.Context, limit int) ([]Record, error)
}

func statusForDecision(d Decision) RecordStatus {
	switch d {
	case DecisionApprove:
		return RecordApproved
	case DecisionEdit:
		return RecordEdited
	default:
		return RecordRejected
	}
}
