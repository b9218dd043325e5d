// Package approval brokers the asynchronous human sign-off negotiation for
// deferred commands: the agent asks, a human answers over some channel, and
// exactly one resolution wins.
package approval

import (
	"time"

	"github.com/quailyquaily/execguard/guard"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionEdit    Decision = "edit"
)

// Source identifies where a decision came from.
type Source string

const (
	SourceCLI    Source = "cli"
	SourceText   Source = "text"
	SourceButton Source = "button"
	SourceSystem Source = "system"
)

// Request describes one approval the broker should obtain.
type Request struct {
	CallID  string
	// Key scopes the approval to a requester identity (e.g. conversation +
	// sender). Replies without an explicit id resolve against this key.
	Key     string
	Command string
	Cwd     string
	Timeout time.Duration

	PolicyStatus guard.PolicyStatus
	PolicyReason string
	RiskLevel    guard.RiskLevel
	RiskReasons  []string
}

// Metadata records who decided, over which channel, and how.
type Metadata struct {
	Channel      string    `json:"channel,omitempty"`
	ApproverID   string    `json:"approver_id,omitempty"`
	ApproverName string    `json:"approver_name,omitempty"`
	Source       Source    `json:"source"`
	DecidedAt    time.Time `json:"decided_at"`
}

// Outcome is the contract the broker returns to its caller and the unit
// persisted to audit.
type Outcome struct {
	Decision Decision `json:"decision"`
	// Command is the replacement command; only meaningful for edit.
	Command  string   `json:"command,omitempty"`
	Comment  string   `json:"comment,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// AuditData flattens the outcome into an audit payload.
func (o Outcome) AuditData() map[string]any {
	data := map[string]any{
		"decision":   string(o.Decision),
		"source":     string(o.Metadata.Source),
		"decided_at": o.Metadata.DecidedAt,
	}
	if o.Command != "" {
		data["command"] = o.Command
	}
	if o.Comment != "" {
		data["comment"] = o.Comment
	}
	if o.Metadata.Channel != "" {
		data["channel"] = o.Metadata.Channel
	}
	if o.Metadata.ApproverID != "" {
		data["approver_id"] = o.Metadata.ApproverID
	}
	if o.Metadata.ApproverName != "" {
		data["approver_name"] = o.Metadata.ApproverName
	}
	return data
}
