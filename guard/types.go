package guard

import (
	"path"
	"strings"
	"time"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (l RiskLevel) rank() int {
	switch l {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// Max returns the higher of the two levels, so a level is only ever raised.
func (l RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.rank() > l.rank() {
		return other
	}
	return l
}

type PolicyStatus string

const (
	StatusAllowed  PolicyStatus = "allowed"
	StatusDenied   PolicyStatus = "denied"
	StatusUnknown  PolicyStatus = "unknown"
	StatusDisabled PolicyStatus = "disabled"
)

// Command is the parsed form of a raw command string. It is derived once per
// assessment and re-derived when a human edits the command during approval.
type Command struct {
	Raw    string
	Tokens []string
}

// Base returns the filename component of the first token, so "/usr/bin/ls"
// and "ls" are equivalent for allow/deny list membership.
func (c Command) Base() string {
	if len(c.Tokens) == 0 {
		return ""
	}
	return path.Base(strings.TrimSpace(c.Tokens[0]))
}

// RiskAssessment is a pure function of a command string; it carries no
// persisted identity.
type RiskAssessment struct {
	Level            RiskLevel `json:"level"`
	Blocked          bool      `json:"blocked"`
	RequiresApproval bool      `json:"requires_approval"`
	Reasons          []string  `json:"reasons,omitempty"`
}

// PolicyDecision is the engine's verdict before any human involvement.
type PolicyDecision struct {
	Status           PolicyStatus   `json:"status"`
	Reason           string         `json:"reason,omitempty"`
	Risk             RiskAssessment `json:"risk"`
	RequiresApproval bool           `json:"requires_approval"`
}

// PolicyMode selects how strict the execution-time policy check is.
type PolicyMode string

const (
	// ModeEnforce requires an allowed status.
	ModeEnforce PolicyMode = "enforce"
	// ModeDenyOnly only rejects denied/disabled commands. It is used after a
	// human has already approved an otherwise-unknown command.
	ModeDenyOnly PolicyMode = "deny-only"
)

type AuditEventType string

const (
	AuditPolicyDenied        AuditEventType = "policy_denied"
	AuditApprovalUnavailable AuditEventType = "approval_required_but_disabled"
	AuditApprovalDecision    AuditEventType = "approval_decision"
	AuditExecResult          AuditEventType = "exec_result"
)

// AuditEvent is one line of the JSONL audit trail. Data is redacted before
// serialization.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      AuditEventType `json:"type"`
	CallID    string         `json:"call_id"`
	Data      map[string]any `json:"data,omitempty"`
}
