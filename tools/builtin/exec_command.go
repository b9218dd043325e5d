package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quailyquaily/execguard/approval"
	"github.com/quailyquaily/execguard/guard"
	"github.com/quailyquaily/execguard/sandbox"
)

// ExecCommandTool runs a local shell-style command under policy governance:
// risk assessment and allow/deny lists first, a human approval round-trip
// when the policy defers, then a direct argv spawn with timeout and output
// caps, with every step audited.
type ExecCommandTool struct {
	Config  guard.Config
	Broker  *approval.Broker
	Auditor *guard.Auditor
	Log     *slog.Logger
}

func NewExecCommandTool(cfg guard.Config, broker *approval.Broker, auditor *guard.Auditor, log *slog.Logger) *ExecCommandTool {
	if log == nil {
		log = slog.Default()
	}
	return &ExecCommandTool{Config: cfg.Normalized(), Broker: broker, Auditor: auditor, Log: log}
}

func (t *ExecCommandTool) Name() string { return "exec_command" }

func (t *ExecCommandTool) Description() string {
	return "Executes a local command (no shell). Unknown commands are routed to a human for approval; denied commands are refused."
}

func (t *ExecCommandTool) ParameterSchema() string {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":    map[string]any{"type": "string", "description": "Command line to execute."},
			"cwd":        map[string]any{"type": "string", "description": "Working directory (optional)."},
			"timeout_ms": map[string]any{"type": "number", "description": "Wall-clock timeout in milliseconds (optional)."},
		},
		"required": []string{"command"},
	}
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

func (t *ExecCommandTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	command, _ := params["command"].(string)
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("missing required param: command")
	}
	cwd, _ := params["cwd"].(string)

	timeout := t.Config.DefaultTimeout
	if ms, ok := params["timeout_ms"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	callID := "call_" + uuid.New().String()
	decision := guard.Decide(command, t.Config)

	switch {
	case decision.Status == guard.StatusDisabled, decision.Status == guard.StatusDenied:
		t.auditPolicyDenied(ctx, callID, command, decision)
		return renderRejection(callID, command, cwd, decision, decision.Reason), nil

	case decision.Status == guard.StatusAllowed && !decision.RequiresApproval:
		return t.execute(ctx, callID, command, cwd, timeout, guard.ModeEnforce, nil)
	}

	// unknown, or allowed but flagged for a human look.
	outcome, report, ok := t.obtainApproval(ctx, callID, command, cwd, timeout, decision)
	if !ok {
		return report, nil
	}

	mode := guard.ModeDenyOnly
	if outcome.Decision == approval.DecisionEdit {
		edited := strings.TrimSpace(outcome.Command)
		if edited == "" {
			return renderRejection(callID, command, cwd, decision, "approver submitted an empty edit"), nil
		}
		recheck := guard.Decide(edited, t.Config)
		if recheck.Status == guard.StatusDenied || recheck.Status == guard.StatusDisabled {
			t.auditPolicyDenied(ctx, callID, edited, recheck)
			return renderRejection(callID, edited, cwd, recheck,
				"denied after approval edit: "+recheck.Reason), nil
		}
		command = edited
	}
	return t.execute(ctx, callID, command, cwd, timeout, mode, outcome)
}

// obtainApproval round-trips through the broker. ok=false means the flow
// ends here and report carries the terminal message.
func (t *ExecCommandTool) obtainApproval(ctx context.Context, callID, command, cwd string, timeout time.Duration, decision guard.PolicyDecision) (*approval.Outcome, string, bool) {
	if t.Broker == nil || !t.Config.Approvals.Enabled {
		t.audit(ctx, guard.AuditApprovalUnavailable, callID, map[string]any{
			"command":       command,
			"policy_status": string(decision.Status),
		})
		return nil, renderRejection(callID, command, cwd, decision,
			"approval required but approvals are not configured"), false
	}

	requester, _ := approval.RequesterFromContext(ctx)
	outcome, err := t.Broker.Ask(ctx, approval.Request{
		CallID:       callID,
		Key:          requester.Key(),
		Command:      command,
		Cwd:          cwd,
		Timeout:      timeout,
		PolicyStatus: decision.Status,
		PolicyReason: decision.Reason,
		RiskLevel:    decision.Risk.Level,
		RiskReasons:  decision.Risk.Reasons,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, renderRejection(callID, command, cwd, decision, "approval wait canceled"), false
		}
		return nil, renderRejection(callID, command, cwd, decision, "approval channel error: "+err.Error()), false
	}

	data := outcome.AuditData()
	data["command"] = command
	t.audit(ctx, guard.AuditApprovalDecision, callID, data)

	if outcome.Decision == approval.DecisionReject {
		reason := "rejected by " + actorLabel(outcome)
		if outcome.Comment != "" {
			reason += ": " + outcome.Comment
		}
		return nil, renderRejection(callID, command, cwd, decision, reason), false
	}
	return &outcome, "", true
}

func (t *ExecCommandTool) execute(ctx context.Context, callID, command, cwd string, timeout time.Duration, mode guard.PolicyMode, outcome *approval.Outcome) (string, error) {
	res, err := sandbox.Run(ctx, t.Config, sandbox.Request{
		Command: command,
		Cwd:     cwd,
		Timeout: timeout,
		Mode:    mode,
		CallID:  callID,
	})
	if err != nil {
		var pe *sandbox.PolicyError
		if errors.As(err, &pe) {
			t.auditPolicyDenied(ctx, callID, command, pe.Decision)
			return renderRejection(callID, command, cwd, pe.Decision, pe.Decision.Reason), nil
		}
		return "", err
	}

	t.audit(ctx, guard.AuditExecResult, callID, res.AuditData())
	return renderResult(res, outcome), nil
}

func (t *ExecCommandTool) auditPolicyDenied(ctx context.Context, callID, command string, decision guard.PolicyDecision) {
	t.audit(ctx, guard.AuditPolicyDenied, callID, map[string]any{
		"command":       command,
		"policy_status": string(decision.Status),
		"reason":        decision.Reason,
		"risk_level":    string(decision.Risk.Level),
		"risk_reasons":  decision.Risk.Reasons,
	})
}

func (t *ExecCommandTool) audit(ctx context.Context, typ guard.AuditEventType, callID string, data map[string]any) {
	t.Auditor.Record(ctx, typ, callID, data)
}

func actorLabel(out approval.Outcome) string {
	switch {
	case out.Metadata.ApproverName != "":
		return out.Metadata.ApproverName
	case out.Metadata.ApproverID != "":
		return out.Metadata.ApproverID
	case out.Metadata.Source == approval.SourceSystem:
		return "system"
	default:
		return "approver"
	}
}
