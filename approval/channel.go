package approval

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Channel delivers approval prompts to a human. Implementations live with
// the messaging transports; the broker only needs these two operations.
type Channel interface {
	Name() string

	// SendCard renders a structured approval card with buttons and returns
	// the card instance id the transport assigned. Channels that cannot
	// render cards return an error; the broker then downgrades the pending
	// approval to free-text mode for the rest of its lifetime.
	SendCard(ctx context.Context, req Request, approvalID string) (string, error)

	// SendText delivers a plain-text message to the requester identified by
	// key.
	SendText(ctx context.Context, key string, text string) error
}

// TextPrompt renders the plain-text approval prompt used when no card could
// be delivered. It presents the command, the risk level, and the id the
// approver can reference in a reply.
func TextPrompt(req Request, approvalID string, timeout time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval required [%s]\n", approvalID)
	fmt.Fprintf(&b, "Command: %s\n", req.Command)
	if strings.TrimSpace(req.Cwd) != "" {
		fmt.Fprintf(&b, "Cwd: %s\n", req.Cwd)
	}
	fmt.Fprintf(&b, "Policy: %s", req.PolicyStatus)
	if strings.TrimSpace(req.PolicyReason) != "" {
		fmt.Fprintf(&b, " (%s)", req.PolicyReason)
	}
	fmt.Fprintf(&b, "\nRisk: %s", req.RiskLevel)
	if len(req.RiskReasons) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(req.RiskReasons, "; "))
	}
	fmt.Fprintf(&b, "\nReply \"approve %s\" or \"reject %s\" within %s.", approvalID, approvalID, timeout)
	return b.String()
}
