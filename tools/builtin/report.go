package builtin

import (
	"fmt"
	"strings"
	"time"

	"github.com/quailyquaily/execguard/approval"
	"github.com/quailyquaily/execguard/guard"
	"github.com/quailyquaily/execguard/internal/strutil"
	"github.com/quailyquaily/execguard/sandbox"
)

const maxReportBodyBytes = 8192

// renderResult formats a completed execution for the caller. The summary
// block mirrors what the audit log records so a human can correlate them
// by call id.
func renderResult(res *sandbox.Result, outcome *approval.Outcome) string {
	var b strings.Builder
	if res.Success {
		b.WriteString("✅ command succeeded\n")
	} else {
		b.WriteString("❌ command failed\n")
	}

	writeSummary(&b, res)
	if outcome != nil {
		writeApproval(&b, *outcome)
	}

	if res.Stdout != "" {
		b.WriteString("\nstdout:\n")
		b.WriteString(strutil.TruncateUTF8(res.Stdout, maxReportBodyBytes))
		if !strings.HasSuffix(res.Stdout, "\n") {
			b.WriteString("\n")
		}
	}
	if res.Stderr != "" {
		b.WriteString("\nstderr:\n")
		b.WriteString(strutil.TruncateUTF8(res.Stderr, maxReportBodyBytes))
		if !strings.HasSuffix(res.Stderr, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeSummary(b *strings.Builder, res *sandbox.Result) {
	fmt.Fprintf(b, "call: %s\n", res.CallID)
	fmt.Fprintf(b, "command: %s\n", strings.Join(res.Argv, " "))
	if res.Cwd != "" {
		fmt.Fprintf(b, "cwd: %s\n", res.Cwd)
	}
	fmt.Fprintf(b, "policy: %s (%s mode)\n", res.Policy.Status, res.Mode)
	if res.Policy.Risk.Level != "" {
		fmt.Fprintf(b, "risk: %s", res.Policy.Risk.Level)
		if len(res.Policy.Risk.Reasons) > 0 {
			fmt.Fprintf(b, " (%s)", strings.Join(res.Policy.Risk.Reasons, "; "))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "duration: %s\n", res.Duration.Round(time.Millisecond))
	switch {
	case res.TimedOut:
		fmt.Fprintf(b, "status: timed out after %s\n", res.Timeout)
	case res.ExitCode != nil:
		fmt.Fprintf(b, "exit code: %d\n", *res.ExitCode)
	case res.Signal != "":
		fmt.Fprintf(b, "terminated by signal: %s\n", res.Signal)
	case res.Error != "":
		fmt.Fprintf(b, "error: %s\n", res.Error)
	}
	if res.StdoutTruncated {
		fmt.Fprintf(b, "stdout truncated: total %d bytes\n", res.StdoutTotal)
	}
	if res.StderrTruncated {
		fmt.Fprintf(b, "stderr truncated: total %d bytes\n", res.StderrTotal)
	}
}

func writeApproval(b *strings.Builder, out approval.Outcome) {
	fmt.Fprintf(b, "approved by: %s", actorLabel(out))
	if out.Metadata.Channel != "" {
		fmt.Fprintf(b, " via %s", out.Metadata.Channel)
	}
	if out.Decision == approval.DecisionEdit {
		b.WriteString(" (edited)")
	}
	b.WriteString("\n")
	if out.Comment != "" {
		fmt.Fprintf(b, "approver comment: %s\n", out.Comment)
	}
}

func renderRejection(callID, command, cwd string, decision guard.PolicyDecision, reason string) string {
	var b strings.Builder
	b.WriteString("❌ command was not executed\n")
	fmt.Fprintf(&b, "call: %s\n", callID)
	fmt.Fprintf(&b, "command: %s\n", command)
	if cwd != "" {
		fmt.Fprintf(&b, "cwd: %s\n", cwd)
	}
	fmt.Fprintf(&b, "policy: %s\n", decision.Status)
	if decision.Risk.Level != "" {
		fmt.Fprintf(&b, "risk: %s", decision.Risk.Level)
		if len(decision.Risk.Reasons) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(decision.Risk.Reasons, "; "))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "reason: %s\n", reason)
	return b.String()
}
