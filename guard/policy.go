package guard

import (
	"fmt"
	"strings"
)

// Decide combines the risk assessment with the allow/deny lists and the
// enabled switch. Unknown commands are never silently run nor silently
// refused; they surface to a human via RequiresApproval.
func Decide(raw string, cfg Config) PolicyDecision {
	risk := Assess(raw)

	if !cfg.Enabled {
		return PolicyDecision{
			Status: StatusDisabled,
			Reason: "command execution is disabled",
			Risk:   risk,
		}
	}

	if risk.Blocked {
		return PolicyDecision{
			Status: StatusDenied,
			Reason: "blocked by risk assessment: " + strings.Join(risk.Reasons, "; "),
			Risk:   risk,
		}
	}

	cmd, err := Parse(raw)
	if err != nil {
		return PolicyDecision{
			Status: StatusDenied,
			Reason: fmt.Sprintf("unparseable command: %v", err),
			Risk:   risk,
		}
	}

	base := cmd.Base()
	if base == "" || base == "." || base == "/" {
		return PolicyDecision{
			Status: StatusDenied,
			Reason: "empty base command",
			Risk:   risk,
		}
	}

	// Deny-list membership wins over the allow-list unconditionally.
	if containsCommand(cfg.DeniedCommands, base) {
		return PolicyDecision{
			Status: StatusDenied,
			Reason: fmt.Sprintf("command %q is deny-listed", base),
			Risk:   risk,
		}
	}

	if containsCommand(cfg.AllowedCommands, base) {
		// An allow-listed command can still demand a human look when it
		// carries a substitution-like token.
		return PolicyDecision{
			Status:           StatusAllowed,
			Risk:             risk,
			RequiresApproval: risk.RequiresApproval,
		}
	}

	return PolicyDecision{
		Status:           StatusUnknown,
		Reason:           fmt.Sprintf("command %q is not allow-listed", base),
		Risk:             risk,
		RequiresApproval: true,
	}
}

func containsCommand(list []string, base string) bool {
	for _, entry := range list {
		if strings.TrimSpace(entry) == base {
			return true
		}
	}
	return false
}
