package main

import (
	"fmt"
	"strings"

	"github.com/quailyquaily/execguard/guard"
	"github.com/quailyquaily/execguard/internal/clifmt"
	"github.com/spf13/cobra"
)

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check \"<command>\"",
		Short: "Evaluate a command against the policy without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := guardConfigFromViper(logger)
			decision := guard.Decide(args[0], cfg)

			fmt.Println(clifmt.Headerf("policy: %s", decision.Status))
			if decision.Reason != "" {
				fmt.Printf("%s %s\n", clifmt.Key("reason:"), decision.Reason)
			}
			fmt.Printf("%s %s\n", clifmt.Key("risk:"), decision.Risk.Level)
			if len(decision.Risk.Reasons) > 0 {
				fmt.Printf("%s %s\n", clifmt.Key("risk reasons:"), strings.Join(decision.Risk.Reasons, "; "))
			}
			switch {
			case decision.Risk.Blocked:
				fmt.Println(clifmt.Warn("verdict: blocked, would not run"))
			case decision.Status == guard.StatusDenied, decision.Status == guard.StatusDisabled:
				fmt.Println(clifmt.Warn("verdict: denied, would not run"))
			case decision.RequiresApproval:
				fmt.Println(clifmt.Dim("verdict: would require human approval"))
			default:
				fmt.Println(clifmt.Success("verdict: would run"))
			}
			return nil
		},
	}
}
