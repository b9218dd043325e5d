package main

import (
	"fmt"
	"log/slog"

	"github.com/quailyquaily/execguard/approval"
	"github.com/quailyquaily/execguard/guard"
	"github.com/quailyquaily/execguard/internal/clifmt"
	"github.com/quailyquaily/execguard/tools"
	"github.com/quailyquaily/execguard/tools/builtin"
	"github.com/spf13/cobra"
)

// buildRegistry assembles the tool registry exposed to an embedding agent.
// Today that is the single governed exec tool.
func buildRegistry(cfg guard.Config, broker *approval.Broker, auditor *guard.Auditor, log *slog.Logger) *tools.Registry {
	r := tools.NewRegistry()
	r.Register(builtin.NewExecCommandTool(cfg, broker, auditor, log))
	return r
}

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools this binary exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := guardConfigFromViper(logger)
			registry := buildRegistry(cfg, nil, nil, logger)
			for _, tool := range registry.All() {
				fmt.Println(clifmt.Headerf("%s", tool.Name()))
				fmt.Println("  " + tool.Description())
			}
			return nil
		},
	}
}
