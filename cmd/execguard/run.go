package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/quailyquaily/execguard/approval"
	"github.com/quailyquaily/execguard/internal/clifmt"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	var (
		cwd     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run \"<command>\"",
		Short: "Run one command through the policy pipeline",
		Long: `Runs a single command through tokenization, risk assessment, and the
allow/deny policy. Commands the policy cannot vouch for prompt for approval
on this terminal; reply "approve" or "reject", optionally followed by a
comment.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), args[0], cwd, timeout)
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the command")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "wall-clock timeout (default from config)")
	return cmd
}

func runOnce(ctx context.Context, command, cwd string, timeout time.Duration) error {
	cfg := guardConfigFromViper(logger)
	auditor := auditorFromViper(cfg, logger)

	var broker *approval.Broker
	if cfg.Approvals.Enabled {
		opts := []approval.BrokerOption{
			approval.WithTimeout(cfg.Approvals.Timeout),
			approval.WithLogger(logger),
		}
		if store := approvalStoreFromViper(logger); store != nil {
			opts = append(opts, approval.WithStore(store))
		}
		broker = approval.NewBroker(&cliChannel{out: os.Stdout}, opts...)
		defer broker.Close()
	}

	requester := approval.Requester{Conversation: "cli", Sender: currentUsername()}
	ctx = approval.WithRequester(ctx, requester)

	if broker != nil {
		stop := startReplyLoop(ctx, broker, requester)
		defer stop()
	}

	registry := buildRegistry(cfg, broker, auditor, logger)
	tool, ok := registry.Get("exec_command")
	if !ok {
		return fmt.Errorf("exec_command tool is not registered")
	}

	params := map[string]any{"command": command}
	if cwd != "" {
		params["cwd"] = cwd
	}
	if timeout > 0 {
		params["timeout_ms"] = float64(timeout.Milliseconds())
	}

	report, err := tool.Execute(ctx, params)
	if err != nil {
		return err
	}
	fmt.Println(report)
	return nil
}

// startReplyLoop feeds stdin lines to the broker while an approval is
// outstanding. Unrelated input falls through silently.
func startReplyLoop(ctx context.Context, broker *approval.Broker, requester approval.Requester) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			handled, response := broker.HandleReply(ctx, requester.Key(), line, approval.Metadata{
				Channel:      "cli",
				ApproverID:   requester.Sender,
				ApproverName: requester.Sender,
				Source:       approval.SourceCLI,
				DecidedAt:    time.Now().UTC(),
			})
			if handled && response != "" {
				fmt.Println(clifmt.Dim(response))
			}
		}
	}()
	return cancel
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && strings.TrimSpace(u.Username) != "" {
		return u.Username
	}
	return "local"
}
