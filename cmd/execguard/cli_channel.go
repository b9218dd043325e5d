package main

import (
	"context"
	"fmt"
	"io"

	"github.com/quailyquaily/execguard/approval"
	"github.com/quailyquaily/execguard/internal/clifmt"
)

// cliChannel delivers approval prompts on the terminal. It never supports
// cards, so every prompt arrives through the text downgrade path and replies
// come back as free text on stdin.
type cliChannel struct {
	out io.Writer
}

func (c *cliChannel) Name() string { return "cli" }

// SendCard reports no card id, which tells the broker to fall back to the
// plain-text prompt.
func (c *cliChannel) SendCard(context.Context, approval.Request, string) (string, error) {
	return "", nil
}

func (c *cliChannel) SendText(_ context.Context, _ string, text string) error {
	fmt.Fprintln(c.out, clifmt.Warn(text))
	return nil
}
