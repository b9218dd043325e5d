package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quailyquaily/execguard/guard"
)

func testConfig() guard.Config {
	return guard.Config{
		Enabled:         true,
		AllowedCommands: []string{"echo", "sleep", "true", "false"},
		DefaultTimeout:  10 * time.Second,
		MaxOutputLength: 64 * 1024,
	}
}

func TestRunEcho(t *testing.T) {
	res, err := Run(context.Background(), testConfig(), Request{
		Command: `echo "hello world"`,
		CallID:  "call_1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("Success = false: %+v", res)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Fatalf("ExitCode = %v, want 0", res.ExitCode)
	}
	if got := strings.TrimSpace(res.Stdout); got != "hello world" {
		t.Fatalf("Stdout = %q, want %q", got, "hello world")
	}
	if res.StdoutTruncated || res.StderrTruncated {
		t.Fatal("unexpected truncation")
	}
	if res.PID == 0 {
		t.Fatal("expected a PID")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	res, err := Run(context.Background(), testConfig(), Request{Command: "false"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Fatal("Success = true for exit 1")
	}
	if res.ExitCode == nil || *res.ExitCode != 1 {
		t.Fatalf("ExitCode = %v, want 1", res.ExitCode)
	}
}

func TestRunTimeout(t *testing.T) {
	res, err := Run(context.Background(), testConfig(), Request{
		Command: "sleep 5",
		Timeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("TimedOut = false")
	}
	if res.Success {
		t.Fatal("Success must be false once the timer fires")
	}
	if res.Duration >= 5*time.Second {
		t.Fatalf("Duration = %v, kill did not take", res.Duration)
	}
}

func TestRunTruncation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOutputLength = 16

	long := strings.Repeat("a", 200)
	res, err := Run(context.Background(), cfg, Request{Command: "echo " + long})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.StdoutTruncated {
		t.Fatal("StdoutTruncated = false")
	}
	// echo appends a newline: true total is 201 bytes.
	if res.StdoutTotal != 201 {
		t.Fatalf("StdoutTotal = %d, want 201", res.StdoutTotal)
	}
	if !strings.Contains(res.Stdout, "truncated, total length 201, showing first 16") {
		t.Fatalf("rendered stdout = %q", res.Stdout)
	}
	if res.StderrTruncated {
		t.Fatal("stderr must truncate independently")
	}
}

func TestRunPolicyEnforce(t *testing.T) {
	_, err := Run(context.Background(), testConfig(), Request{Command: "whoami"})
	var pe *PolicyError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PolicyError", err)
	}
	if pe.Decision.Status != guard.StatusUnknown {
		t.Fatalf("Status = %s, want unknown", pe.Decision.Status)
	}
}

func TestRunDenyOnlyMode(t *testing.T) {
	cfg := testConfig()
	cfg.DeniedCommands = []string{"rm"}

	// Unknown passes under deny-only (a human already approved it).
	res, err := Run(context.Background(), cfg, Request{
		Command: "true",
		Mode:    guard.ModeDenyOnly,
	})
	if err != nil {
		t.Fatalf("Run unknown under deny-only: %v", err)
	}
	if !res.Success {
		t.Fatalf("Success = false: %+v", res)
	}

	// Denied still rejects.
	_, err = Run(context.Background(), cfg, Request{
		Command: "rm -rf x",
		Mode:    guard.ModeDenyOnly,
	})
	var pe *PolicyError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PolicyError", err)
	}
	if pe.Decision.Status != guard.StatusDenied {
		t.Fatalf("Status = %s, want denied", pe.Decision.Status)
	}
}

func TestRunDisabledSpawnsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	_, err := Run(context.Background(), cfg, Request{Command: "echo hi"})
	var pe *PolicyError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PolicyError", err)
	}
	if pe.Decision.Status != guard.StatusDisabled {
		t.Fatalf("Status = %s, want disabled", pe.Decision.Status)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	res, err := Run(context.Background(), testConfig(), Request{
		Command: "definitely-not-a-real-binary-xyz",
		Mode:    guard.ModeDenyOnly,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Fatal("Success = true for spawn failure")
	}
	if res.ExitCode != nil {
		t.Fatalf("ExitCode = %v, want nil", *res.ExitCode)
	}
	if res.Error == "" {
		t.Fatal("expected Error to be set")
	}
}

func TestCapBufferAccounting(t *testing.T) {
	b := newCapBuffer(10)
	for i := 0; i < 5; i++ {
		if _, err := b.Write([]byte("abcdef")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if b.Total() != 30 {
		t.Fatalf("Total = %d, want 30", b.Total())
	}
	text, truncated := b.Render()
	if !truncated {
		t.Fatal("truncated = false")
	}
	if !strings.HasPrefix(text, "abcdefabcd") {
		t.Fatalf("head = %q", text)
	}
	if !strings.Contains(text, "total length 30, showing first 10") {
		t.Fatalf("render = %q", text)
	}
}
