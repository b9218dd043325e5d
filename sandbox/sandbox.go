// Package sandbox spawns approved commands directly, never through a shell.
// It only constrains argv content, wall-clock time, and captured output; it
// is not a namespace or filesystem jail.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/quailyquaily/execguard/guard"
	"github.com/quailyquaily/execguard/internal/pathutil"
)

// Request describes one execution attempt.
type Request struct {
	Command string
	Cwd     string
	Timeout time.Duration
	Mode    guard.PolicyMode
	CallID  string
}

// PolicyError is returned when the execution-time policy gate rejects the
// command before any process is spawned.
type PolicyError struct {
	Decision guard.PolicyDecision
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy %s: %s", e.Decision.Status, e.Decision.Reason)
}

// Run re-checks policy under the requested mode, spawns the first token as
// the executable with the rest as argv, and waits for exit or timeout.
// A policy rejection returns (nil, *PolicyError); a spawn failure returns a
// result with a nil exit code and Error set.
func Run(ctx context.Context, cfg guard.Config, req Request) (*Result, error) {
	cfg = cfg.Normalized()

	decision := guard.Decide(req.Command, cfg)
	switch req.Mode {
	case guard.ModeDenyOnly:
		if decision.Status == guard.StatusDenied || decision.Status == guard.StatusDisabled {
			return nil, &PolicyError{Decision: decision}
		}
	default:
		if decision.Status != guard.StatusAllowed {
			return nil, &PolicyError{Decision: decision}
		}
	}

	cmdVal, err := guard.Parse(req.Command)
	if err != nil {
		// Unreachable after a passing policy check; kept as a hard stop.
		return nil, &PolicyError{Decision: guard.PolicyDecision{
			Status: guard.StatusDenied,
			Reason: fmt.Sprintf("unparseable command: %v", err),
			Risk:   decision.Risk,
		}}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}

	res := &Result{
		CallID:  req.CallID,
		Argv:    cmdVal.Tokens,
		Cwd:     req.Cwd,
		Timeout: timeout,
		Mode:    req.Mode,
		Policy:  decision,
	}

	proc := exec.Command(cmdVal.Tokens[0], cmdVal.Tokens[1:]...)
	if cwd := pathutil.ExpandHomePath(req.Cwd); cwd != "" && cwd != "." {
		proc.Dir = cwd
		res.Cwd = cwd
	}

	stdout := newCapBuffer(cfg.MaxOutputLength)
	stderr := newCapBuffer(cfg.MaxOutputLength)
	proc.Stdout = stdout
	proc.Stderr = stderr

	res.StartedAt = time.Now().UTC()
	if err := proc.Start(); err != nil {
		res.FinishedAt = time.Now().UTC()
		res.Error = err.Error()
		return res, nil
	}
	res.PID = proc.Process.Pid
	res.PPID = os.Getpid()

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		// Once the timer fires the race is settled in favor of timeout,
		// even if the process exits cleanly while we reap it.
		res.TimedOut = true
		_ = proc.Process.Kill()
		waitErr = <-done
	case <-ctx.Done():
		_ = proc.Process.Kill()
		<-done
		waitErr = ctx.Err()
	}

	res.FinishedAt = time.Now().UTC()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)
	res.Stdout, res.StdoutTruncated = stdout.Render()
	res.Stderr, res.StderrTruncated = stderr.Render()
	res.StdoutTotal = stdout.Total()
	res.StderrTotal = stderr.Total()

	applyWait(res, waitErr)
	res.Success = res.ExitCode != nil && *res.ExitCode == 0 && !res.TimedOut
	return res, nil
}

func applyWait(res *Result, waitErr error) {
	if waitErr == nil {
		zero := 0
		res.ExitCode = &zero
		return
	}
	ee, ok := waitErr.(*exec.ExitError)
	if !ok {
		res.Error = waitErr.Error()
		return
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		res.Signal = ws.Signal().String()
		return
	}
	code := ee.ExitCode()
	res.ExitCode = &code
}
