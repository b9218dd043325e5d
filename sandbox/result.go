package sandbox

import (
	"bytes"
	"fmt"
	"time"

	"github.com/quailyquaily/execguard/guard"
)

// Result is the sole record of what actually happened during one execution
// attempt. Immutable once produced.
type Result struct {
	CallID  string
	Argv    []string
	Cwd     string
	Timeout time.Duration
	Mode    guard.PolicyMode
	Policy  guard.PolicyDecision

	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration

	PID  int
	PPID int

	// ExitCode is nil when the process never exited normally (spawn failure
	// or signal termination).
	ExitCode *int
	Signal   string
	TimedOut bool
	Error    string

	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	StdoutTotal     int
	StderrTotal     int

	Success bool
}

// AuditData flattens the result into an audit payload.
func (r *Result) AuditData() map[string]any {
	data := map[string]any{
		"argv":             r.Argv,
		"cwd":              r.Cwd,
		"timeout_ms":       r.Timeout.Milliseconds(),
		"policy_mode":      string(r.Mode),
		"policy_status":    string(r.Policy.Status),
		"risk_level":       string(r.Policy.Risk.Level),
		"risk_reasons":     r.Policy.Risk.Reasons,
		"started_at":       r.StartedAt,
		"finished_at":      r.FinishedAt,
		"duration_ms":      r.Duration.Milliseconds(),
		"pid":              r.PID,
		"ppid":             r.PPID,
		"timed_out":        r.TimedOut,
		"success":          r.Success,
		"stdout_truncated": r.StdoutTruncated,
		"stderr_truncated": r.StderrTruncated,
		"stdout_total":     r.StdoutTotal,
		"stderr_total":     r.StderrTotal,
	}
	if r.ExitCode != nil {
		data["exit_code"] = *r.ExitCode
	}
	if r.Signal != "" {
		data["signal"] = r.Signal
	}
	if r.Error != "" {
		data["error"] = r.Error
	}
	return data
}

// capBuffer captures up to max bytes but keeps counting the true total, so
// truncation is reported accurately.
type capBuffer struct {
	max   int
	buf   bytes.Buffer
	total int
}

func newCapBuffer(max int) *capBuffer {
	if max <= 0 {
		max = guard.DefaultMaxOutputLength
	}
	return &capBuffer{max: max}
}

func (b *capBuffer) Write(p []byte) (int, error) {
	b.total += len(p)
	if room := b.max - b.buf.Len(); room > 0 {
		if room > len(p) {
			room = len(p)
		}
		b.buf.Write(p[:room])
	}
	return len(p), nil
}

func (b *capBuffer) Total() int { return b.total }

func (b *capBuffer) Render() (string, bool) {
	if b.total <= b.max {
		return b.buf.String(), false
	}
	head := b.buf.String()
	return fmt.Sprintf("%s...[truncated, total length %d, showing first %d]", head, b.total, len(head)), true
}
