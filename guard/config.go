package guard

import "time"

type Config struct {
	Enabled bool

	AllowedCommands []string
	DeniedCommands  []string

	DefaultTimeout  time.Duration
	MaxOutputLength int

	Audit     AuditConfig
	Approvals ApprovalsConfig
}

type AuditConfig struct {
	// Dir holds one JSONL file per UTC day.
	Dir string
}

type ApprovalsConfig struct {
	Enabled bool
	Timeout time.Duration
}

const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxOutputLength = 64 * 1024
	DefaultApprovalTimeout = 5 * time.Minute
)

// Normalized returns a copy with zero-valued limits replaced by defaults.
func (c Config) Normalized() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	if c.MaxOutputLength <= 0 {
		c.MaxOutputLength = DefaultMaxOutputLength
	}
	if c.Approvals.Timeout <= 0 {
		c.Approvals.Timeout = DefaultApprovalTimeout
	}
	return c
}
