package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/quailyquaily/execguard/approval"
	"github.com/quailyquaily/execguard/db"
	"github.com/quailyquaily/execguard/guard"
	"github.com/quailyquaily/execguard/internal/pathutil"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// policyFile is the on-disk allow/deny list format. Entries merge with the
// lists configured inline; the deny list always wins at decision time.
type policyFile struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

func guardConfigFromViper(log *slog.Logger) guard.Config {
	if log == nil {
		log = slog.Default()
	}
	viper.SetDefault("guard.enabled", true)
	viper.SetDefault("guard.audit.dir", "~/.execguard/audit")

	cfg := guard.Config{
		Enabled:         viper.GetBool("guard.enabled"),
		AllowedCommands: viper.GetStringSlice("guard.allowed_commands"),
		DeniedCommands:  viper.GetStringSlice("guard.denied_commands"),
		DefaultTimeout:  viper.GetDuration("guard.default_timeout"),
		MaxOutputLength: viper.GetInt("guard.max_output_length"),
		Audit: guard.AuditConfig{
			Dir: pathutil.ExpandHomePath(strings.TrimSpace(viper.GetString("guard.audit.dir"))),
		},
		Approvals: guard.ApprovalsConfig{
			Enabled: viper.GetBool("guard.approvals.enabled"),
			Timeout: viper.GetDuration("guard.approvals.timeout"),
		},
	}

	if path := strings.TrimSpace(viper.GetString("guard.policy_file")); path != "" {
		pf, err := loadPolicyFile(pathutil.ExpandHomePath(path))
		if err != nil {
			log.Warn("guard_policy_file_error", "path", path, "error", err.Error())
		} else {
			cfg.AllowedCommands = append(cfg.AllowedCommands, pf.Allow...)
			cfg.DeniedCommands = append(cfg.DeniedCommands, pf.Deny...)
		}
	}

	return cfg.Normalized()
}

func loadPolicyFile(path string) (policyFile, error) {
	var pf policyFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return pf, err
	}
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return pf, fmt.Errorf("parse policy file: %w", err)
	}
	return pf, nil
}

func auditorFromViper(cfg guard.Config, log *slog.Logger) *guard.Auditor {
	if strings.TrimSpace(cfg.Audit.Dir) == "" {
		return nil
	}
	sink, err := guard.NewDailyAuditSink(cfg.Audit.Dir)
	if err != nil {
		log.Warn("guard_audit_sink_error", "error", err.Error())
		return nil
	}
	return guard.NewAuditor(sink, log)
}

func approvalStoreFromViper(log *slog.Logger) approval.Store {
	dsn, err := db.ResolveSQLiteDSN(viper.GetString("db.dsn"))
	if err != nil {
		log.Warn("approvals_dsn_error", "error", err.Error())
		return nil
	}
	st, err := approval.NewSQLiteStore(dsn)
	if err != nil {
		log.Warn("approvals_store_error", "error", err.Error())
		return nil
	}
	return st
}
