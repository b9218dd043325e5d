package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/quailyquaily/execguard/internal/pathutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "execguard",
	Short: "Policy-governed command execution",
	Long:  "execguard runs local commands through an allow/deny policy, risk assessment, human approval, and an audit trail.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		logger = newLogger()
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.execguard/config.yaml)")
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newApprovalsCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newToolsCommand())
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(pathutil.ExpandHomePath(cfgFile))
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(pathutil.ExpandHomePath("~/.execguard"))
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("EXECGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(viper.GetString("log.level"))) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
