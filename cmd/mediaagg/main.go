// Package main contains the mediaagg CLI commands.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Eigen-Consulting/iLEAPP/internal/cli"
	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/config"
)

var (
	cfgFile string
	version = "dev"
	cfg     *config.Config
	logFile io.Closer
	rootCmd = &cobra.Command{
		Use:   "mediaagg",
		Short: "🎧 Forensic audio aggregation for iOS extractions",
		Long: `mediaagg finds every user-relevant audio file in an iOS filesystem extraction,
classifies it by where it lives, enriches it from app databases, drops
duplicate content and reports the result as one table.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/mediaagg/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this size-rotated file")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.file.path", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(aggregateCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	err := rootCmd.Execute()
	if closeErr := closeLog(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		var userErr *common.UserError
		if errors.As(err, &userErr) {
			fmt.Fprintln(os.Stderr, cli.FormatError(userErr.UserMessage))
		} else {
			fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		}
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(config.ExpandPath(cfgFile))
	} else {
		if dir := config.DefaultDir(); dir != "" {
			viper.AddConfigPath(dir)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// A .env file in the working directory may carry MEDIAAGG_* overrides
	// for a case folder. MEDIAAGG_ENGINE_WORKERS overrides engine.workers.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read .env: %w", err)
	}
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = loaded

	if err := setupLogging(cfg.Logging); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		slog.Debug("Loaded config", "path", used)
	}
	return nil
}

func setupLogging(lc config.LoggingConfig) error {
	level, err := common.ParseLevel(lc.Level)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stderr
	if f := lc.File.Writer(); f != nil {
		logFile = f
		w = io.MultiWriter(os.Stderr, f)
	}
	return common.SetupLoggerTo(w, level, strings.ToLower(lc.Format))
}

func closeLog() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mediaagg %s\n", version)
		},
	}
}
