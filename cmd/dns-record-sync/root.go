package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/auto-dns/dns-record-sync/internal/app"
	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/logger"
)

type contextKey string

const configKey = contextKey("config")

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "dns-record-sync",
	Short: "Keep DNS records in sync between a local store and a DNS provider",
	Long:  "Serves an owner-scoped API for DNS records, writing every change to the local record store and the configured DNS provider.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		if err := config.InitConfig(v, configFile); err != nil {
			return err
		}
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		ctx := context.WithValue(cmd.Context(), configKey, cfg)
		cmd.SetContext(ctx)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, application *app.App, _ zerolog.Logger) error {
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("app run error: %w", err)
			}
			return nil
		})
	},
}

// withApp builds the application from the loaded config and runs fn with a
// context that is cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, application *app.App, log zerolog.Logger) error) error {
	cfg := cmd.Context().Value(configKey).(*config.Config)

	logInstance := logger.SetupLogger(&cfg.Logging)

	application, err := app.New(cfg, logInstance)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logInstance.Error().Err(err).Msg("Error closing application")
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logInstance.Info().Msgf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return fn(ctx, application, logInstance)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "INFO", "set log level (e.g. INFO, DEBUG, WARN)")
	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(importCmd, applyCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Execution error: %v\n", err)
		os.Exit(1)
	}
}
