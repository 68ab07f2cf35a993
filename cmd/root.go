// Package cmd defines the urlscraper CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/urlscraper/internal/app"
	"github.com/JakeFAU/urlscraper/internal/config"
	"github.com/JakeFAU/urlscraper/internal/logging"
	"github.com/JakeFAU/urlscraper/internal/worker"
)

// Service is what commands need from the built application.
type Service interface {
	Runner() *worker.Runner
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
}

type serviceKey struct{}

type rootOptions struct {
	cfgFile string
	envFile string
}

// newService builds the application. Tests replace it to inject options.
var newService = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Service, error) {
	return app.Build(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "urlscraper",
		Short: "Fetch a batch of URLs into a url/date/status/html table.",
		Long: `urlscraper fetches up to ten URLs concurrently and records, for each one,
the HTTP status and the decoded page text alongside a single UTC timestamp.
Runs can be started from the command line or submitted to the HTTP API.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			svc, err := newService(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), serviceKey{}, svc))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if svc, ok := cmd.Context().Value(serviceKey{}).(Service); ok && svc != nil {
				if err := svc.Close(cmd.Context()); err != nil {
					zap.L().Warn("close application services failed", zap.Error(err))
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "",
		"config file (default searches ./config.yaml, /etc/urlscraper, $HOME/.urlscraper)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before config when present")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// loadEnvFile loads path into the environment. A missing file is ignored;
// variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func resolveService(ctx context.Context) (Service, error) {
	svc, ok := ctx.Value(serviceKey{}).(Service)
	if !ok || svc == nil {
		return nil, errors.New("application services not initialized")
	}
	return svc, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
