package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carecircle/carecircle/internal/app"
	"github.com/carecircle/carecircle/internal/config"
	"github.com/carecircle/carecircle/internal/platform/auth"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "carecircle-server",
		Short:         "Care coordination record and chat server",
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(accessCmd())
	rootCmd.AddCommand(appointmentsCmd())
	rootCmd.AddCommand(vitalsCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the record and chat listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(out io.Writer, dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func runServer() error {
	// Logger
	logger := newLogger(os.Stdout, os.Getenv("ENV") == "development")

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger = logger.Level(cfg.Level())

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open record stores")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	logger.Info().
		Str("records_addr", cfg.RecordsAddr).
		Str("chat_addr", cfg.ChatAddr).
		Str("ops_addr", cfg.OpsAddr).
		Str("data_dir", cfg.DataDir).
		Msg("starting server")
	if err := a.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// openApp loads the configuration and opens the stores for an admin command.
// Logs go to the command's stderr so stdout stays parseable.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.IsDev()).Level(cfg.Level())
	return app.New(cfg, logger)
}

// addScopeFlags registers the --patient/--provider pair that selects the
// session a command acts as.
func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().String("patient", "", "Act as this patient")
	cmd.Flags().String("provider", "", "Act as this provider")
	cmd.MarkFlagsMutuallyExclusive("patient", "provider")
	cmd.MarkFlagsOneRequired("patient", "provider")
}

func scopeFromFlags(cmd *cobra.Command) (auth.Scope, error) {
	patient, _ := cmd.Flags().GetString("patient")
	provider, _ := cmd.Flags().GetString("provider")
	if cmd.Flags().Changed("patient") {
		return auth.PatientScope(patient)
	}
	if cmd.Flags().Changed("provider") {
		return auth.ProviderScope(provider)
	}
	return auth.Scope{}, fmt.Errorf("one of --patient or --provider is required")
}
