// Package cli is the benefitsctl command tree. Every command acts as the
// caller named by --token (or BENEFITS_TOKEN) and prints its result as JSON.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"benefits/internal/app"
	"benefits/internal/platform/caller"
	"benefits/internal/platform/config"
	"benefits/internal/platform/logger"
	dErrors "benefits/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

// Opener builds the application for one command invocation.
type Opener func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error)

// session is the state shared by every command of one invocation.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	open   Opener
	out    io.Writer
	token  string
	app    *app.App
}

// Execute runs benefitsctl against the environment configuration.
func Execute(version string) error {
	cfg := config.FromEnv()
	log := logger.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	open := func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error) {
		return app.New(ctx, cfg, logger, version)
	}

	root := NewRootCommand(cfg, log, open, os.Stdout)
	root.Version = version
	if err := root.Execute(); err != nil {
		printError(os.Stderr, err)
		return err
	}
	return nil
}

// NewRootCommand assembles the command tree.
func NewRootCommand(cfg config.Config, log *slog.Logger, open Opener, out io.Writer) *cobra.Command {
	s := &session{cfg: cfg, logger: log, open: open, out: out}

	root := &cobra.Command{
		Use:           "benefitsctl",
		Short:         "Operate the provincial benefits identity and fraud core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if s.app == nil {
				return nil
			}
			err := s.app.Close()
			s.app = nil
			return err
		},
	}
	root.PersistentFlags().StringVar(&s.token, "token", os.Getenv("BENEFITS_TOKEN"), "caller token (defaults to $BENEFITS_TOKEN)")

	root.AddCommand(
		s.tokenCmd(),
		s.tenantCmd(),
		s.beneficiaryCmd(),
		s.whitelistCmd(),
		s.riskCmd(),
		s.claimCmd(),
		s.settingsCmd(),
		s.fraudCmd(),
		s.auditCmd(),
	)
	return root
}

// context opens the application and attaches the caller from --token. An
// empty token leaves the context anonymous; operations that need a caller
// reject it.
func (s *session) context(cmd *cobra.Command) (context.Context, *app.App, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if s.app == nil {
		a, err := s.open(ctx, commandConfig(ctx, s.cfg, s.logger), s.logger)
		if err != nil {
			return nil, nil, err
		}
		s.app = a
	}
	if s.token == "" {
		return ctx, s.app, nil
	}
	ctx, err := caller.NewVerifier(s.cfg.Auth.JWTSigningKey, s.cfg.Auth.Issuer).WithToken(ctx, s.token)
	if err != nil {
		return nil, nil, err
	}
	return ctx, s.app, nil
}

// commandConfig adapts cfg to a short-lived process. An in-memory fraud-check
// queue would be dropped on exit, so without Kafka brokers claims are scored
// synchronously at intake.
func commandConfig(ctx context.Context, cfg config.Config, log *slog.Logger) config.Config {
	if cfg.Worker.AsyncFraudCheck && len(cfg.Kafka.Brokers) == 0 {
		log.WarnContext(ctx, "KAFKA_BROKERS not set; scoring claims synchronously")
		cfg.Worker.AsyncFraudCheck = false
	}
	return cfg
}

func (s *session) print(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(w io.Writer, err error) {
	var de *dErrors.Error
	if errors.As(err, &de) {
		fmt.Fprintf(w, "Error [%s]: %v\n", de.Code, err)
		return
	}
	fmt.Fprintln(w, "Error:", err)
}

func parseDate(flag, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeBadRequest, "%s must be a date like 1985-03-12", flag)
	}
	return t, nil
}
