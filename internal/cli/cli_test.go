package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"benefits/internal/app"
	claimmodels "benefits/internal/claim/models"
	"benefits/internal/platform/config"
	"benefits/internal/platform/logger"
	"benefits/internal/settings"
	tenantmodels "benefits/internal/tenant/models"
	dErrors "benefits/pkg/domain-errors"
)

// CLISuite drives benefitsctl end to end against an in-memory application.
type CLISuite struct {
	suite.Suite
	cfg   config.Config
	app   *app.App
	admin string
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func (s *CLISuite) SetupTest() {
	s.cfg = config.Config{
		Redis:  config.RedisConfig{SettingsTTL: time.Minute},
		Auth:   config.AuthConfig{JWTSigningKey: "test-key", Issuer: "test-idp"},
		Worker: config.WorkerConfig{MaxAttempts: 3, StuckAfter: time.Minute},
	}
	a, err := app.New(context.Background(), s.cfg, logger.Discard(), "test")
	s.Require().NoError(err)
	s.app = a
	s.admin = s.token("--province")
}

func (s *CLISuite) run(args ...string) (string, error) {
	var out bytes.Buffer
	open := func(context.Context, config.Config, *slog.Logger) (*app.App, error) { return s.app, nil }
	root := NewRootCommand(s.cfg, logger.Discard(), open, &out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (s *CLISuite) mustRun(v any, args ...string) {
	out, err := s.run(args...)
	s.Require().NoError(err, out)
	if v != nil {
		s.Require().NoError(json.Unmarshal([]byte(out), v), out)
	}
}

func (s *CLISuite) token(scope ...string) string {
	var res map[string]string
	s.mustRun(&res, append([]string{"token", "issue", "--user", uuid.NewString()}, scope...)...)
	return res["token"]
}

// TestClaimLifecycle verifies intake through disbursement updates the ledger.
func (s *CLISuite) TestClaimLifecycle() {
	var tagum tenantmodels.Tenant
	s.mustRun(&tagum, "tenant", "create", "TGM", "Tagum", "--budget", "100000", "--token", s.admin)
	officer := s.token("--tenant", tagum.ID.String())

	var c claimmodels.Claim
	s.mustRun(&c, "claim", "submit", "--token", officer,
		"--first", "Juan", "--last", "Dela Cruz", "--birthdate", "1985-03-12",
		"--category", "Medical", "--amount", "5,000.50")
	s.Equal(claimmodels.StatusPending, c.Status)
	s.EqualValues(500_050, c.Amount)

	s.mustRun(&c, "claim", "approve", c.ID.String(), "--token", officer)
	s.Equal(claimmodels.StatusApproved, c.Status)
	s.mustRun(&c, "claim", "disburse", c.ID.String(), "--token", officer)
	s.Equal(claimmodels.StatusDisbursed, c.Status)

	var reports []tenantmodels.BudgetReport
	s.mustRun(&reports, "tenant", "budgets", "--token", s.admin)
	s.Require().Len(reports, 1)
	s.EqualValues(500_050, reports[0].Used)
}

// TestTenantScopeIsEnforced verifies another office cannot act on a claim.
func (s *CLISuite) TestTenantScopeIsEnforced() {
	var tagum, panabo tenantmodels.Tenant
	s.mustRun(&tagum, "tenant", "create", "TGM", "Tagum", "--budget", "1000", "--token", s.admin)
	s.mustRun(&panabo, "tenant", "create", "PNB", "Panabo", "--budget", "1000", "--token", s.admin)

	var c claimmodels.Claim
	s.mustRun(&c, "claim", "submit", "--token", s.token("--tenant", tagum.ID.String()),
		"--first", "Ana", "--last", "Reyes", "--birthdate", "1970-04-02", "--category", "Burial", "--amount", "100")

	_, err := s.run("claim", "approve", c.ID.String(), "--token", s.token("--tenant", panabo.ID.String()))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden) || dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CLISuite) TestInputErrors() {
	s.Run("bad birthdate", func() {
		_, err := s.run("risk", "assess", "--first", "Juan", "--last", "Cruz", "--birthdate", "12/03/1985")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("invalid token", func() {
		_, err := s.run("tenant", "budgets", "--token", "not-a-jwt")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("token needs a scope", func() {
		_, err := s.run("token", "issue", "--user", uuid.NewString())
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *CLISuite) TestSettingsRoundTrip() {
	var th settings.Thresholds
	s.mustRun(&th, "settings", "set", settings.KeyHighFrequencyThreshold, "4", "--token", s.admin)
	s.Equal(4, th.HighFrequencyThreshold)

	_, err := s.run("settings", "set", settings.KeyHighFrequencyThreshold, "0", "--token", s.admin)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	var entries []map[string]any
	s.mustRun(&entries, "settings", "list", "--token", s.admin)
	s.NotEmpty(entries)
}

func (s *CLISuite) TestFraudCommands() {
	var letters []any
	s.mustRun(&letters, "fraud", "dead-letters")
	s.Empty(letters)

	var stuck map[string]any
	s.mustRun(&stuck, "fraud", "stuck")
	s.EqualValues(0, stuck["stuck"])
}

// TestAsyncWithoutBrokersScoresSynchronously verifies the CLI never hands
// claims to an in-process queue that dies with the command.
func (s *CLISuite) TestAsyncWithoutBrokersScoresSynchronously() {
	s.Run("memory queue is replaced by synchronous scoring", func() {
		cfg := s.cfg
		cfg.Worker.AsyncFraudCheck = true
		var opened config.Config
		open := func(_ context.Context, c config.Config, _ *slog.Logger) (*app.App, error) {
			opened = c
			return s.app, nil
		}
		root := NewRootCommand(cfg, logger.Discard(), open, &bytes.Buffer{})
		root.SetArgs([]string{"tenant", "budgets", "--token", s.admin})
		s.Require().NoError(root.ExecuteContext(context.Background()))
		s.False(opened.Worker.AsyncFraudCheck)
	})

	s.Run("kafka keeps async submission", func() {
		cfg := s.cfg
		cfg.Worker.AsyncFraudCheck = true
		cfg.Kafka.Brokers = []string{"localhost:9092"}
		got := commandConfig(context.Background(), cfg, logger.Discard())
		s.True(got.Worker.AsyncFraudCheck)
	})
}
