package cli

import (
	"time"

	"github.com/spf13/cobra"

	"benefits/internal/platform/caller"
	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/requestcontext"
)

// tokenCmd signs caller tokens with the local key. Production tokens come
// from the identity provider.
func (s *session) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Caller tokens for local use"}

	var (
		user     string
		tenant   int64
		province bool
		ttl      time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a province-wide or tenant-scoped caller token",
		RunE: func(*cobra.Command, []string) error {
			userID, err := id.ParseUserID(user)
			if err != nil {
				return err
			}
			var c requestcontext.Caller
			switch {
			case province:
				c = requestcontext.ProvinceCaller(userID)
			case tenant > 0:
				c = requestcontext.TenantCaller(userID, id.TenantID(tenant))
			default:
				return dErrors.New(dErrors.CodeBadRequest, "either --province or --tenant is required")
			}
			token, err := caller.NewVerifier(s.cfg.Auth.JWTSigningKey, s.cfg.Auth.Issuer).Issue(c, ttl, time.Now())
			if err != nil {
				return err
			}
			return s.print(map[string]string{"token": token})
		},
	}
	issue.Flags().StringVar(&user, "user", "", "user UUID")
	issue.Flags().Int64Var(&tenant, "tenant", 0, "tenant ID for a tenant-scoped token")
	issue.Flags().BoolVar(&province, "province", false, "issue a province-wide token")
	issue.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")
	_ = issue.MarkFlagRequired("user")
	issue.MarkFlagsMutuallyExclusive("province", "tenant")

	cmd.AddCommand(issue)
	return cmd
}
