package cli

import (
	"context"

	"github.com/spf13/cobra"

	claimmodels "benefits/internal/claim/models"
	id "benefits/pkg/domain"
)

func (s *session) claimCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "claim", Short: "Claim intake, review and disbursement"}

	var (
		who      candidateFlags
		tenant   int64
		category string
		amount   string
	)
	submit := &cobra.Command{
		Use:   "submit",
		Short: "Submit a claim, registering the beneficiary if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := who.candidate()
			if err != nil {
				return err
			}
			money, err := id.ParseMoney(amount)
			if err != nil {
				return err
			}
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			claim, err := a.Claims.Submit(ctx, claimmodels.SubmitRequest{
				Beneficiary: c,
				TenantID:    id.TenantID(tenant),
				Category:    category,
				Amount:      money,
			})
			if err != nil {
				if claim != nil {
					// Stored, but the fraud check could not be queued.
					_ = s.print(claim)
				}
				return err
			}
			return s.print(claim)
		},
	}
	who.bind(submit)
	submit.Flags().Int64Var(&tenant, "tenant", 0, "office taking the claim (defaults to the caller's)")
	submit.Flags().StringVar(&category, "category", "", "assistance category")
	submit.Flags().StringVar(&amount, "amount", "", "amount in pesos")
	_ = submit.MarkFlagRequired("amount")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show a claim",
		Args:  cobra.ExactArgs(1),
		RunE:  s.claimAction(func(ctx context.Context, a claimActions, claimID id.ClaimID) (*claimmodels.Claim, error) { return a.Get(ctx, claimID) }),
	}

	var (
		listTenant, listBeneficiary int64
		listStatus                  string
		listLimit                   int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List claims visible to the caller, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			claims, err := a.Claims.List(ctx, claimmodels.ListFilter{
				TenantID:      id.TenantID(listTenant),
				BeneficiaryID: id.BeneficiaryID(listBeneficiary),
				Status:        claimmodels.Status(listStatus),
				Limit:         listLimit,
			})
			if err != nil {
				return err
			}
			return s.print(claims)
		},
	}
	list.Flags().Int64Var(&listTenant, "tenant", 0, "only this office")
	list.Flags().Int64Var(&listBeneficiary, "beneficiary", 0, "only this beneficiary")
	list.Flags().StringVar(&listStatus, "status", "", "only this status")
	list.Flags().IntVar(&listLimit, "limit", 0, "maximum rows (default 100)")

	review := &cobra.Command{
		Use:   "review ID",
		Short: "Move a claim to UNDER_REVIEW",
		Args:  cobra.ExactArgs(1),
		RunE:  s.claimAction(func(ctx context.Context, a claimActions, claimID id.ClaimID) (*claimmodels.Claim, error) { return a.MarkUnderReview(ctx, claimID) }),
	}
	approve := &cobra.Command{
		Use:   "approve ID",
		Short: "Approve a claim",
		Args:  cobra.ExactArgs(1),
		RunE:  s.claimAction(func(ctx context.Context, a claimActions, claimID id.ClaimID) (*claimmodels.Claim, error) { return a.Approve(ctx, claimID) }),
	}

	var reason string
	reject := &cobra.Command{
		Use:   "reject ID",
		Short: "Reject a claim with a reason",
		Args:  cobra.ExactArgs(1),
		RunE: s.claimAction(func(ctx context.Context, a claimActions, claimID id.ClaimID) (*claimmodels.Claim, error) {
			return a.Reject(ctx, claimID, reason)
		}),
	}
	reject.Flags().StringVar(&reason, "reason", "", "rejection reason")
	_ = reject.MarkFlagRequired("reason")

	cancel := &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a claim",
		Args:  cobra.ExactArgs(1),
		RunE:  s.claimAction(func(ctx context.Context, a claimActions, claimID id.ClaimID) (*claimmodels.Claim, error) { return a.Cancel(ctx, claimID) }),
	}
	disburse := &cobra.Command{
		Use:   "disburse ID",
		Short: "Disburse an approved claim against the office budget",
		Args:  cobra.ExactArgs(1),
		RunE:  s.claimAction(func(ctx context.Context, a claimActions, claimID id.ClaimID) (*claimmodels.Claim, error) { return a.Disburse(ctx, claimID) }),
	}

	cmd.AddCommand(submit, get, list, review, approve, reject, cancel, disburse)
	return cmd
}

// claimActions is the slice of the claim service that single-claim commands use.
type claimActions interface {
	Get(ctx context.Context, claimID id.ClaimID) (*claimmodels.Claim, error)
	MarkUnderReview(ctx context.Context, claimID id.ClaimID) (*claimmodels.Claim, error)
	Approve(ctx context.Context, claimID id.ClaimID) (*claimmodels.Claim, error)
	Reject(ctx context.Context, claimID id.ClaimID, reason string) (*claimmodels.Claim, error)
	Cancel(ctx context.Context, claimID id.ClaimID) (*claimmodels.Claim, error)
	Disburse(ctx context.Context, claimID id.ClaimID) (*claimmodels.Claim, error)
}

func (s *session) claimAction(fn func(ctx context.Context, a claimActions, claimID id.ClaimID) (*claimmodels.Claim, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		claimID, err := id.ParseClaimID(args[0])
		if err != nil {
			return err
		}
		ctx, a, err := s.context(cmd)
		if err != nil {
			return err
		}
		c, err := fn(ctx, a.Claims, claimID)
		if err != nil {
			return err
		}
		return s.print(c)
	}
}
