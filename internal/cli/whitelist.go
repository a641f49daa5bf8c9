package cli

import (
	"github.com/spf13/cobra"

	whitelistmodels "benefits/internal/whitelist/models"
	id "benefits/pkg/domain"
	"benefits/pkg/requestcontext"
)

func parsePair(a, b string) (id.BeneficiaryID, id.BeneficiaryID, error) {
	x, err := id.ParseBeneficiaryID(a)
	if err != nil {
		return 0, 0, err
	}
	y, err := id.ParseBeneficiaryID(b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func (s *session) whitelistCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "whitelist", Short: "Adjudicated beneficiary pairs"}

	find := &cobra.Command{
		Use:   "find A B",
		Short: "Show the live adjudication of a pair, in either order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			ctx, app, err := s.context(cmd)
			if err != nil {
				return err
			}
			p, err := app.Whitelist.FindPair(ctx, a, b)
			if err != nil {
				return err
			}
			return s.print(p)
		},
	}

	var status, justification string
	create := &cobra.Command{
		Use:   "create A B",
		Short: "Record a reviewer's adjudication of a pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			ctx, app, err := s.context(cmd)
			if err != nil {
				return err
			}
			p, err := app.Whitelist.Create(ctx, whitelistmodels.CreatePairRequest{
				BeneficiaryA:  a,
				BeneficiaryB:  b,
				Status:        whitelistmodels.Status(status),
				Justification: justification,
			})
			if err != nil {
				return err
			}
			return s.print(p)
		},
	}
	create.Flags().StringVar(&status, "status", string(whitelistmodels.StatusConfirmedDistinct),
		"confirmed_distinct, confirmed_duplicate or under_review")
	create.Flags().StringVar(&justification, "justification", "", "reviewer's justification")
	_ = create.MarkFlagRequired("justification")

	var reason string
	revoke := &cobra.Command{
		Use:   "revoke PAIR_ID",
		Short: "Revoke a live adjudication",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairID, err := id.ParsePairID(args[0])
			if err != nil {
				return err
			}
			ctx, app, err := s.context(cmd)
			if err != nil {
				return err
			}
			revoked, err := app.Whitelist.Revoke(ctx, pairID, requestcontext.UserID(ctx), reason)
			if err != nil {
				return err
			}
			return s.print(map[string]any{"pair_id": pairID, "revoked": revoked})
		},
	}
	revoke.Flags().StringVar(&reason, "reason", "", "why the adjudication is withdrawn")
	_ = revoke.MarkFlagRequired("reason")

	list := &cobra.Command{
		Use:   "list BENEFICIARY_ID",
		Short: "Adjudication history involving a beneficiary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			beneficiaryID, err := id.ParseBeneficiaryID(args[0])
			if err != nil {
				return err
			}
			ctx, app, err := s.context(cmd)
			if err != nil {
				return err
			}
			pairs, err := app.Whitelist.PairsFor(ctx, beneficiaryID)
			if err != nil {
				return err
			}
			return s.print(pairs)
		},
	}

	cmd.AddCommand(find, create, revoke, list)
	return cmd
}
