package cli

import (
	"github.com/spf13/cobra"

	riskmodels "benefits/internal/risk/models"
)

func (s *session) riskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "risk", Short: "Cross-office risk scoring"}

	var first, last, birthdate, category string
	assess := &cobra.Command{
		Use:   "assess",
		Short: "Score a person against the province-wide claim history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bd, err := parseDate("birthdate", birthdate)
			if err != nil {
				return err
			}
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			v, err := a.Risk.AssessRisk(ctx, riskmodels.AssessRequest{
				FirstName: first,
				LastName:  last,
				Birthdate: bd,
				Category:  category,
			})
			if err != nil {
				return err
			}
			return s.print(v)
		},
	}
	assess.Flags().StringVar(&first, "first", "", "first name")
	assess.Flags().StringVar(&last, "last", "", "last name")
	assess.Flags().StringVar(&birthdate, "birthdate", "", "birthdate (YYYY-MM-DD)")
	assess.Flags().StringVar(&category, "category", "", "assistance category; enables the double-dipping check")
	assess.MarkFlagsRequiredTogether("first", "last", "birthdate")

	cmd.AddCommand(assess)
	return cmd
}
