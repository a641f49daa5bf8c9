package cli

import (
	"github.com/spf13/cobra"
)

func (s *session) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Risk thresholds"}

	list := &cobra.Command{
		Use:   "list",
		Short: "Effective settings, marking defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			entries, err := a.Settings.List(ctx)
			if err != nil {
				return err
			}
			return s.print(entries)
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a threshold; takes effect on the next assessment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			if err := a.Settings.Set(ctx, args[0], args[1]); err != nil {
				return err
			}
			return s.print(a.Thresholds.RiskThresholds(ctx))
		},
	}

	cmd.AddCommand(list, set)
	return cmd
}
