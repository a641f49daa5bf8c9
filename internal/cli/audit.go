package cli

import (
	"github.com/spf13/cobra"
)

func (s *session) auditCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Audit trail"}

	list := &cobra.Command{
		Use:   "list SUBJECT",
		Short: "Events for a subject such as claim:42 or pair:7",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			events, err := a.Audit.List(ctx, args[0])
			if err != nil {
				return err
			}
			return s.print(events)
		},
	}

	cmd.AddCommand(list)
	return cmd
}
