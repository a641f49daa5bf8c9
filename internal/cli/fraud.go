package cli

import (
	"github.com/spf13/cobra"
)

func (s *session) fraudCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "fraud", Short: "Asynchronous fraud checks"}

	var limit int
	deadLetters := &cobra.Command{
		Use:   "dead-letters",
		Short: "Fraud checks that exhausted their retries; their claims need manual review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			letters, err := a.DeadLetters(ctx, limit)
			if err != nil {
				return err
			}
			return s.print(letters)
		},
	}
	deadLetters.Flags().IntVar(&limit, "limit", 100, "maximum rows")

	stuck := &cobra.Command{
		Use:   "stuck",
		Short: "Count claims waiting on a fraud check longer than the configured limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			n, err := a.Monitor.Check(ctx)
			if err != nil {
				return err
			}
			return s.print(map[string]any{"stuck": n, "older_than": s.cfg.Worker.StuckAfter.String()})
		},
	}
	cmd.AddCommand(deadLetters, stuck)
	return cmd
}
