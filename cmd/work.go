package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newWorkCmd creates the 'work' subcommand. In its default mode it runs
// the page workers; with --replay it rebuilds one edition from the raw
// page backup instead.
func newWorkCmd() *cobra.Command {
	var (
		replay   bool
		date     string
		category string
	)

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Runs the page workers",
		Long: `Consumes converted pages from the broker, stores and normalizes them,
and extracts case records once an edition's book is complete. Runs until
interrupted.

With --replay the command instead reprocesses a finished edition from
the raw page backup, which picks up extraction fixes without touching
the upstream gazette.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			if replay {
				if date == "" || category == "" {
					return errors.New("--replay requires --date and --category")
				}
				pages, err := appInstance.Replayer().Replay(cmd.Context(), date, category)
				if err != nil {
					return fmt.Errorf("replay edition: %w", err)
				}
				appInstance.Logger().Info("edition replayed",
					zap.String("date", date),
					zap.String("category", category),
					zap.Int("pages", pages))
				return nil
			}

			if err := appInstance.SubscribePages(); err != nil {
				return err
			}
			appInstance.Logger().Info("page workers running")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&replay, "replay", false, "reprocess one edition from the raw page backup")
	cmd.Flags().StringVar(&date, "date", "", "edition date to replay (YYYY-MM-DD)")
	cmd.Flags().StringVar(&category, "category", "", "gazette category to replay (C, I, S or E)")
	return cmd
}
