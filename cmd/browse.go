package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newBrowseCmd creates the 'browse' subcommand. It asks the upstream
// gazette for the day's page counts and publishes one fetch job per page.
func newBrowseCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Dispatches fetch jobs for one gazette edition",
		Long: `Validates the edition date against the upstream gazette, reads the
page count of every category and publishes one fetch job per page. With
no --date the edition is picked from the clock: today's, or tomorrow's
once the evening publication window has opened.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			dispatched, err := appInstance.Dispatcher().Browse(cmd.Context(), date)
			if err != nil {
				return fmt.Errorf("browse edition: %w", err)
			}
			appInstance.Logger().Info("edition dispatched",
				zap.String("date", date),
				zap.Int("jobs", dispatched))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "edition date (YYYY-MM-DD, default chosen from the clock)")
	return cmd
}
