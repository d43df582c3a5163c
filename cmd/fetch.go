package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newFetchCmd creates the 'fetch' subcommand: a long-running consumer that
// downloads page PDFs and hands them to the converter topic.
func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Runs the PDF fetch workers",
		Long: `Consumes fetch jobs from the broker, downloads each page PDF from the
upstream gazette, archives the raw bytes to blob storage and publishes a
conversion job. Runs until interrupted.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			if err := appInstance.SubscribeFetch(); err != nil {
				return err
			}
			appInstance.Logger().Info("fetch workers running")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
}
