package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and run workers",
		Long: `Serves POST /v1/scrapes and GET /v1/scrapes/{run_id}, drains the run queue
with the configured number of workers, and exposes /metrics for Prometheus.
Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := resolveService(cmd.Context())
			if err != nil {
				return err
			}
			return svc.Serve(cmd.Context())
		},
	}
}
