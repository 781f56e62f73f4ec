package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	chiTransport "github.com/kailas-cloud/rarity/internal/transport/chi"
	healthuc "github.com/kailas-cloud/rarity/internal/usecase/health"
	"github.com/kailas-cloud/rarity/internal/version"
)

var errUnhealthy = errors.New("content store unhealthy")

func newCheckCmd(env *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Connect, ensure the content index and print component health as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*env)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.health.Check(cmd.Context())
			if err := writeReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Status == healthuc.Unhealthy {
				return errUnhealthy
			}
			return nil
		},
	}
}

func writeReport(w io.Writer, report healthuc.Report) error {
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	//nolint:wrapcheck // writing to stdout
	return enc.Encode(chiTransport.HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Version: version.String(),
	})
}
