package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Fetches every missing monthly shard since backfill.start",
		Long: `Walks each month from backfill.start to the current month. Months whose
shard already exists are skipped without a request; failed months are appended
to the missing-period log and retried on the next run. The run report is
printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: runBackfillCommand,
	}
}

func runBackfillCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	report, runErr := appInstance.RunBackfill(cmd.Context())
	if report.RunID != "" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("backfill: %w", runErr)
	}
	appInstance.Logger().Info("Backfill command finished.",
		zap.String("run_id", report.RunID),
		zap.Int("missing", len(report.Missing())),
	)
	return nil
}
