package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/quake-catalog-crawler/internal/clean"
)

func newCleanCmd() *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Normalizes a merged CSV and adds the province column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			r, err := os.Open(in)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer r.Close()

			w, err := openOutput(cmd, out)
			if err != nil {
				return err
			}
			report, err := clean.Run(r, w)
			if cerr := w.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close %s: %w", out, cerr)
			}
			if err != nil {
				return fmt.Errorf("clean: %w", err)
			}
			appInstance.Logger().Info("Clean command finished.",
				zap.String("out", out),
				zap.Int("rows", report.Rows),
				zap.Int("bad_dates", report.BadDates),
				zap.Int("bad_depths", report.BadDepths),
				zap.Int("no_province", report.NoProvince),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "data/all_raw_eq_data.csv", "merged CSV to clean")
	cmd.Flags().StringVar(&out, "out", "data/cleaned_v1_eq_data.csv", `output file, "-" for stdout`)
	return cmd
}
