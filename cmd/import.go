package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-api/internal/importer"
)

var importBatchSize int

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk import companies from a JSONL, JSON, CSV, or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := importer.New(env.Store, importBatchSize).ImportFile(ctx, args[0])
		if report != nil {
			zap.L().Info("import finished",
				zap.Int("total", report.Total),
				zap.Int("imported", report.Imported),
				zap.Int("skipped", report.Skipped),
				zap.Int("failed", report.Failed),
			)
		}
		return err
	},
}

func init() {
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 1000, "rows per insert batch")
	rootCmd.AddCommand(importCmd)
}
