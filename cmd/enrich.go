package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	enrichRate      float64
	enrichBatchSize int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Backfill descriptions for companies without one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		limiter := rate.NewLimiter(rate.Limit(enrichRate), 1)
		described, err := env.Describer.DescribeAll(ctx, enrichBatchSize, limiter)
		zap.L().Info("backfill finished", zap.Int("described", described))
		return err
	},
}

func init() {
	enrichCmd.Flags().Float64Var(&enrichRate, "rate", 1.0, "descriptions per second")
	enrichCmd.Flags().IntVar(&enrichBatchSize, "batch-size", 50, "companies fetched per batch")
	rootCmd.AddCommand(enrichCmd)
}
