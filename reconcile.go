package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ahmet0524/pastirmaadasi-sub000/coupons"
	"github.com/ahmet0524/pastirmaadasi-sub000/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reconcileTimeout time.Duration

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute coupon usage counters from order history",
	Long: `Counts every non-cancelled order per coupon code and writes back the
counters that drifted. Prints the report as JSON and exits non-zero when
any coupon could not be updated.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().DurationVar(&reconcileTimeout, "timeout", 2*time.Minute, "overall time limit")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()
	defer logger.Sync()

	db, err := database.InitDB(cfg.Database(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), reconcileTimeout)
	defer cancel()

	report, err := coupons.NewReconciler(database.NewCouponStore(db), logger).Reconcile(ctx)
	if err != nil {
		logger.Error("Coupon reconciliation failed", zap.Error(err))
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if len(report.Failed) > 0 {
		return fmt.Errorf("%d coupon(s) could not be updated", len(report.Failed))
	}
	return nil
}
