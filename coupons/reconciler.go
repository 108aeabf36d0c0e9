package coupons

import (
	"context"
	"fmt"

	"github.com/ahmet0524/pastirmaadasi-sub000/middleware"
	"github.com/ahmet0524/pastirmaadasi-sub000/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Store interface {
	ListCouponUsage(ctx context.Context) ([]models.CouponUsage, error)
	ListCoupons(ctx context.Context) ([]models.Coupon, error)
	SetUsedCount(ctx context.Context, couponID int64, count int) error
}

type Change struct {
	Code     string `json:"code"`
	OldCount int    `json:"old_count"`
	NewCount int    `json:"new_count"`
}

type Failure struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type Report struct {
	Updated   []Change  `json:"updated"`
	Unchanged int       `json:"unchanged"`
	Failed    []Failure `json:"failed"`
}

// Reconciler restores coupons.used_count from the order history. It only
// corrects drift; nothing on the order path depends on it running.
type Reconciler struct {
	store  Store
	logger *zap.Logger
}

func NewReconciler(store Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

func (r *Reconciler) Reconcile(ctx context.Context) (*Report, error) {
	ctx, span := otel.Tracer("coupon-reconciler").Start(ctx, "Reconcile")
	defer span.End()
	traceID := middleware.GetTraceID(ctx)

	usage, err := r.store.ListCouponUsage(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load coupon usage: %w", err)
	}
	counts := CountUsage(usage)

	coupons, err := r.store.ListCoupons(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load coupons: %w", err)
	}

	report := &Report{Updated: []Change{}, Failed: []Failure{}}
	for _, c := range coupons {
		want := counts[models.NormalizeCouponCode(c.Code)]
		if c.UsedCount == want {
			report.Unchanged++
			continue
		}

		if err := r.store.SetUsedCount(ctx, c.ID, want); err != nil {
			r.logger.Error("Failed to update coupon usage",
				zap.String("trace_id", traceID),
				zap.String("code", c.Code),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, Failure{Code: c.Code, Error: err.Error()})
			continue
		}

		r.logger.Info("Coupon usage corrected",
			zap.String("trace_id", traceID),
			zap.String("code", c.Code),
			zap.Int("old_count", c.UsedCount),
			zap.Int("new_count", want),
		)
		report.Updated = append(report.Updated, Change{Code: c.Code, OldCount: c.UsedCount, NewCount: want})
	}

	middleware.RecordCouponReconciled("updated", len(report.Updated))
	middleware.RecordCouponReconciled("unchanged", report.Unchanged)
	middleware.RecordCouponReconciled("failed", len(report.Failed))

	span.SetAttributes(
		attribute.Int("coupons.updated", len(report.Updated)),
		attribute.Int("coupons.unchanged", report.Unchanged),
		attribute.Int("coupons.failed", len(report.Failed)),
	)
	r.logger.Info("Coupon reconciliation finished",
		zap.String("trace_id", traceID),
		zap.Int("updated", len(report.Updated)),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// AppliedCodes merges the list column and the legacy single-code column of
// one order into a set. An order counts at most once per code.
func AppliedCodes(u models.CouponUsage) []string {
	codes := append([]string{}, u.Codes...)
	if u.LegacyCode != "" {
		codes = append(codes, u.LegacyCode)
	}
	return models.NormalizeCouponCodes(codes)
}

func CountUsage(usage []models.CouponUsage) map[string]int {
	counts := make(map[string]int)
	for _, u := range usage {
		for _, code := range AppliedCodes(u) {
			counts[code]++
		}
	}
	return counts
}
