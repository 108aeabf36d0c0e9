package handlers

import (
	"context"
	"net/http"

	"github.com/ahmet0524/pastirmaadasi-sub000/coupons"
	"github.com/ahmet0524/pastirmaadasi-sub000/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (*coupons.Report, error)
}

type CouponHandler struct {
	reconciler Reconciler
	logger     *zap.Logger
}

func NewCouponHandler(reconciler Reconciler, logger *zap.Logger) *CouponHandler {
	return &CouponHandler{reconciler: reconciler, logger: logger}
}

func (h *CouponHandler) Reconcile(c *gin.Context) {
	report, err := h.reconciler.Reconcile(c.Request.Context())
	if err != nil {
		h.logger.Error("Coupon reconciliation failed",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Coupon reconciliation failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}
