package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ahmet0524/pastirmaadasi-sub000/coupons"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type mockReconciler struct {
	report *coupons.Report
	err    error
}

func (m *mockReconciler) Reconcile(ctx context.Context) (*coupons.Report, error) {
	return m.report, m.err
}

func TestCouponHandler_Reconcile(t *testing.T) {
	tests := []struct {
		name         string
		reconciler   *mockReconciler
		expectedCode int
	}{
		{
			name: "report returned",
			reconciler: &mockReconciler{report: &coupons.Report{
				Updated: []coupons.Change{{Code: "A", OldCount: 0, NewCount: 2}},
				Failed:  []coupons.Failure{},
			}},
			expectedCode: http.StatusOK,
		},
		{
			name:         "store unavailable",
			reconciler:   &mockReconciler{err: errors.New("connection refused")},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
			handler := NewCouponHandler(tt.reconciler, logger)

			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.POST("/api/admin/coupons/reconcile", handler.Reconcile)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("POST", "/api/admin/coupons/reconcile", nil))

			if w.Code != tt.expectedCode {
				t.Errorf("Expected status %d, got %d", tt.expectedCode, w.Code)
			}
			if tt.expectedCode == http.StatusOK {
				var report coupons.Report
				if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
					t.Fatalf("Failed to decode report: %v", err)
				}
				if len(report.Updated) != 1 || report.Updated[0].NewCount != 2 {
					t.Errorf("Unexpected report: %+v", report)
				}
			}
		})
	}
}
