package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	paymentVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Payment verifications by terminal outcome",
		},
		[]string{"outcome"},
	)

	gatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Payment gateway call attempts",
		},
		[]string{"endpoint", "result"},
	)

	ordersPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_persisted_total",
			Help: "Order persistence attempts (created, existing, failed)",
		},
		[]string{"result"},
	)

	notificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notification deliveries by recipient and status",
		},
		[]string{"recipient", "status"},
	)

	couponReconcileRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupon_reconcile_rows_total",
			Help: "Coupon rows visited by reconciliation",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(paymentVerificationsTotal)
	prometheus.MustRegister(gatewayCallsTotal)
	prometheus.MustRegister(ordersPersistedTotal)
	prometheus.MustRegister(notificationsSentTotal)
	prometheus.MustRegister(couponReconcileRowsTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordPaymentVerification(outcome string) {
	paymentVerificationsTotal.WithLabelValues(outcome).Inc()
}

func RecordGatewayCall(endpoint, result string) {
	gatewayCallsTotal.WithLabelValues(endpoint, result).Inc()
}

func RecordOrderPersisted(result string) {
	ordersPersistedTotal.WithLabelValues(result).Inc()
}

func RecordNotificationSent(recipient, status string) {
	notificationsSentTotal.WithLabelValues(recipient, status).Inc()
}

func RecordCouponReconciled(result string, n int) {
	couponReconcileRowsTotal.WithLabelValues(result).Add(float64(n))
}
