package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmet0524/pastirmaadasi-sub000/cache"
	"github.com/ahmet0524/pastirmaadasi-sub000/config"
	"github.com/ahmet0524/pastirmaadasi-sub000/coupons"
	"github.com/ahmet0524/pastirmaadasi-sub000/database"
	"github.com/ahmet0524/pastirmaadasi-sub000/gateway"
	"github.com/ahmet0524/pastirmaadasi-sub000/handlers"
	"github.com/ahmet0524/pastirmaadasi-sub000/kafka"
	"github.com/ahmet0524/pastirmaadasi-sub000/middleware"
	"github.com/ahmet0524/pastirmaadasi-sub000/notify"
	"github.com/ahmet0524/pastirmaadasi-sub000/orchestrator"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "pastirma"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the gRPC health service and the order event consumer",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger()
	defer logger.Sync()

	db, err := database.InitDB(cfg.Database(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Redis and Kafka are optional: the service runs degraded without them.
	var redisClient *redis.Client
	var verdictCache orchestrator.VerdictCache
	if redisClient, err = cache.InitRedis(cfg.Cache(), logger); err != nil {
		logger.Warn("Redis unavailable, duplicate callbacks go to the processor", zap.Error(err))
	} else {
		verdictCache = cache.NewVerdictCache(redisClient, cfg.Redis.VerdictTTL)
	}

	messaging := cfg.Messaging()
	var producer sarama.SyncProducer
	var publisher *kafka.Publisher
	if producer, err = kafka.InitProducer(messaging, logger); err != nil {
		logger.Warn("Kafka producer unavailable, order events are not published", zap.Error(err))
	} else {
		publisher = kafka.NewPublisher(producer, messaging.Topic, logger)
	}

	shutdownTracing, err := middleware.InitTracing(serviceName, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	gw, err := gateway.NewClient(cfg.Gateway(), nil, logger)
	if err != nil {
		logger.Fatal("Failed to initialize payment gateway", zap.Error(err))
	}

	var dispatcher *notify.Dispatcher
	if sender, err := notify.NewResendSender(cfg.Resend.APIKey); err != nil {
		logger.Warn("Email delivery disabled", zap.Error(err))
	} else {
		dispatcher = notify.NewDispatcher(sender, cfg.MailFrom, cfg.AdminEmail, logger)
	}

	orderStore := database.NewOrderStore(db)
	reconciler := coupons.NewReconciler(database.NewCouponStore(db), logger)

	orch := &orchestrator.Orchestrator{
		Gateway: gw,
		Orders:  orderStore,
		Cache:   verdictCache,
		Logger:  logger,
	}
	// Typed nils must not leak into the interfaces.
	if publisher != nil {
		orch.Publisher = publisher
	}
	if dispatcher != nil {
		orch.Notifier = dispatcher
	}

	router := newRouter(cfg, db, orch, gw, orderStore, dispatcher, publisher, reconciler, logger)
	restSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		if err := restSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	logger.Info("REST API started", zap.String("addr", cfg.HTTPAddr))

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()
	logger.Info("gRPC health server started", zap.String("addr", cfg.GRPCAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchHealth(ctx, db, healthServer)

	var consumer sarama.Consumer
	if consumer, err = kafka.InitConsumer(messaging, logger); err != nil {
		logger.Warn("Kafka consumer unavailable, coupon sync runs on demand only", zap.Error(err))
	} else {
		go func() {
			if err := kafka.NewCouponSync(reconciler, logger).Run(ctx, consumer, messaging.Topic); err != nil {
				logger.Error("Kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received. Exiting...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	}
	healthServer.Shutdown()
	grpcServer.GracefulStop()

	if err := orch.Wait(shutdownCtx); err != nil {
		logger.Warn("Pending notifications abandoned", zap.Error(err))
	}

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("Failed to close Kafka consumer", zap.Error(err))
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("Failed to close Kafka producer", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis", zap.Error(err))
		}
	}
	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	}

	shutdownTracing()
	logger.Info("Service exited gracefully")
	return nil
}

func newRouter(
	cfg *config.Config,
	db *sql.DB,
	orch *orchestrator.Orchestrator,
	gw *gateway.Client,
	orderStore *database.OrderStore,
	dispatcher *notify.Dispatcher,
	publisher *kafka.Publisher,
	reconciler *coupons.Reconciler,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.Readiness(db))
	router.GET("/metrics", middleware.PrometheusHandler())

	paymentHandler := handlers.NewPaymentHandler(gw, orch, cfg.PublicSiteURL, logger)
	router.POST("/api/payments/initialize", paymentHandler.InitializePayment)
	router.GET("/api/payments/callback", paymentHandler.PaymentCallback)
	router.POST("/api/payments/callback", paymentHandler.PaymentCallback)
	router.POST("/api/payments/verify", paymentHandler.VerifyPayment)

	var notifier handlers.TrackingNotifier
	if dispatcher != nil {
		notifier = dispatcher
	}
	var events handlers.EventPublisher
	if publisher != nil {
		events = publisher
	}
	orderHandler := handlers.NewOrderHandler(orch, orderStore, notifier, events, logger)
	router.POST("/api/orders/cash", orderHandler.CreateCashOrder)
	router.GET("/api/orders/:orderNumber", orderHandler.GetOrder)

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set, admin endpoints are disabled")
		return router
	}
	admin := router.Group("/api", middleware.AdminAuth([]byte(cfg.AdminJWTSecret)))
	admin.POST("/orders/:orderNumber/tracking", orderHandler.UpdateTracking)
	admin.POST("/admin/coupons/reconcile", handlers.NewCouponHandler(reconciler, logger).Reconcile)

	return router
}

func watchHealth(ctx context.Context, db *sql.DB, hs *health.Server) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		status := healthpb.HealthCheckResponse_SERVING
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		cancel()
		hs.SetServingStatus("", status)
		hs.SetServingStatus(serviceName, status)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
