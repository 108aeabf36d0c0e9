package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ahmet0524/pastirmaadasi-sub000/coupons"
	"github.com/ahmet0524/pastirmaadasi-sub000/middleware"
	"github.com/ahmet0524/pastirmaadasi-sub000/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (*coupons.Report, error)
}

func InitConsumer(cfg Config, logger *zap.Logger) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Retry.Backoff = 1 * time.Second

	consumer, err := sarama.NewConsumer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized", zap.Strings("brokers", cfg.Brokers))
	return consumer, nil
}

// CouponSync re-runs coupon reconciliation whenever an order event carrying
// coupon codes is consumed.
type CouponSync struct {
	reconciler Reconciler
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func NewCouponSync(reconciler Reconciler, logger *zap.Logger) *CouponSync {
	return &CouponSync{reconciler: reconciler, logger: logger, maxRetries: 3, backoff: time.Second}
}

// Run consumes every partition of topic and blocks until ctx is cancelled,
// all partitions stop, or a partition consumer fails to start. Messages from
// all partitions are handled one at a time.
func (s *CouponSync) Run(ctx context.Context, consumer sarama.Consumer, topic string) error {
	partitions, err := consumer.Partitions(topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	var partitionConsumers []sarama.PartitionConsumer
	defer func() {
		for _, pc := range partitionConsumers {
			pc.Close()
		}
	}()
	for _, partition := range partitions {
		pc, err := consumer.ConsumePartition(topic, partition, sarama.OffsetNewest)
		if err != nil {
			return fmt.Errorf("failed to consume partition %d: %w", partition, err)
		}
		partitionConsumers = append(partitionConsumers, pc)
	}

	runCtx, cancel := context.WithCancel(ctx)
	messages := make(chan *sarama.ConsumerMessage)
	var wg sync.WaitGroup
	for _, pc := range partitionConsumers {
		wg.Add(1)
		go s.forward(runCtx, pc, messages, &wg)
	}
	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	s.logger.Info("Kafka consumer started", zap.String("topic", topic), zap.Int("partitions", len(partitions)))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopped:
			return nil
		case message := <-messages:
			if err := s.handleMessageWithRetry(ctx, message); err != nil {
				s.logger.Error("Failed to handle message after retries",
					zap.Int32("partition", message.Partition),
					zap.Int64("offset", message.Offset),
					zap.Error(err),
				)
			}
		}
	}
}

func (s *CouponSync) forward(ctx context.Context, pc sarama.PartitionConsumer, out chan<- *sarama.ConsumerMessage, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-pc.Messages():
			if !ok {
				return
			}
			select {
			case out <- message:
			case <-ctx.Done():
				return
			}
		case err, ok := <-pc.Errors():
			if !ok {
				return
			}
			s.logger.Error("Kafka consumer error", zap.Int32("partition", err.Partition), zap.Error(err.Err))
		}
	}
}

func (s *CouponSync) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.handleMessage(ctx, message)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < s.maxRetries {
			backoff := time.Duration(attempt) * s.backoff
			s.logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", s.maxRetries, lastErr)
}

func (s *CouponSync) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, consumerCarrier(message.Headers))
	ctx, span := otel.Tracer("coupon-sync").Start(ctx, "HandleOrderEvent")
	defer span.End()

	var event models.OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		// Poison messages are skipped, retrying cannot fix them.
		s.logger.Warn("Skipping undecodable order event", zap.Error(err))
		return nil
	}
	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.String("order.number", event.OrderNumber),
	)

	if !affectsCoupons(event) {
		return nil
	}

	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Info("Coupon usage synced after order event",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("event_type", event.EventType),
		zap.String("order_number", event.OrderNumber),
		zap.Int("updated", len(report.Updated)),
		zap.Int("failed", len(report.Failed)),
	)
	return nil
}

func affectsCoupons(event models.OrderEvent) bool {
	if len(event.CouponCodes) == 0 {
		return false
	}
	switch event.EventType {
	case models.EventOrderCreated, models.EventOrderPaid, models.EventOrderCancelled:
		return true
	}
	return false
}
