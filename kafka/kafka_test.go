package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmet0524/pastirmaadasi-sub000/coupons"
	"github.com/ahmet0524/pastirmaadasi-sub000/models"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	return config
}

func TestPublisher_PublishOrderEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, producerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event models.OrderEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.EventType != models.EventOrderPaid || event.OrderNumber != "ORD-1" {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	pub := NewPublisher(producer, "order_events", logger)

	err := pub.PublishOrderEvent(context.Background(), models.OrderEvent{
		OrderNumber: "ORD-1",
		PaymentID:   "1",
		Status:      models.OrderStatusPaid,
		Total:       decimal.NewFromInt(100),
		EventType:   models.EventOrderPaid,
	})
	require.NoError(t, err)
	require.NoError(t, producer.Close())
}

func TestPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, producerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewPublisher(producer, "order_events", zap.NewNop())
	err := pub.PublishOrderEvent(context.Background(), models.OrderEvent{OrderNumber: "ORD-1", EventType: models.EventOrderPaid})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}

type countingReconciler struct {
	calls    atomic.Int32
	failures int32
	done     chan struct{}
}

func (r *countingReconciler) Reconcile(ctx context.Context) (*coupons.Report, error) {
	n := r.calls.Add(1)
	if n <= r.failures {
		return nil, errors.New("store unavailable")
	}
	if r.done != nil {
		r.done <- struct{}{}
	}
	return &coupons.Report{}, nil
}

func setupCouponSyncTest(t *testing.T, r Reconciler) *CouponSync {
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	s := NewCouponSync(r, logger)
	s.backoff = time.Millisecond
	return s
}

func eventMessage(t *testing.T, event models.OrderEvent) *sarama.ConsumerMessage {
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "order_events", Value: value}
}

func TestCouponSync_HandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		message   func(t *testing.T) *sarama.ConsumerMessage
		wantCalls int32
	}{
		{
			name: "paid order with coupons",
			message: func(t *testing.T) *sarama.ConsumerMessage {
				return eventMessage(t, models.OrderEvent{OrderNumber: "ORD-1", EventType: models.EventOrderPaid, CouponCodes: []string{"A"}})
			},
			wantCalls: 1,
		},
		{
			name: "cancelled order with coupons",
			message: func(t *testing.T) *sarama.ConsumerMessage {
				return eventMessage(t, models.OrderEvent{OrderNumber: "ORD-1", EventType: models.EventOrderCancelled, CouponCodes: []string{"A"}})
			},
			wantCalls: 1,
		},
		{
			name: "order without coupons",
			message: func(t *testing.T) *sarama.ConsumerMessage {
				return eventMessage(t, models.OrderEvent{OrderNumber: "ORD-1", EventType: models.EventOrderPaid})
			},
			wantCalls: 0,
		},
		{
			name: "unknown event type",
			message: func(t *testing.T) *sarama.ConsumerMessage {
				return eventMessage(t, models.OrderEvent{OrderNumber: "ORD-1", EventType: "payment_success", CouponCodes: []string{"A"}})
			},
			wantCalls: 0,
		},
		{
			name: "undecodable payload",
			message: func(t *testing.T) *sarama.ConsumerMessage {
				return &sarama.ConsumerMessage{Value: []byte("{not json")}
			},
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &countingReconciler{}
			s := setupCouponSyncTest(t, r)

			err := s.handleMessage(context.Background(), tt.message(t))
			assert.NoError(t, err)
			assert.Equal(t, tt.wantCalls, r.calls.Load())
		})
	}
}

func TestCouponSync_RetriesReconcileFailures(t *testing.T) {
	r := &countingReconciler{failures: 2}
	s := setupCouponSyncTest(t, r)

	msg := eventMessage(t, models.OrderEvent{OrderNumber: "ORD-1", EventType: models.EventOrderPaid, CouponCodes: []string{"A"}})
	require.NoError(t, s.handleMessageWithRetry(context.Background(), msg))
	assert.Equal(t, int32(3), r.calls.Load())
}

func TestCouponSync_Run(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.SetTopicMetadata(map[string][]int32{"order_events": {0}})
	consumer.ExpectConsumePartition("order_events", 0, sarama.OffsetNewest).
		YieldMessage(eventMessage(t, models.OrderEvent{OrderNumber: "ORD-1", EventType: models.EventOrderCreated, CouponCodes: []string{"A"}}))

	r := &countingReconciler{done: make(chan struct{}, 1)}
	s := setupCouponSyncTest(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- s.Run(ctx, consumer, "order_events") }()

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciliation was not triggered")
	}

	cancel()
	select {
	case err := <-finished:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}
}

func TestCouponSync_RunConsumesEveryPartition(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.SetTopicMetadata(map[string][]int32{"order_events": {0, 1, 2}})
	consumer.ExpectConsumePartition("order_events", 0, sarama.OffsetNewest)
	consumer.ExpectConsumePartition("order_events", 1, sarama.OffsetNewest).
		YieldMessage(eventMessage(t, models.OrderEvent{OrderNumber: "ORD-1", EventType: models.EventOrderPaid, CouponCodes: []string{"A"}}))
	consumer.ExpectConsumePartition("order_events", 2, sarama.OffsetNewest).
		YieldMessage(eventMessage(t, models.OrderEvent{OrderNumber: "ORD-2", EventType: models.EventOrderCancelled, CouponCodes: []string{"B"}}))

	r := &countingReconciler{done: make(chan struct{}, 2)}
	s := setupCouponSyncTest(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- s.Run(ctx, consumer, "order_events") }()

	for i := 0; i < 2; i++ {
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected 2 reconciliations, got %d", r.calls.Load())
		}
	}

	cancel()
	select {
	case err := <-finished:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestCouponSync_RunUnknownTopic(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.SetTopicMetadata(map[string][]int32{"order_events": {0}})

	s := setupCouponSyncTest(t, &countingReconciler{})
	err := s.Run(context.Background(), consumer, "missing")
	assert.ErrorIs(t, err, sarama.ErrUnknownTopicOrPartition)
}
