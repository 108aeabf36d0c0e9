package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahmet0524/pastirmaadasi-sub000/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []Message
	failTo map[string]error
	block  map[string]chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, msg Message) (string, error) {
	if ch, ok := f.block[msg.To]; ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := f.failTo[msg.To]; err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return "msg-" + msg.To, nil
}

func (f *fakeSender) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

const adminAddr = "admin@pastirma.example"

func setupDispatcherTest(t *testing.T, sender Sender) *Dispatcher {
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	return NewDispatcher(sender, "Pastirma Adasi <siparis@pastirma.example>", adminAddr, logger)
}

func confirmation(email string) OrderConfirmation {
	return OrderConfirmation{
		OrderNumber:   "ORD-2750123",
		PaymentID:     "2750123",
		PaymentMethod: models.PaymentMethodCard,
		CustomerName:  "Ayse Yilmaz",
		CustomerEmail: email,
		Items:         []models.OrderItem{{Name: "Pastirma", UnitPrice: decimal.RequireFromString("450.5"), Quantity: 2}},
		Total:         decimal.RequireFromString("901"),
	}
}

func byRecipient(deliveries []Delivery) map[string]Delivery {
	out := map[string]Delivery{}
	for _, d := range deliveries {
		out[d.Recipient] = d
	}
	return out
}

func TestDispatch_BothRecipients(t *testing.T) {
	sender := &fakeSender{}
	d := setupDispatcherTest(t, sender)

	deliveries := byRecipient(d.DispatchOrderConfirmation(context.Background(), confirmation("ayse@example.com")))

	require.NoError(t, deliveries[RecipientCustomer].Err)
	require.NoError(t, deliveries[RecipientAdmin].Err)

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		switch m.To {
		case "ayse@example.com":
			assert.Equal(t, adminAddr, m.ReplyTo)
			assert.Contains(t, m.HTMLBody, "ORD-2750123")
			assert.Contains(t, m.HTMLBody, "901.00")
		case adminAddr:
			assert.Equal(t, "ayse@example.com", m.ReplyTo)
			assert.Contains(t, m.Subject, "Ayse Yilmaz")
			assert.Contains(t, m.HTMLBody, "Pastirma")
		default:
			t.Errorf("Unexpected recipient %s", m.To)
		}
	}
}

func TestDispatch_CustomerFailureDoesNotAffectAdmin(t *testing.T) {
	sender := &fakeSender{failTo: map[string]error{"ayse@example.com": errors.New("422 validation_error")}}
	d := setupDispatcherTest(t, sender)

	deliveries := byRecipient(d.DispatchOrderConfirmation(context.Background(), confirmation("ayse@example.com")))

	assert.Error(t, deliveries[RecipientCustomer].Err)
	assert.NoError(t, deliveries[RecipientAdmin].Err)
	assert.Equal(t, "msg-"+adminAddr, deliveries[RecipientAdmin].MessageID)
}

func TestDispatch_RecipientsRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	sender := &fakeSender{block: map[string]chan struct{}{"ayse@example.com": release}}
	d := setupDispatcherTest(t, sender)

	done := make(chan []Delivery)
	go func() { done <- d.DispatchOrderConfirmation(context.Background(), confirmation("ayse@example.com")) }()

	assert.Eventually(t, func() bool {
		for _, m := range sender.messages() {
			if m.To == adminAddr {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "admin mail should not wait for the customer mail")

	close(release)
	deliveries := byRecipient(<-done)
	assert.NoError(t, deliveries[RecipientCustomer].Err)
}

func TestDispatch_InvalidCustomerEmailFallsBackToAdmin(t *testing.T) {
	sender := &fakeSender{}
	d := setupDispatcherTest(t, sender)

	deliveries := byRecipient(d.DispatchOrderConfirmation(context.Background(), confirmation("not-an-email")))
	assert.Equal(t, adminAddr, deliveries[RecipientCustomer].To)

	for _, m := range sender.messages() {
		assert.Equal(t, adminAddr, m.To)
	}
}

type panickySender struct{}

func (panickySender) Send(ctx context.Context, msg Message) (string, error) {
	panic("boom")
}

func TestDispatch_SenderPanicIsContained(t *testing.T) {
	d := setupDispatcherTest(t, panickySender{})

	deliveries := d.DispatchOrderConfirmation(context.Background(), confirmation("ayse@example.com"))
	for _, dl := range deliveries {
		require.Error(t, dl.Err)
		assert.True(t, strings.Contains(dl.Err.Error(), "panicked"))
	}
}

func TestSendTracking(t *testing.T) {
	sender := &fakeSender{}
	d := setupDispatcherTest(t, sender)

	_, err := d.SendTracking(context.Background(), TrackingNotice{
		OrderNumber:    "ORD-1",
		CustomerEmail:  "ayse@example.com",
		TrackingNumber: "TR123",
		TrackingURL:    "https://kargo.example/TR123",
	})
	require.NoError(t, err)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].HTMLBody, "TR123")
	assert.Contains(t, msgs[0].HTMLBody, "Değerli Müşterimiz")

	_, err = d.SendTracking(context.Background(), TrackingNotice{OrderNumber: "ORD-1", CustomerEmail: "bad"})
	assert.Error(t, err)
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail(" ayse@example.com "))
	assert.False(t, ValidEmail(""))
	assert.False(t, ValidEmail("ayse@localhost"))
	assert.False(t, ValidEmail("a b@example.com"))
}

func TestNewResendSender_RequiresKey(t *testing.T) {
	_, err := NewResendSender("")
	assert.Error(t, err)

	s, err := NewResendSender("re_test")
	require.NoError(t, err)
	assert.NotNil(t, s)
}
