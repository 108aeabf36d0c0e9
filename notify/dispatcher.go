package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ahmet0524/pastirmaadasi-sub000/middleware"
	"github.com/ahmet0524/pastirmaadasi-sub000/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	RecipientCustomer = "customer"
	RecipientAdmin    = "admin"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

type OrderConfirmation struct {
	OrderNumber   string
	PaymentID     string
	PaymentMethod models.PaymentMethod
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Address       string
	Items         []models.OrderItem
	Total         decimal.Decimal
}

// Delivery is the outcome for one recipient.
type Delivery struct {
	Recipient string
	To        string
	MessageID string
	Err       error
}

type Dispatcher struct {
	sender     Sender
	from       string
	adminEmail string
	logger     *zap.Logger
}

func NewDispatcher(sender Sender, from, adminEmail string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, from: from, adminEmail: adminEmail, logger: logger}
}

// DispatchOrderConfirmation sends the customer and admin mails concurrently.
// A failed recipient never affects the other; failures are logged and
// returned, never panicked or propagated as an error.
func (d *Dispatcher) DispatchOrderConfirmation(ctx context.Context, oc OrderConfirmation) []Delivery {
	traceID := middleware.GetTraceID(ctx)

	customerTo := strings.TrimSpace(oc.CustomerEmail)
	if !ValidEmail(customerTo) {
		d.logger.Warn("Customer email invalid, falling back to admin address",
			zap.String("trace_id", traceID),
			zap.String("order_number", oc.OrderNumber),
		)
		customerTo = d.adminEmail
	}
	data := struct {
		OrderConfirmation
		Total string
	}{oc, oc.Total.StringFixed(2)}

	deliveries := []Delivery{
		{Recipient: RecipientCustomer, To: customerTo},
		{Recipient: RecipientAdmin, To: d.adminEmail},
	}
	messages := []func() (Message, error){
		func() (Message, error) {
			body, err := render(customerTemplate, data)
			return Message{
				From:     d.from,
				To:       customerTo,
				ReplyTo:  d.adminEmail,
				Subject:  fmt.Sprintf("Siparişiniz Alındı - #%s", oc.OrderNumber),
				HTMLBody: body,
			}, err
		},
		func() (Message, error) {
			body, err := render(adminTemplate, data)
			return Message{
				From:     d.from,
				To:       d.adminEmail,
				ReplyTo:  customerTo,
				Subject:  fmt.Sprintf("Yeni Sipariş - %s - %s₺", oc.CustomerName, data.Total),
				HTMLBody: body,
			}, err
		},
	}

	var wg sync.WaitGroup
	for i := range deliveries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			deliveries[i].MessageID, deliveries[i].Err = d.send(ctx, messages[i])
		}(i)
	}
	wg.Wait()

	for _, dl := range deliveries {
		if dl.Err != nil {
			middleware.RecordNotificationSent(dl.Recipient, "failed")
			d.logger.Error("Notification failed",
				zap.String("trace_id", traceID),
				zap.String("order_number", oc.OrderNumber),
				zap.String("recipient", dl.Recipient),
				zap.Error(dl.Err),
			)
			continue
		}
		middleware.RecordNotificationSent(dl.Recipient, "sent")
		d.logger.Info("Notification sent",
			zap.String("trace_id", traceID),
			zap.String("order_number", oc.OrderNumber),
			zap.String("recipient", dl.Recipient),
			zap.String("message_id", dl.MessageID),
		)
	}
	return deliveries
}

func (d *Dispatcher) send(ctx context.Context, build func() (Message, error)) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	msg, err := build()
	if err != nil {
		return "", fmt.Errorf("failed to render message: %w", err)
	}
	return d.sender.Send(ctx, msg)
}

type TrackingNotice struct {
	OrderNumber    string
	CustomerName   string
	CustomerEmail  string
	TrackingNumber string
	TrackingURL    string
}

func (d *Dispatcher) SendTracking(ctx context.Context, n TrackingNotice) (string, error) {
	if !ValidEmail(n.CustomerEmail) {
		return "", fmt.Errorf("invalid customer email %q", n.CustomerEmail)
	}
	if n.CustomerName == "" {
		n.CustomerName = "Değerli Müşterimiz"
	}
	id, err := d.send(ctx, func() (Message, error) {
		body, err := render(trackingTemplate, n)
		return Message{
			From:     d.from,
			To:       strings.TrimSpace(n.CustomerEmail),
			ReplyTo:  d.adminEmail,
			Subject:  fmt.Sprintf("Kargoya Verildi - Sipariş #%s", n.OrderNumber),
			HTMLBody: body,
		}, err
	})
	status := "sent"
	if err != nil {
		status = "failed"
	}
	middleware.RecordNotificationSent("tracking", status)
	return id, err
}
