package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ahmet0524/pastirmaadasi-sub000/circuitbreaker"
	"github.com/ahmet0524/pastirmaadasi-sub000/middleware"
	"github.com/ahmet0524/pastirmaadasi-sub000/models"
	"github.com/ahmet0524/pastirmaadasi-sub000/signature"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	InitializePath = "/payment/iyzipos/checkoutform/initialize/auth/ecom"
	RetrievePath   = "/payment/iyzipos/checkoutform/auth/ecom/detail"

	statusSuccess        = "success"
	paymentStatusSuccess = "SUCCESS"

	maxResponseBytes = 1 << 20
)

type Config struct {
	BaseURL             string
	APIKey              string
	SecretKey           string
	CallbackURL         string
	Locale              string
	Currency            string
	EnabledInstallments []int
	MaxAttempts         int
	BaseBackoff         time.Duration
	MaxBackoff          time.Duration
	Timeout             time.Duration
}

type Client struct {
	cfg        Config
	signer     *signature.Signer
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	signer, err := signature.NewSigner(cfg.APIKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.Locale == "" {
		cfg.Locale = "tr"
	}
	if cfg.Currency == "" {
		cfg.Currency = "TRY"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		cfg:        cfg,
		signer:     signer,
		httpClient: httpClient,
		breaker:    circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
		logger:     logger,
		sleep:      sleepContext,
	}, nil
}

// Initialize opens a hosted checkout form for draft and returns its page URL
// and the correlation token used later by Retrieve.
func (c *Client) Initialize(ctx context.Context, draft DraftOrder) (*Checkout, error) {
	ctx, span := otel.Tracer("payment-gateway").Start(ctx, "Initialize")
	defer span.End()

	if len(draft.Items) == 0 {
		return nil, &RejectedError{Message: "basket is empty"}
	}
	basketID := draft.BasketID
	if basketID == "" {
		basketID = uuid.NewString()
	}

	var resp initializeResponse
	build := func(conversationID string) any {
		return c.initializeRequest(conversationID, basketID, draft)
	}
	if err := c.call(ctx, "initialize", InitializePath, build, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if resp.Status != statusSuccess {
		err := &RejectedError{Code: resp.ErrorCode, Message: resp.ErrorMessage}
		if err.Message == "" {
			err.Message = "payment could not be initialized"
		}
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("conversation.id", resp.ConversationID))
	return &Checkout{
		PaymentPageURL: resp.PaymentPageURL,
		Token:          resp.Token,
		ConversationID: resp.ConversationID,
	}, nil
}

// Retrieve asks the processor for the verdict on token. A reply the
// processor answered is always returned as a verdict, failures included;
// the error is reserved for transport and credential problems.
func (c *Client) Retrieve(ctx context.Context, token string) (models.PaymentVerdict, error) {
	ctx, span := otel.Tracer("payment-gateway").Start(ctx, "Retrieve")
	defer span.End()

	var resp retrieveResponse
	build := func(conversationID string) any {
		return retrieveRequest{Locale: c.cfg.Locale, ConversationID: conversationID, Token: token}
	}
	if err := c.call(ctx, "retrieve", RetrievePath, build, &resp); err != nil {
		span.RecordError(err)
		return models.PaymentVerdict{}, err
	}

	verdict := classify(resp)
	span.SetAttributes(
		attribute.String("payment.outcome", string(verdict.Outcome)),
		attribute.String("payment.id", verdict.PaymentID),
	)
	return verdict, nil
}

// classify requires both the top-level status and the payment status to
// report success. Either alone is not enough: the overall call can succeed
// while the payment leg (e.g. 3-D Secure) failed.
func classify(resp retrieveResponse) models.PaymentVerdict {
	outcome := models.PaymentOutcomeFailure
	if resp.Status == statusSuccess && strings.EqualFold(resp.PaymentStatus, paymentStatusSuccess) {
		outcome = models.PaymentOutcomeSuccess
	}

	verdict := models.PaymentVerdict{
		Outcome:        outcome,
		PaymentID:      resp.PaymentID,
		PaidAmount:     resp.PaidPrice.Decimal,
		RawStatus:      resp.Status,
		PaymentStatus:  resp.PaymentStatus,
		ConversationID: resp.ConversationID,
		BasketID:       resp.BasketID,
		ErrorCode:      resp.ErrorCode,
		ErrorMessage:   resp.ErrorMessage,
		Buyer:          retrievedCustomer(resp),
	}
	for _, item := range resp.BasketItems {
		verdict.BasketItems = append(verdict.BasketItems, models.OrderItem{Name: item.Name, UnitPrice: item.Price, Quantity: 1})
	}
	return verdict
}

// retrievedCustomer flattens the buyer and shipping address echoed by the
// processor. The shipping address wins over the registration address.
func retrievedCustomer(resp retrieveResponse) models.Customer {
	var c models.Customer
	city := ""
	if b := resp.Buyer; b != nil {
		c.Name = strings.TrimSpace(b.Name + " " + b.Surname)
		c.Email = strings.TrimSpace(b.Email)
		c.Phone = b.GSMNumber
		c.Address = b.RegistrationAddress
		city = b.City
	}
	if a := resp.ShippingAddr; a != nil && a.Address != "" {
		c.Address = a.Address
		city = a.City
	}
	if c.Address != "" && city != "" {
		c.Address += ", " + city
	}
	return c
}

func (c *Client) initializeRequest(conversationID, basketID string, draft DraftOrder) initializeRequest {
	price := draft.Price()
	paidPrice := draft.PaidPrice
	if paidPrice.IsZero() {
		paidPrice = price
	}

	b := draft.Buyer
	buyerID := b.ID
	if buyerID == "" {
		buyerID = "BY" + basketID
	}
	contact := strings.TrimSpace(b.Name + " " + b.Surname)

	shipping := toWireAddress(draft.ShippingAddress, contact)
	billing := shipping
	if draft.BillingAddress != nil {
		billing = toWireAddress(*draft.BillingAddress, contact)
	}

	registration := b.Address
	if registration == "" {
		registration = shipping.Address
	}
	city := b.City
	if city == "" {
		city = shipping.City
	}
	country := b.Country
	if country == "" {
		country = shipping.Country
	}

	items := make([]wireBasketItem, len(draft.Items))
	for i, item := range draft.Items {
		id := item.ID
		if id == "" {
			id = fmt.Sprintf("ITEM%d", i+1)
		}
		items[i] = wireBasketItem{
			ID:        id,
			Name:      item.Name,
			Category1: item.Category,
			ItemType:  "PHYSICAL",
			Price:     item.Price.StringFixed(2),
		}
	}

	return initializeRequest{
		Locale:              c.cfg.Locale,
		ConversationID:      conversationID,
		Price:               price.StringFixed(2),
		PaidPrice:           paidPrice.StringFixed(2),
		Currency:            c.cfg.Currency,
		BasketID:            basketID,
		PaymentGroup:        "PRODUCT",
		CallbackURL:         c.cfg.CallbackURL,
		EnabledInstallments: c.cfg.EnabledInstallments,
		Buyer: wireBuyer{
			ID:                  buyerID,
			Name:                b.Name,
			Surname:             b.Surname,
			GSMNumber:           b.GSMNumber,
			Email:               b.Email,
			IdentityNumber:      b.IdentityNumber,
			RegistrationAddress: registration,
			IP:                  b.IP,
			City:                city,
			Country:             country,
			ZipCode:             b.ZipCode,
		},
		ShippingAddress: shipping,
		BillingAddress:  billing,
		BasketItems:     items,
	}
}

func toWireAddress(a Address, fallbackContact string) wireAddress {
	contact := a.ContactName
	if contact == "" {
		contact = fallbackContact
	}
	return wireAddress{
		ContactName: contact,
		City:        a.City,
		Country:     a.Country,
		Address:     a.Address,
		ZipCode:     a.ZipCode,
	}
}

// call sends one logical request with bounded exponential backoff. Every
// attempt gets a new conversation id, a new nonce and its own serialization.
func (c *Client) call(ctx context.Context, endpoint, path string, build func(conversationID string) any, out any) error {
	var lastErr error
	attempts := 0

	for attempts < c.cfg.MaxAttempts {
		attempts++

		err := c.breaker.Execute(ctx, func() error {
			return c.send(ctx, path, build(uuid.NewString()), out)
		}, isTransient)
		if err == nil {
			middleware.RecordGatewayCall(endpoint, "ok")
			return nil
		}

		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			middleware.RecordGatewayCall(endpoint, "circuit_open")
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		if !isTransient(err) && ctx.Err() == nil {
			middleware.RecordGatewayCall(endpoint, "error")
			return err
		}

		lastErr = err
		middleware.RecordGatewayCall(endpoint, "transient")
		if ctx.Err() != nil || attempts == c.cfg.MaxAttempts {
			break
		}

		backoff := c.backoff(attempts)
		c.logger.Warn("Retrying payment gateway call",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := c.sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
	}

	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrUnreachable, endpoint, attempts, lastErr)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BaseBackoff << (attempt - 1)
	if d > c.cfg.MaxBackoff || d <= 0 {
		return c.cfg.MaxBackoff
	}
	return d
}

func (c *Client) send(ctx context.Context, path string, payload any, out any) error {
	// Serialize once; the signature covers these exact bytes.
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	signed, err := c.signer.SignBody(body)
	if err != nil {
		return err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(signed.Body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.signer.AuthorizationHeader(signed))
	req.Header.Set("x-iyzi-rnd", signed.Nonce)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transientError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &transientError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrSignature, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &transientError{err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
