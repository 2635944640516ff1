// Package payments talks to the external payment processor.
package payments

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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oggyb/muzz-engagement/internal/config"
)

var (
	// ErrChargeDeclined is a caller-fixable rejection (card declined, bad method).
	ErrChargeDeclined = errors.New("payments: charge declined")
	// ErrUnavailable means the processor could not be reached or failed internally.
	ErrUnavailable = errors.New("payments: processor unavailable")
)

// DeclineError carries the processor's reason for a decline.
type DeclineError struct {
	Reason string
}

func (e *DeclineError) Error() string {
	if e.Reason == "" {
		return ErrChargeDeclined.Error()
	}
	return fmt.Sprintf("%s: %s", ErrChargeDeclined, e.Reason)
}

func (e *DeclineError) Is(target error) bool { return target == ErrChargeDeclined }

// ChargeRequest describes one charge. IdempotencyKey is generated when empty.
type ChargeRequest struct {
	UserID          uint64
	SKU             string
	AmountCents     int64
	Currency        string
	PaymentMethodID string
	IdempotencyKey  string
}

// Charge is a successful authorization.
type Charge struct {
	ProviderTxnID string
	AmountCents   int64
	Currency      string
}

// Charger authorizes charges against the processor.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
}

// HTTPCharger posts charges to PAYMENTS_URL.
type HTTPCharger struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Charger = (*HTTPCharger)(nil)

// FromConfig returns nil when no processor is configured.
func FromConfig(cfg *config.Config) Charger {
	if cfg == nil || cfg.Payments.URL == "" {
		return nil
	}
	return NewHTTPCharger(cfg.Payments.URL, cfg.Payments.APIKey, cfg.Payments.Timeout)
}

func NewHTTPCharger(baseURL, apiKey string, timeout time.Duration) *HTTPCharger {
	return &HTTPCharger{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type chargeBody struct {
	Amount          string            `json:"amount"`
	AmountCents     int64             `json:"amountCents"`
	Currency        string            `json:"currency"`
	PaymentMethodID string            `json:"paymentMethodId"`
	Description     string            `json:"description"`
	Metadata        map[string]string `json:"metadata"`
}

type chargeResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Charge posts one charge.
//
// Behavior:
//   - 2xx with status "succeeded" → Charge.
//   - 402, 4xx, or 2xx with any other status → *DeclineError (ErrChargeDeclined).
//   - transport error or 5xx → ErrUnavailable.
func (c *HTTPCharger) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	body, err := json.Marshal(chargeBody{
		Amount:          decimal.New(req.AmountCents, -2).StringFixed(2),
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		PaymentMethodID: req.PaymentMethodID,
		Description:     req.SKU,
		Metadata: map[string]string{
			"userId": fmt.Sprint(req.UserID),
			"sku":    req.SKU,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode charge: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out chargeResponse
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &DeclineError{Reason: out.Message}
	case out.Status != "succeeded":
		return nil, &DeclineError{Reason: firstNonEmpty(out.Message, out.Status)}
	case out.ID == "":
		return nil, fmt.Errorf("%w: response missing transaction id", ErrUnavailable)
	}

	return &Charge{
		ProviderTxnID: out.ID,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
