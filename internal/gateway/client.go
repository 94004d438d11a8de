package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"interview-service/internal/util"

	"go.uber.org/zap"
)

// Gateway wraps the external payment processor's money-moving operations.
// Every call takes an idempotency key; the processor guarantees at most one
// effect per key, so a retried call with the same key is safe.
type Gateway interface {
	Charge(ctx context.Context, amountCents int64, source, idempotencyKey string) (string, error)
	Refund(ctx context.Context, paymentIntentID string, amountCents int64, idempotencyKey string) (string, error)
	Transfer(ctx context.Context, destinationAccountID string, amountCents int64, idempotencyKey string) (string, error)
}

// UnknownOutcomeError indicates the gateway call timed out: the processor
// may or may not have moved the money. Callers must route this to the
// reconciliation path, never treat it as a plain failure.
type UnknownOutcomeError struct {
	Operation string
	Err       error
}

func (e *UnknownOutcomeError) Error() string {
	return fmt.Sprintf("gateway %s outcome unknown: %v", e.Operation, e.Err)
}

func (e *UnknownOutcomeError) Unwrap() error { return e.Err }

// IsUnknownOutcome reports whether the error means the gateway call's effect
// is undetermined.
func IsUnknownOutcome(err error) bool {
	var u *UnknownOutcomeError
	return errors.As(err, &u)
}

// Client is an HTTP client for the payment processor's REST API
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a gateway client with a bounded request timeout
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  util.GetLogger(),
	}
}

type chargeRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Source      string `json:"source"`
}

type refundRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	AmountCents     int64  `json:"amount_cents"`
}

type transferRequest struct {
	DestinationAccountID string `json:"destination_account_id"`
	AmountCents          int64  `json:"amount_cents"`
}

type gatewayResponse struct {
	ID string `json:"id"`
}

// Charge creates a payment intent for a session booking. The booking flow
// itself settles payment client-side; this exists for server-initiated
// charges.
func (c *Client) Charge(ctx context.Context, amountCents int64, source, idempotencyKey string) (string, error) {
	return c.post(ctx, "charge", "/v1/charges", chargeRequest{
		AmountCents: amountCents,
		Source:      source,
	}, idempotencyKey)
}

// Refund refunds part or all of a settled charge
func (c *Client) Refund(ctx context.Context, paymentIntentID string, amountCents int64, idempotencyKey string) (string, error) {
	return c.post(ctx, "refund", "/v1/refunds", refundRequest{
		PaymentIntentID: paymentIntentID,
		AmountCents:     amountCents,
	}, idempotencyKey)
}

// Transfer moves funds to an interviewer's connected account
func (c *Client) Transfer(ctx context.Context, destinationAccountID string, amountCents int64, idempotencyKey string) (string, error) {
	return c.post(ctx, "transfer", "/v1/transfers", transferRequest{
		DestinationAccountID: destinationAccountID,
		AmountCents:          amountCents,
	}, idempotencyKey)
}

func (c *Client) post(ctx context.Context, operation, path string, payload interface{}, idempotencyKey string) (string, error) {
	ctx, span := util.StartSpan(ctx, fmt.Sprintf("Gateway.%s", operation))
	defer span.End()

	start := time.Now()
	defer func() {
		util.GatewayCallLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// A timed-out request may still have been executed by the
		// processor. That is an unknown outcome, not a failure.
		if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
			util.GatewayCallsTotal.WithLabelValues(operation, "timeout").Inc()
			return "", &UnknownOutcomeError{Operation: operation, Err: err}
		}
		util.GatewayCallsTotal.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("gateway %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		util.GatewayCallsTotal.WithLabelValues(operation, "rejected").Inc()
		return "", fmt.Errorf("gateway %s returned status %d", operation, resp.StatusCode)
	}

	var out gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode %s response: %w", operation, err)
	}

	util.GatewayCallsTotal.WithLabelValues(operation, "ok").Inc()
	c.logger.Info("Gateway call confirmed",
		zap.String("operation", operation),
		zap.String("external_id", out.ID))

	return out.ID, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
