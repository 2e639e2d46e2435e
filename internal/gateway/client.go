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

	"kart-reconciler/internal/model"
	"kart-reconciler/internal/telemetry"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	statusPath           = "/v1/transactions/status"
	defaultPaymentMethod = "Mobile Money"
	maxResponseBytes     = 1 << 20
)

// Options configures the HTTP client.
type Options struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration // per attempt
	MaxRetry        time.Duration // total budget across attempts
	DefaultCurrency string
}

type httpClient struct {
	opts    Options
	http    *http.Client
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

// NewClient creates a Client talking to the provider's status endpoint.
func NewClient(opts Options, metrics *telemetry.Metrics, logger zerolog.Logger) Client {
	return NewClientWithHTTP(opts, &http.Client{
		Timeout:   opts.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, metrics, logger)
}

// NewClientWithHTTP creates a Client using the provided *http.Client.
func NewClientWithHTTP(opts Options, hc *http.Client, metrics *telemetry.Metrics, logger zerolog.Logger) Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &httpClient{
		opts:    opts,
		http:    hc,
		metrics: metrics,
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

type statusRequest struct {
	TransactionID string `json:"transactionId"`
}

type statusResponse struct {
	TransactionID string           `json:"transactionId"`
	Status        string           `json:"status"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
	PaymentMethod string           `json:"paymentMethod"`
	Source        string           `json:"source"`
	Data          json.RawMessage  `json:"data"`
}

// Verify posts the transaction id to the status endpoint, retrying transport
// failures, 5xx and 429 responses with exponential backoff until MaxRetry
// elapses.
func (c *httpClient) Verify(ctx context.Context, transactionID string) (*Verification, error) {
	start := time.Now()

	body, err := json.Marshal(statusRequest{TransactionID: transactionID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode status request: %w", err)
	}

	budget := c.opts.MaxRetry
	if budget <= 0 {
		budget = c.opts.Timeout
	}

	// The whole verification, including the last attempt, ends within budget.
	attemptCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = budget

	var raw []byte
	attempt := 0
	operation := func() error {
		attempt++
		data, err := c.post(attemptCtx, body)
		if err != nil {
			return err
		}
		raw = data
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().
			Err(err).
			Str("transaction_id", transactionID).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("gateway verification attempt failed")
	}

	err = backoff.RetryNotify(operation, backoff.WithContext(policy, attemptCtx), notify)
	if err != nil {
		c.metrics.RecordVerify(ctx, time.Since(start), "error")

		if errors.Is(err, model.ErrPaymentUnverified) {
			c.logger.Warn().Err(err).Str("transaction_id", transactionID).Msg("transaction unknown to gateway")
			return nil, err
		}

		c.logger.Error().
			Err(err).
			Str("transaction_id", transactionID).
			Int("attempts", attempt).
			Msg("gateway verification failed")
		return nil, model.ErrGatewayUnavailable.WithCause("payment gateway verification failed", err)
	}

	v, err := c.decode(transactionID, raw)
	if err != nil {
		c.metrics.RecordVerify(ctx, time.Since(start), "error")
		return nil, err
	}

	c.metrics.RecordVerify(ctx, time.Since(start), strings.ToLower(string(v.Status)))

	c.logger.Info().
		Str("transaction_id", transactionID).
		Str("status", string(v.Status)).
		Str("amount", v.Amount.String()).
		Int("attempts", attempt).
		Dur("elapsed", time.Since(start)).
		Msg("gateway verification completed")

	return v, nil
}

// post performs one attempt. Errors wrapped in backoff.Permanent are not retried.
func (c *httpClient) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+statusPath, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build status request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, backoff.Permanent(model.ErrPaymentUnverified.WithMessage(
			fmt.Sprintf("gateway does not know the transaction (status %d)", resp.StatusCode)))
	default:
		return nil, backoff.Permanent(fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}
}

func (c *httpClient) decode(transactionID string, raw []byte) (*Verification, error) {
	var resp statusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Error().Err(err).Str("transaction_id", transactionID).Msg("failed to decode gateway response")
		return nil, model.ErrGatewayUnavailable.WithCause("payment gateway returned an unreadable response", err)
	}

	v := &Verification{
		TransactionID: transactionID,
		Status:        Status(strings.ToUpper(strings.TrimSpace(resp.Status))),
		Currency:      resp.Currency,
		PaymentMethod: resp.PaymentMethod,
		Data:          decodeData(resp.Data),
		Raw:           raw,
	}

	if resp.TransactionID != "" && resp.TransactionID != transactionID {
		c.logger.Error().
			Str("transaction_id", transactionID).
			Str("reported_transaction_id", resp.TransactionID).
			Msg("gateway answered for a different transaction")
		return nil, model.ErrPaymentUnverified.WithMessage("gateway answered for a different transaction")
	}

	if resp.Amount != nil {
		v.Amount = *resp.Amount
	}
	if v.Currency == "" {
		v.Currency = c.opts.DefaultCurrency
	}
	if v.PaymentMethod == "" {
		v.PaymentMethod = resp.Source
	}
	if v.PaymentMethod == "" {
		v.PaymentMethod = defaultPaymentMethod
	}

	if v.Verified() && (resp.Amount == nil || v.Amount.IsNegative()) {
		return nil, model.ErrPaymentUnverified.WithMessage("gateway reported success without a valid amount")
	}

	return v, nil
}

// decodeData accepts the data field either as a JSON string holding the
// payload or as an embedded JSON value.
func decodeData(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}
