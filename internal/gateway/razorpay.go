package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"backend/pkg/apperr"

	"github.com/rs/zerolog/log"
)

const (
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
)

// RazorpayAdapter talks to the Razorpay orders API over HTTPS and verifies
// checkout signatures with the shared key secret (HMAC-SHA256 over
// "orderID|paymentID", hex encoded).
type RazorpayAdapter struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

// NewRazorpayAdapter builds an adapter against the given API base URL
// (e.g. https://api.razorpay.com/v1) using basic-auth key credentials.
func NewRazorpayAdapter(baseURL, keyID, keySecret string) *RazorpayAdapter {
	return &RazorpayAdapter{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"` // minor units
	Currency string            `json:"currency"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

// CreateOrder posts a new order to the gateway. Transient failures (network
// errors, 5xx) are retried with exponential backoff before surfacing as
// GatewayUnavailable. 4xx responses are not retried.
func (a *RazorpayAdapter) CreateOrder(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (string, error) {
	logger := log.With().Str("component", "gateway").Logger()

	body, err := json.Marshal(createOrderRequest{
		Amount:   amountMinorUnits,
		Currency: currency,
		Notes:    metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode order request: %w", err)
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		orderID, retryable, reqErr := a.postOrder(ctx, body)
		if reqErr == nil {
			return orderID, nil
		}
		if !retryable {
			return "", reqErr
		}
		lastErr = reqErr
		logger.Warn().Err(reqErr).Int("attempt", attempt).Msg("gateway order creation failed")

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", &apperr.GatewayUnavailable{Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return "", &apperr.GatewayUnavailable{Err: lastErr}
}

// postOrder performs a single order creation attempt. The second return
// value reports whether the failure is worth retrying.
func (a *RazorpayAdapter) postOrder(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(a.keyID, a.keySecret)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", false, fmt.Errorf("gateway rejected order: status %d", resp.StatusCode)
	}

	var parsed createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("failed to decode order response: %w", err)
	}
	if parsed.ID == "" {
		return "", false, fmt.Errorf("gateway response missing order id")
	}

	return parsed.ID, false, nil
}

// VerifySignature checks the checkout confirmation signature. The expected
// value is hex(HMAC-SHA256(keySecret, orderID + "|" + paymentID)).
func (a *RazorpayAdapter) VerifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(a.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
