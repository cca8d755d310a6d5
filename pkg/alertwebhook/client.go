package alertwebhook

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

	"github.com/cenkalti/backoff/v4"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the request
// body, keyed by the tenant's webhook secret, so the receiver can
// verify the delivery originated from this deployment.
const SignatureHeader = "X-AgentLens-Signature"

// Client delivers a single webhook payload with retry.
type Client struct {
	httpClient *http.Client
	maxRetries uint64
	timeout    time.Duration
}

// NewClient builds a Client. timeout bounds each individual HTTP
// attempt; maxRetries bounds how many retries (after the first
// attempt) exponential backoff makes before giving up.
func NewClient(timeout time.Duration, maxRetries int) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
		timeout:    timeout,
	}
}

// Deliver POSTs payload as JSON to url, signed with secret (if
// non-empty), retrying transient failures (network errors, 5xx, 429)
// with exponential backoff. 4xx responses other than 429 are treated
// as permanent and not retried.
func (c *Client) Deliver(ctx context.Context, url, secret string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alertwebhook: marshal payload: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("alertwebhook: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if secret != "" {
			req.Header.Set(SignatureHeader, "sha256="+sign(body, secret))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err // network errors are retryable
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("alertwebhook: delivery failed with status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("alertwebhook: delivery rejected with status %d", resp.StatusCode))
		}
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

// sign returns the hex-encoded HMAC-SHA256 of body keyed by secret.
func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
