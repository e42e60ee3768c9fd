// Package processor is the pooled HTTP client to the two downstream
// payment processors.
package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/rinha/payment-intermediary/internal/types"
)

// Outcome classifies a processor's response to a submitted payment.
type Outcome int

const (
	Success Outcome = iota
	Transient
	Permanent
	Duplicate
)

const (
	connectTimeout = 1 * time.Second
	requestTimeout = 2 * time.Second
)

// Client talks to one downstream processor over a keep-alive connection
// pool bounded to maxInFlight concurrent requests.
type Client struct {
	baseURL string
	http    *http.Client
	inFlight chan struct{}
}

// New builds a Client for baseURL with a connection pool and an in-flight
// cap sized to maxInFlight (typically the worker count).
func New(baseURL string, maxInFlight int) *Client {
	transport := &http.Transport{
		MaxIdleConns:        maxInFlight * 2,
		MaxIdleConnsPerHost: maxInFlight * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
		inFlight: make(chan struct{}, maxInFlight),
	}
}

type paymentRequest struct {
	CorrelationID string `json:"correlationId"`
	Amount        types.Cents `json:"amount"`
	RequestedAt   string `json:"requestedAt"`
}

// Submit POSTs payment to this processor and classifies the response: 2xx
// is Success; a 422 on a duplicate correlationId is treated as Success
// (Duplicate); other 4xx is Permanent; 5xx, timeouts and connection errors
// are Transient.
func (c *Client) Submit(ctx context.Context, p types.Payment) (Outcome, error) {
	c.inFlight <- struct{}{}
	defer func() { <-c.inFlight }()

	body, err := sonic.ConfigFastest.Marshal(paymentRequest{
		CorrelationID: p.CorrelationID,
		Amount:        types.Cents(p.AmountCents),
		RequestedAt:   p.RequestedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return Transient, fmt.Errorf("processor: marshal payment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return Transient, fmt.Errorf("processor: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.http.Do(req)
	if err != nil {
		return Transient, fmt.Errorf("processor: request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Success, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return Duplicate, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Permanent, fmt.Errorf("processor: permanent failure, status %d", resp.StatusCode)
	default:
		return Transient, fmt.Errorf("processor: transient failure, status %d", resp.StatusCode)
	}
}

type healthResponse struct {
	Failing         bool `json:"failing"`
	MinResponseTime int  `json:"minResponseTime"`
}

// Health queries /payments/service-health. Callers are responsible for
// rate-limiting this to at most once every five seconds, the downstream
// processor's own rate limit on this endpoint.
func (c *Client) Health(ctx context.Context) (failing bool, minResponseTime int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/service-health", nil)
	if err != nil {
		return false, 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return true, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return false, 0, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return true, 0, fmt.Errorf("processor: health check status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, 0, err
	}
	var h healthResponse
	if err := sonic.ConfigFastest.Unmarshal(raw, &h); err != nil {
		return true, 0, err
	}
	return h.Failing, h.MinResponseTime, nil
}

var errRateLimited = fmt.Errorf("processor: health check rate-limited")

// ErrRateLimited reports whether err is the downstream's 429 response.
func ErrRateLimited(err error) bool { return err == errRateLimited }
