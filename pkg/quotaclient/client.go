// Package quotaclient is the Go SDK for the genquota service. It wraps the
// quota endpoint with a local fallback cache so applications can keep
// showing a sensible counter when the service is unreachable.
//
// The fallback is advisory only. Checks degrade to the local counter;
// recording never does, because granting quota on an uncertain outcome would
// let an offline client generate forever.
package quotaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultAnonymousLimit mirrors the server's anonymous daily cap. It is only
// used to approximate remaining quota while degraded.
const DefaultAnonymousLimit = 5

// ErrQuotaExceeded is returned by Record when the server rejects the attempt
// because the daily cap is reached.
var ErrQuotaExceeded = errors.New("daily generation limit reached")

// Status is the client-side view of the caller's quota. Degraded marks
// values approximated from the local cache instead of the server.
type Status struct {
	CanGenerate          bool      `json:"canGenerate"`
	GenerationsUsed      int       `json:"generationsUsed"`
	GenerationsRemaining int       `json:"generationsRemaining"`
	ResetTime            time.Time `json:"resetTime"`
	IsAuthenticated      bool      `json:"isAuthenticated"`
	LimitType            string    `json:"limitType"`
	Degraded             bool      `json:"-"`
}

// RecordResult reports the server-confirmed state after recording.
type RecordResult struct {
	Success              bool `json:"success"`
	GenerationsUsed      int  `json:"generationsUsed"`
	GenerationsRemaining int  `json:"generationsRemaining"`
}

type quotaRequest struct {
	Action       string `json:"action"`
	Fingerprint  string `json:"fingerprint"`
	Success      bool   `json:"success,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Client talks to the quota service on behalf of one device.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	deviceID   string
	cache      *fallbackCache
	anonLimit  int
	now        func() time.Time
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken attaches a bearer credential to every request, moving the caller
// into the authenticated tier when the server can verify it.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithAnonymousLimit overrides the cap used for degraded approximations.
func WithAnonymousLimit(limit int) Option {
	return func(c *Client) { c.anonLimit = limit }
}

// WithClock overrides the client clock. Used in tests to pin the date.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client. stateDir holds the persisted device id and the
// fallback cache file.
func New(baseURL, stateDir string, opts ...Option) (*Client, error) {
	deviceID, err := DeviceID(stateDir)
	if err != nil {
		return nil, fmt.Errorf("derive device id: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		deviceID:   deviceID,
		anonLimit:  DefaultAnonymousLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = newFallbackCache(stateDir, c.now)

	return c, nil
}

// Check reports the caller's quota state. When the server is unreachable, or
// reachable but reporting its own store outage with 503, it returns the local
// cache's approximation with Degraded set instead of an error, so a flaky
// network or backend never blocks the UI.
func (c *Client) Check(ctx context.Context) (*Status, error) {
	resp, err := c.post(ctx, &quotaRequest{
		Action:      "check",
		Fingerprint: c.deviceID,
	})
	if err != nil {
		return c.degradedStatus(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return c.degradedStatus(), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quota check failed: status %d", resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode quota status: %w", err)
	}

	// Keep the fallback cache aligned with the authoritative count.
	c.cache.set(c.deviceID, status.GenerationsUsed)

	return &status, nil
}

// Record logs a completed generation attempt. It never falls back: a client
// that cannot reach the server gets an error, not free quota.
func (c *Client) Record(ctx context.Context, success bool, errorMessage string) (*RecordResult, error) {
	resp, err := c.post(ctx, &quotaRequest{
		Action:       "record",
		Fingerprint:  c.deviceID,
		Success:      success,
		ErrorMessage: errorMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		var body struct {
			GenerationsUsed int `json:"generationsUsed"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			c.cache.set(c.deviceID, body.GenerationsUsed)
		}
		return nil, ErrQuotaExceeded
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("record attempt failed: status %d", resp.StatusCode)
	}

	var result RecordResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode record result: %w", err)
	}

	c.cache.set(c.deviceID, result.GenerationsUsed)

	return &result, nil
}

// degradedStatus approximates quota state from the local counter.
func (c *Client) degradedStatus() *Status {
	used := c.cache.used(c.deviceID)
	remaining := c.anonLimit - used
	if remaining < 0 {
		remaining = 0
	}

	now := c.now().UTC()
	reset := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	return &Status{
		CanGenerate:          used < c.anonLimit,
		GenerationsUsed:      used,
		GenerationsRemaining: remaining,
		ResetTime:            reset,
		IsAuthenticated:      false,
		LimitType:            "anonymous",
		Degraded:             true,
	}
}

func (c *Client) post(ctx context.Context, body *quotaRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/quota", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fingerprint", c.deviceID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.httpClient.Do(req)
}
