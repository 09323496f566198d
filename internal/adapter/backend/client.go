// Package backend implements domain.BackendClient against the device API of
// a Selene compatible identity backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"devicepair/internal/domain"
	"devicepair/internal/infra/config"
	"devicepair/internal/infra/metrics"
	"devicepair/internal/infra/tracer"
)

const maxResponseBody = 1 << 20

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// DeviceInfo is the metadata sent on activation and attribute reports.
type DeviceInfo struct {
	CoreVersion      string `json:"coreVersion"`
	Platform         string `json:"platform"`
	PlatformBuild    string `json:"platform_build"`
	EnclosureVersion string `json:"enclosureVersion"`
}

// Client talks to the backend device endpoints. Every request waits on a
// token bucket and runs through a circuit breaker. Pending activations do
// not count as breaker failures.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	version string

	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	creds   domain.CredentialStore
	device  DeviceInfo
	logger  *slog.Logger
}

// New creates a Client. creds supplies the access token for attribute
// reports and may be nil when reports are not needed.
func New(cfg config.BackendConfig, device DeviceInfo, creds domain.CredentialStore, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	version := cfg.Version
	if version == "" {
		version = "v1"
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL: normalizeURL(cfg.URL),
		version: version,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		creds:   creds,
		device:  device,
		logger:  logger,
	}
	if cfg.CircuitBreaker.Enabled {
		c.breaker = newBreaker(cfg.CircuitBreaker, logger)
	}
	return c
}

func newBreaker(cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if to == gobreaker.StateOpen {
				metrics.BackendCircuitTrips.Inc()
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrActivationPending)
		},
	})
}

// SetBaseURL implements domain.BackendClient.
func (c *Client) SetBaseURL(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = normalizeURL(u)
}

// BaseURL returns the current backend root.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// IssueCode implements domain.BackendClient.
func (c *Client) IssueCode(ctx context.Context, stateUUID string) (*domain.PairingCode, error) {
	ctx, span := tracer.StartSpan(ctx, "backend.issue_code")
	defer span.End()

	body, err := c.do(ctx, http.MethodGet, "/device/code?state="+url.QueryEscape(stateUUID), nil, "")
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var resp codeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal code response: %w", err)
	}
	if resp.Code == "" {
		err := fmt.Errorf("%w: empty pairing code", domain.ErrProviderError)
		tracer.RecordError(span, err)
		return nil, err
	}
	return &domain.PairingCode{Code: resp.Code, Token: resp.Token}, nil
}

// Activate implements domain.BackendClient. An unauthorized reply means the
// code has not been entered yet.
func (c *Client) Activate(ctx context.Context, stateUUID, token string) (*domain.DeviceCredentials, error) {
	ctx, span := tracer.StartSpan(ctx, "backend.activate")
	defer span.End()

	payload, err := json.Marshal(activateRequest{
		State:      stateUUID,
		Token:      token,
		DeviceInfo: c.device,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal activation: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/device/activate", payload, "")
	if err != nil {
		if !errors.Is(err, domain.ErrActivationPending) {
			tracer.RecordError(span, err)
		}
		return nil, err
	}

	var resp activateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal activation: %w", err)
	}
	creds := resp.credentials(time.Now())
	if !creds.Valid() {
		err := fmt.Errorf("%w: incomplete credentials", domain.ErrProviderError)
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.StringAttr("device.uuid", creds.UUID))
	return creds, nil
}

// ReportDeviceAttributes implements domain.BackendClient.
func (c *Client) ReportDeviceAttributes(ctx context.Context) error {
	ctx, span := tracer.StartSpan(ctx, "backend.report_attributes")
	defer span.End()

	if c.creds == nil {
		return fmt.Errorf("report attributes: %w", domain.ErrCredentialsNotFound)
	}
	creds, err := c.creds.Load(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("report attributes: %w", err)
	}

	payload, err := json.Marshal(c.device)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	if _, err := c.do(ctx, http.MethodPatch, "/device/"+url.PathEscape(creds.UUID), payload, creds.AccessToken); err != nil {
		tracer.RecordError(span, err)
		return err
	}
	return nil
}

// do sends one request and returns the response body for 2xx replies.
func (c *Client) do(ctx context.Context, method, path string, body []byte, bearer string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	call := func() ([]byte, error) {
		return c.send(ctx, method, path, body, bearer)
	}
	if c.breaker == nil {
		return call()
	}
	resp, err := c.breaker.Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: backend circuit open: %w", domain.ErrProviderError, err)
	}
	return resp, err
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, bearer string) ([]byte, error) {
	c.mu.RLock()
	endpoint := c.baseURL + "/" + c.version + path
	c.mu.RUnlock()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, mapHTTPError(path, resp.StatusCode, respBody)
	}

	c.logger.Debug("backend request completed", "method", method, "path", strings.SplitN(path, "?", 2)[0], "status", resp.StatusCode)
	return respBody, nil
}

// mapHTTPError maps a non-2xx reply to a domain error.
func mapHTTPError(path string, status int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusUnauthorized && path == "/device/activate":
		return domain.ErrActivationPending
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	default:
		return fmt.Errorf("%w: %s", domain.ErrProviderError, detail)
	}
}

func normalizeURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u != "" && !strings.Contains(u, "://") {
		u = "https://" + u
	}
	return u
}

// --- wire types ---

type codeResponse struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

type activateRequest struct {
	State string `json:"state"`
	Token string `json:"token"`
	DeviceInfo
}

type activateResponse struct {
	UUID         string `json:"uuid"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// Expiration is the token lifetime in seconds.
	Expiration float64 `json:"expiration"`
}

func (r activateResponse) credentials(now time.Time) *domain.DeviceCredentials {
	return &domain.DeviceCredentials{
		UUID:         r.UUID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(r.Expiration * float64(time.Second))),
	}
}

var _ domain.BackendClient = (*Client)(nil)
