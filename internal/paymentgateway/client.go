package paymentgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	gatewaytypes "github.com/frahmantamala/coaching-payments/internal/core/datamodel/paymentgateway"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultRetryMax     = 2
	defaultRetryWaitMax = 5 * time.Second
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrNotConfigured   = errors.New("payment gateway credentials are not configured")
)

type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	RetryMax  int
}

// Client reads checkout sessions from the payment gateway REST API.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	logger    *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryMax := config.RetryMax
	if retryMax <= 0 {
		retryMax = defaultRetryMax
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = defaultRetryWaitMax
	retryClient.HTTPClient.Timeout = timeout
	retryClient.Logger = nil
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err == nil && resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return true, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	return &Client{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		secretKey: config.SecretKey,
		http:      retryClient.StandardClient(),
		logger:    logger,
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.secretKey) != ""
}

// RetrieveSession fetches a checkout session, expanding the given nested
// objects (for example the payment intent).
func (c *Client) RetrieveSession(ctx context.Context, sessionID string, expand ...string) (*gatewaytypes.Session, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	query := url.Values{}
	for _, e := range expand {
		query.Add("expand[]", e)
	}
	endpoint := fmt.Sprintf("%s/v1/checkout/sessions/%s", c.baseURL, url.PathEscape(sessionID))
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("retrieving checkout session", "session_id", sessionID, "expand", expand)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	case resp.StatusCode != http.StatusOK:
		var apiErr gatewaytypes.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var session gatewaytypes.Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}

	c.logger.Info("checkout session retrieved",
		"session_id", session.ID,
		"amount_total", session.AmountTotal,
		"payment_status", session.PaymentStatus)

	return &session, nil
}
