// Package gateway is the HTTP client of the backend payment service.
//
// The service exposes two operations: initiating a payment and querying its
// status. Every failure, including transport and decode failures, surfaces as
// a single *Error carrying a message that can be shown to the payer.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"payflow/pkg/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 1 << 20

// StatusQuerier queries the status of one transaction.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, transactionID string) (*StatusResponse, error)
}

// Gateway is the remote payment service.
type Gateway interface {
	StatusQuerier
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL of the payment service, e.g. https://api.example.com/api/v1
	BaseURL string
	// Timeout per request (default: 30s). Ignored when HTTPClient is set.
	Timeout time.Duration
	// BearerToken is sent as Authorization when non-empty
	BearerToken string
	UserAgent   string
	HTTPClient  *http.Client
}

// Client implements Gateway over HTTP.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
	logger    *logging.Logger
}

// NewClient creates a Client. BaseURL must be an absolute http(s) URL.
func NewClient(config ClientConfig) (*Client, error) {
	u, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("gateway: base url must be absolute http(s), got %q", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if config.UserAgent == "" {
		config.UserAgent = "payflow"
	}

	return &Client{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		token:     config.BearerToken,
		userAgent: config.UserAgent,
		http:      httpClient,
		logger:    logging.Global().Named("gateway"),
	}, nil
}

// Initiate asks the service to start a payment.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewError(OpInitiate, 0, fmt.Errorf("encode request: %w", err))
	}

	var resp InitiateResponse
	if err := c.do(ctx, OpInitiate, http.MethodPost, "/payments/initiate", body, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("payment initiated",
		logging.TransactionID(resp.TransactionID),
		logging.Status(resp.Status),
		zap.Bool("success", resp.Success),
		logging.AccountReference(req.AccountReference),
	)
	return &resp, nil
}

// QueryStatus fetches the current status of transactionID. A 404 is an
// ordinary failure here.
func (c *Client) QueryStatus(ctx context.Context, transactionID string) (*StatusResponse, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, &Error{Op: OpQueryStatus, Message: "transaction id is required"}
	}

	var resp StatusResponse
	path := "/payments/status/" + url.PathEscape(transactionID)
	if err := c.do(ctx, OpQueryStatus, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return NewError(op, 0, fmt.Errorf("build request: %w", err))
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("payment service unreachable",
			zap.String("operation", op),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return NewError(op, 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return NewError(op, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := NewError(op, resp.StatusCode, nil)
		e.Message = ExtractMessage(data, e.Message)
		e.Code = ExtractCode(data)

		c.logger.Warn("payment service returned an error",
			zap.String("operation", op),
			zap.String("request_id", requestID),
			zap.Int("status_code", resp.StatusCode),
			zap.String("error_code", e.Code),
			zap.String("message", e.Message),
			zap.Duration("duration", time.Since(start)),
		)
		return e
	}

	if err := json.Unmarshal(data, out); err != nil {
		return NewError(op, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
