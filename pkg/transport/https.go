package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	contentType = "text/xml;charset=UTF-8"
	userAgent   = "go-afip/1.0"

	// maxResponseBytes caps response reads; the services answer with small
	// XML envelopes.
	maxResponseBytes = 1 << 20
)

// Client is the transport collaborator the protocol packages depend on. It
// posts a SOAP envelope to an endpoint and returns the response body text.
type Client interface {
	Post(ctx context.Context, endpoint, body, soapAction string) (string, error)
}

// StatusError reports a non-success HTTP status from the remote service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote service returned status %d", e.StatusCode)
}

// Config holds HTTPS client settings.
type Config struct {
	Timeout       time.Duration
	MinTLSVersion uint16
	// InsecureSkipVerify disables TLS certificate verification. Some of the
	// authority's legacy endpoints present chains that fail strict
	// verification; leave this off unless those failures are observed.
	InsecureSkipVerify bool
	Logger             *slog.Logger
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:       30 * time.Second,
		MinTLSVersion: tls.VersionTLS12,
	}
}

// HTTPSClient is the production Client implementation.
type HTTPSClient struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPSClient creates an HTTPS client. A nil config selects defaults.
func NewHTTPSClient(config *Config) *HTTPSClient {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPSClient{
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion:         config.MinTLSVersion,
					InsecureSkipVerify: config.InsecureSkipVerify,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// Post sends the request body to the endpoint with the fixed protocol headers
// and the given SOAPAction, returning the response body text. A non-2xx status
// is reported as a *StatusError.
func (c *HTTPSClient) Post(ctx context.Context, endpoint, body, soapAction string) (string, error) {
	requestID := uuid.New().String()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("SOAPAction", soapAction)

	c.logger.Debug("posting SOAP request",
		"request_id", requestID,
		"endpoint", endpoint,
		"soap_action", soapAction,
		"body_bytes", len(body))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("remote service rejected request",
			"request_id", requestID,
			"status", resp.StatusCode)
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(responseBody)}
	}

	c.logger.Debug("received SOAP response",
		"request_id", requestID,
		"status", resp.StatusCode,
		"body_bytes", len(responseBody))

	return string(responseBody), nil
}
