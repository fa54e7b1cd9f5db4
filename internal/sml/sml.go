// Package sml talks to the Service Metadata Locator, the external
// directory that maps participants to the SMP serving them. Service
// group creation and deletion notify the locator so that discovery
// stays consistent with the local registry.
package sml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// Hook is invoked synchronously around service group create and delete.
// A failed Create must leave no participant registered remotely; a failed
// Delete must leave the remote registration intact.
type Hook interface {
	Create(ctx context.Context, participant identifier.ParticipantIdentifier) error
	Delete(ctx context.Context, participant identifier.ParticipantIdentifier) error
}

// IsTransient reports whether an error from a Hook call was a network or
// availability failure rather than a rejection by the locator. Transient
// failures are safe to retry by the operator; rejections are not.
func IsTransient(err error) bool {
	return errors.Is(err, sentinel.ErrUnavailable)
}

// ClientConfig configures the HTTP locator client.
type ClientConfig struct {
	// BaseURL is the locator's participant-management endpoint root.
	BaseURL string

	// HTTPClient is optional; a default with a 30s timeout is used when nil.
	HTTPClient *http.Client

	// UserAgent is sent on every request.
	UserAgent string
}

// Client is an HTTP implementation of Hook against the locator's
// participant-management resource.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "smpserver-sml-client/1.0"
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  userAgent,
		httpClient: httpClient,
	}
}

func (c *Client) Create(ctx context.Context, participant identifier.ParticipantIdentifier) error {
	return c.do(ctx, http.MethodPut, participant)
}

func (c *Client) Delete(ctx context.Context, participant identifier.ParticipantIdentifier) error {
	return c.do(ctx, http.MethodDelete, participant)
}

func (c *Client) participantURL(participant identifier.ParticipantIdentifier) string {
	return fmt.Sprintf("%s/participants/%s", c.baseURL, url.PathEscape(participant.String()))
}

func (c *Client) do(ctx context.Context, method string, participant identifier.ParticipantIdentifier) error {
	req, err := http.NewRequestWithContext(ctx, method, c.participantURL(participant), nil)
	if err != nil {
		return fmt.Errorf("build locator request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("locator %s %s: %v: %w", method, participant, err, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("locator %s %s: status %d: %w", method, participant, resp.StatusCode, sentinel.ErrUnavailable)
	default:
		return fmt.Errorf("locator rejected %s %s: status %d", method, participant, resp.StatusCode)
	}
}

// Noop is the Hook used when directory registration is managed
// out-of-band. Every call succeeds without contacting anything.
type Noop struct{}

func (Noop) Create(context.Context, identifier.ParticipantIdentifier) error { return nil }
func (Noop) Delete(context.Context, identifier.ParticipantIdentifier) error { return nil }
