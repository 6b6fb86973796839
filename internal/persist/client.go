package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrDeleteFailed is returned when the persistence service rejects an
// object-delete request.
var ErrDeleteFailed = errors.New("persist delete failed")

// TokenSource produces a short-lived service credential accepted by the
// persistence service (the internal read-all token).
type TokenSource func() (string, error)

// Client calls the persistence service's HTTP interface for the operations
// that have no direct-database equivalent, authenticating with the service
// token as an mqtt_token cookie.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewClient creates a persistence HTTP client.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
	}
}

// DeleteSceneObjects removes all persisted objects of a scene. Called when a
// scene permission record is deleted; failure is reported but callers treat
// it as non-fatal (the permission record is already gone).
func (c *Client) DeleteSceneObjects(ctx context.Context, scene string) error {
	token, err := c.tokens()
	if err != nil {
		return fmt.Errorf("service token: %w", err)
	}

	// Scene names are regex-restricted to URL-safe characters, and the
	// namespace separator must stay a literal slash in the route.
	endpoint := fmt.Sprintf("%s/persist/%s", c.baseURL, scene)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: "mqtt_token", Value: token})

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("Persist delete rejected", "scene", scene, "status", resp.StatusCode)
		return fmt.Errorf("%w: status %d", ErrDeleteFailed, resp.StatusCode)
	}
	return nil
}
