package livesync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	engineHost     = "127.0.0.1"
	requestTimeout = 10 * time.Second
	userAgent      = "gaze-sync/0.1"
)

// APIError is a non-2xx response from the engine, with the body text
// preserved for diagnostics (or the status phrase when the body is
// unreadable).
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine returned %d: %s", e.Status, e.Body)
}

// Client is the pull-path counterpart of the connection manager. It resolves
// the same credential/port pair per request, attaches the bearer token, and
// retries exactly once with a freshly resolved token on a 401.
type Client struct {
	resolver *Resolver
	http     *http.Client
}

// NewClient builds a Client on top of the given resolver.
func NewClient(resolver *Resolver) *Client {
	return &Client{
		resolver: resolver,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

// Get performs a GET request. A JSON response is decoded into dest; any
// other content type is assigned as raw text when dest is a *string.
func (c *Client) Get(ctx context.Context, path string, query url.Values, dest any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, dest)
}

// Post performs a POST request with a JSON body (may be nil).
func (c *Client) Post(ctx context.Context, path string, body any, dest any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, dest)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, dest any) error {
	creds, err := c.resolver.Resolve()
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}

	retried := false
	for {
		err := c.attempt(ctx, creds, method, path, query, body, dest)
		apiErr, ok := err.(*APIError)
		if !ok || apiErr.Status != http.StatusUnauthorized || retried {
			return err
		}

		// Stale token: the engine restarted with a fresh one. Invalidate
		// and retry exactly once; a second 401 is a hard failure.
		sub("client").Warn("unauthorized, refreshing credentials", "path", path)
		c.resolver.Invalidate()
		creds, err = c.resolver.Resolve()
		if err != nil {
			return fmt.Errorf("re-resolve credentials: %w", err)
		}
		retried = true
	}
}

func (c *Client) attempt(ctx context.Context, creds Credentials, method, path string, query url.Values, body any, dest any) error {
	reqURL := url.URL{
		Scheme:   "http",
		Host:     fmt.Sprintf("%s:%d", engineHost, creds.Port),
		Path:     path,
		RawQuery: query.Encode(),
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, readErr := io.ReadAll(resp.Body)
		bodyText := strings.TrimSpace(string(text))
		if readErr != nil || bodyText == "" {
			bodyText = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Body: bodyText}
	}

	if dest == nil {
		return nil
	}

	if isJSON(resp.Header.Get("Content-Type")) {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	// Non-JSON responses come back as raw text.
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if s, ok := dest.(*string); ok {
		*s = string(text)
		return nil
	}
	return fmt.Errorf("unexpected content type %q for %s", resp.Header.Get("Content-Type"), path)
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
