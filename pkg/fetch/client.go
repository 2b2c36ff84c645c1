// Package fetch is the request primitive the caches load through. It issues
// authenticated JSON calls against the ride API and has no caching of its own.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TokenSource supplies the bearer token injected into every request. An
// empty token sends the request unauthenticated.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Options describes a single call.
type Options struct {
	Method string // defaults to GET
	Params url.Values
	Body   any // JSON-encoded when non-nil
}

// ClientConfig holds the configuration for the API client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Client issues JSON requests against the ride API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	logger     zerolog.Logger
}

// NewClient creates a Client. httpClient may be nil, in which case one with
// cfg.Timeout is created.
func NewClient(cfg *ClientConfig, httpClient *http.Client, tokens TokenSource, logger zerolog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger.With().Str("component", "FetchClient").Logger(),
	}, nil
}

// FetchJSON performs the call and decodes the response body into out. out
// may be nil for calls whose response body is ignored.
func (c *Client) FetchJSON(ctx context.Context, path string, opts Options, out any) error {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	u := c.baseURL.JoinPath(path)
	if len(opts.Params) > 0 {
		u.RawQuery = opts.Params.Encode()
	}

	var body io.Reader = http.NoBody
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return &RequestError{Method: method, Path: path, Message: "could not encode request body", Err: err}
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	token, err := c.tokens(ctx)
	if err != nil {
		return &RequestError{Method: method, Path: path, Message: "could not obtain credentials", Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger := c.logger.With().Str("method", method).Str("path", path).Str("request_id", requestID).Logger()
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Warn().Err(err).Msg("Request failed before a response arrived.")
		return &RequestError{Method: method, Path: path, Message: "the server could not be reached", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Method: method, Path: path, Status: resp.StatusCode, Message: "could not read response", Err: err}
	}

	logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("Request completed.")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: errorMessage(raw, resp.Status),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		logger.Warn().Err(err).Msg("Response body did not match the expected shape.")
		return &RequestError{Method: method, Path: path, Status: resp.StatusCode, Message: "unexpected response from server", Err: err}
	}
	return nil
}

// errorMessage extracts a readable message from an API error body, falling
// back to the HTTP status text.
func errorMessage(raw []byte, status string) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) < 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return status
}

// Get is a typed convenience over FetchJSON for GET calls.
func Get[T any](ctx context.Context, c *Client, path string, params url.Values) (T, error) {
	var out T
	err := c.FetchJSON(ctx, path, Options{Method: http.MethodGet, Params: params}, &out)
	return out, err
}

// IsRequestError reports whether err carries a RequestError.
func IsRequestError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr)
}
