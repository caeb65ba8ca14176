// Package api is the HTTP client for the question template backend. Every
// call goes through one request helper that attaches the bearer credential,
// decodes the JSON body and classifies failures as *RequestError.
package api

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
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds a single HTTP exchange when the caller sets none.
const DefaultTimeout = 30 * time.Second

// Messages used when the backend gives none.
const (
	msgNetwork         = "Network error: unable to reach the server."
	msgInvalidResponse = "Invalid response from the server."
)

// TokenSource reads the bearer credential from local storage.
// An empty value means no credential is attached.
type TokenSource interface {
	Get(key string) (string, error)
}

// Client talks to the versioned REST API.
type Client struct {
	baseURL  string
	http     *http.Client
	tokens   TokenSource
	tokenKey string
}

// New creates a client for baseURL (e.g. "http://localhost:8000/api/v1").
// tokens may be nil for unauthenticated use.
func New(baseURL string, tokens TokenSource, tokenKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		tokens:   tokens,
		tokenKey: tokenKey,
	}
}

// RequestError is a failed API call. Status is zero when the request never
// produced a usable HTTP response (transport or decoding failure).
type RequestError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// call describes one API exchange.
type call struct {
	op         string // short name for logs, e.g. "list templates"
	method     string
	path       string
	query      url.Values
	body       any
	out        any
	unwrap     bool   // decode the "data" member instead of the whole body
	defaultMsg string // message when the backend supplies none
}

type errorBody struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Detail any `json:"detail"`
}

func (c *Client) do(ctx context.Context, cl call) error {
	reqID := uuid.NewString()
	logAttrs := []any{"op", cl.op, "method", cl.method, "path", cl.path, "request_id", reqID}

	err := c.exchange(ctx, cl, reqID)
	if err != nil {
		slog.Error("api request failed", append(logAttrs, "status", StatusOf(err), "error", err)...)
		return err
	}
	slog.Debug("api request ok", logAttrs...)
	return nil
}

func (c *Client) exchange(ctx context.Context, cl call, reqID string) error {
	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return &RequestError{Op: cl.op, Message: cl.defaultMsg, Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return &RequestError{Op: cl.op, Message: cl.defaultMsg, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Op: cl.op, Message: msgNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Op: cl.op, Status: resp.StatusCode, Message: msgNetwork, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{
			Op:      cl.op,
			Status:  resp.StatusCode,
			Message: errorMessage(raw, cl.defaultMsg),
			Err:     fmt.Errorf("%s: status %d", cl.op, resp.StatusCode),
		}
	}

	if cl.out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if cl.unwrap {
		raw = dataMember(raw)
	}
	if err := json.Unmarshal(raw, cl.out); err != nil {
		return &RequestError{Op: cl.op, Status: resp.StatusCode, Message: msgInvalidResponse, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	t, err := c.tokens.Get(c.tokenKey)
	if err != nil {
		slog.Warn("failed to read credential", "error", err)
		return ""
	}
	return t
}

// errorMessage pulls error.message (or a string detail) out of an error body.
func errorMessage(raw []byte, fallback string) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return fallback
	}
	if eb.Error != nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	if s, ok := eb.Detail.(string); ok && s != "" {
		return s
	}
	return fallback
}

// dataMember returns the "data" member of a {success, data} envelope, or raw
// unchanged when the body is not such an envelope.
func dataMember(raw []byte) []byte {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw
	}
	if data, ok := env["data"]; ok {
		return data
	}
	return raw
}
