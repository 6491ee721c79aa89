package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"eatflow-gateway/internal/util"

	"github.com/go-chi/chi/v5/middleware"
)

const maxErrorBody = 64 << 10

var (
	ErrUnauthorized  = errors.New("backend rejected the access token")
	ErrUnavailable   = errors.New("backend unavailable")
	ErrNotRegistered = errors.New("no account registered for this email")
)

// APIError is a non-2xx answer from the backend
type APIError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
}

// StatusOf returns the backend status carried by err, 0 if none
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client talks JSON to the EatFlow API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default client, mostly for tests
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		util.Warn("Backend call failed",
			util.String("method", method),
			util.String("path", path),
			util.Duration("duration", time.Since(start)),
			util.ErrorField(err))
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	util.Debug("Backend call",
		util.String("method", method),
		util.String("path", path),
		util.Int("status", resp.StatusCode),
		util.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Detail: readDetail(resp.Body),
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %w", ErrUnavailable, apiErr)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", ErrUnavailable, path, err)
	}
	return nil
}

// readDetail extracts FastAPI style details: a string, or a list of {msg}
func readDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if len(envelope.Detail) > 0 {
		var text string
		if json.Unmarshal(envelope.Detail, &text) == nil {
			return text
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(envelope.Detail, &items) == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, item := range items {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	return envelope.Message
}
