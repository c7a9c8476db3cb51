package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultCallTimeout = 10 * time.Second
	maxResponseBody    = 1 << 20
)

// Response is what a partner answered to a successful call.
type Response struct {
	StatusCode int `json:"httpStatus"`
	Body       any `json:"body,omitempty"`
}

// Client sends JSON and form requests to one partner and classifies failures
// as PartnerError values.
type Client struct {
	partner string
	http    *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

func NewClient(partner string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	c := &Client{
		partner: partner,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Partner() string { return c.partner }

// PostJSON posts payload as JSON. Only 200, 201 and 204 count as success.
func (c *Client) PostJSON(ctx context.Context, target string, headers http.Header, payload any) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, NewPartnerError(ErrorInternal, c.partner, "encode payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return Response{}, NewPartnerError(ErrorInternal, c.partner, "build request", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// PostForm posts url-encoded form values.
func (c *Client) PostForm(ctx context.Context, target string, form url.Values) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return Response{}, NewPartnerError(ErrorInternal, c.partner, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, NewPartnerError(ErrorTimeout, c.partner, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{}, NewPartnerError(ErrorTimeout, c.partner, "read response", err)
	}
	body := decodeBody(raw)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return Response{StatusCode: resp.StatusCode, Body: body}, nil
	}
	pe := FromStatus(c.partner, resp.StatusCode, body)
	if msg := messageOf(body); msg != "" {
		pe.Message = msg
	}
	return Response{}, pe
}

func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return string(raw)
}

// messageOf extracts a human readable message from common partner error bodies.
func messageOf(body any) string {
	switch b := body.(type) {
	case string:
		return strings.TrimSpace(b)
	case map[string]any:
		for _, key := range []string{"message", "error_description", "error"} {
			if s, ok := b[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
