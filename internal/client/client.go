// Package client talks to the shop's REST backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"shankh-dashboard/internal/instrument"
	"shankh-dashboard/internal/metrics"
)

// DefaultMaxResponseSize bounds how much of a backend response body is read.
const DefaultMaxResponseSize = 32 << 20

var (
	ErrNotFound         = errors.New("not found")
	ErrResponseTooLarge = errors.New("backend response exceeds size limit")
)

// Error is a non-2xx backend response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second; 0 disables limiting
	Burst     int
	HTTP      *http.Client

	MaxResponseSize int64 // 0 means DefaultMaxResponseSize
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	maxBody int64
}

func New(opts Options) *Client {
	hc := opts.HTTP
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		maxBody: opts.MaxResponseSize,
	}
	if c.maxBody <= 0 {
		c.maxBody = DefaultMaxResponseSize
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// do sends a request and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, http.Header, error) {
	ctx, span := instrument.FromContext(ctx).StartSpan(ctx, "client", method)
	defer span.End()
	span.SetAttr("path", path)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.SetStatus("error")
			return nil, nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		span.SetStatus("error")
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if traceID := instrument.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.BackendDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequests.WithLabelValues(method, "transport_error").Inc()
		span.SetStatus("error")
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	metrics.BackendRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttr("status_code", resp.StatusCode)

	// One byte past the limit tells a full-size body from a truncated one.
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		span.SetStatus("error")
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		span.SetStatus("error")
		return nil, nil, fmt.Errorf("%s %s: %w (%d bytes)", method, path, ErrResponseTooLarge, c.maxBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus("error")
		return nil, nil, &Error{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}
	span.SetStatus("ok")
	return data, resp.Header, nil
}

// errorMessage prefers the backend's "description" (or "error") field.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Description string `json:"description"`
		Error       string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Description != "" {
			return payload.Description
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return fmt.Sprintf("HTTP error! status: %d", status)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	data, _, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func recordPath(entity, id string) string {
	return "/" + entity + "/" + url.PathEscape(id)
}

// List fetches a whole collection and unwraps its envelope.
func (c *Client) List(ctx context.Context, entity string, envelopeKeys ...string) ([]map[string]any, error) {
	data, _, err := c.do(ctx, http.MethodGet, "/"+entity, nil, "")
	if err != nil {
		return nil, err
	}
	return UnwrapCollection(data, entity, envelopeKeys...)
}

// GetJSON decodes an arbitrary backend resource, e.g. /dashboard/stats.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Create posts a new record. The backend answers with at least the new id.
func (c *Client) Create(ctx context.Context, entity string, record map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if err := c.doJSON(ctx, http.MethodPost, "/"+entity, record, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces the given fields of a record.
func (c *Client) Update(ctx context.Context, entity, id string, record map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if err := c.doJSON(ctx, http.MethodPut, recordPath(entity, id), record, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, entity, id string) error {
	return c.doJSON(ctx, http.MethodDelete, recordPath(entity, id), nil, nil)
}

// Import sends validated CSV records in one batch.
func (c *Client) Import(ctx context.Context, entity string, records []map[string]any) error {
	return c.doJSON(ctx, http.MethodPost, "/import/"+entity, map[string]any{"data": records}, nil)
}

// LedgerPDF returns the backend-rendered invoice PDF for a payment.
func (c *Client) LedgerPDF(ctx context.Context, paymentID string) ([]byte, string, error) {
	data, header, err := c.do(ctx, http.MethodGet, recordPath("client_ledger", paymentID)+"/pdf", nil, "")
	if err != nil {
		return nil, "", err
	}
	ct := header.Get("Content-Type")
	if ct == "" {
		ct = "application/pdf"
	}
	return data, ct, nil
}

// UploadOrderImage sends a design image for an order as multipart field design_image.
func (c *Client) UploadOrderImage(ctx context.Context, orderID, filename string, r io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("design_image", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("copy image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}
	_, _, err = c.do(ctx, http.MethodPost, recordPath("client_orders", orderID)+"/image", &buf, mw.FormDataContentType())
	return err
}
