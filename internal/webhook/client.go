// Package webhook delivers the wizard submission to the external receiver.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/joelkehle/valuation-wizard/internal/webhook"

// DefaultTimeout bounds one delivery attempt.
const DefaultTimeout = 15 * time.Second

// Result describes one delivery. There is exactly one attempt; no retry.
type Result struct {
	Delivered bool          `json:"delivered"`
	Status    int           `json:"status,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"-"`
}

type Client struct {
	url    string
	http   *http.Client
	tracer trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url: strings.TrimSpace(url),
		http: &http.Client{
			Timeout: DefaultTimeout,
		},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post sends payload as JSON. A non-2xx status or transport failure is
// reported in both the Result and the returned error.
func (c *Client) Post(ctx context.Context, payload any) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "webhook.Post", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	res, err := c.post(ctx, payload)
	res.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("http.response.status_code", res.Status),
		attribute.Bool("webhook.delivered", res.Delivered),
	)
	if err != nil {
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook delivery failed")
	}
	return res, err
}

func (c *Client) post(ctx context.Context, payload any) (Result, error) {
	if c.url == "" {
		return Result{}, fmt.Errorf("webhook url not configured")
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(blob))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Status: resp.StatusCode}, fmt.Errorf("POST webhook failed status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return Result{Delivered: true, Status: resp.StatusCode}, nil
}
