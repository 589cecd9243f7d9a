// Package httpclient is the single egress path to the pharmatrack
// collaborators (catálogo, inventario, recetas). Every call gets a bounded
// timeout, an OTel client span, and the request's correlation id; read-only
// calls additionally get exactly one retry on transport failure.
//
// Mutating calls are never retried here: a POST that timed out may still
// have been applied downstream, so retry safety is the caller's problem —
// the saga coordinator handles it with verification and compensation.
package httpclient

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/pharmatrack/orquestador/internal/pkg/correlation"
)

// DefaultTimeout bounds a single downstream attempt when no explicit timeout
// is configured. Mirrors the platform's HTTP_TIMEOUT convention.
const DefaultTimeout = 3 * time.Second

// maxErrorBody caps how much of a rejection payload is kept for diagnostics.
const maxErrorBody = 8 << 10

// Kind classifies a downstream failure.
type Kind int

const (
	// KindUnavailable means no usable response arrived: connection refused,
	// reset, or the per-call timeout elapsed.
	KindUnavailable Kind = iota
	// KindRejected means the remote answered with a non-2xx status. The
	// response payload is preserved for diagnosis.
	KindRejected
)

// DownstreamError is the error type for every failed downstream call.
type DownstreamError struct {
	Service string
	Kind    Kind
	Status  int
	Body    []byte
	Err     error
}

func (e *DownstreamError) Error() string {
	if e.Kind == KindUnavailable {
		return fmt.Sprintf("%s no disponible: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s respondió %d: %s", e.Service, e.Status, e.Body)
}

func (e *DownstreamError) Unwrap() error { return e.Err }

// Unavailable reports whether the failure was transport-level.
func (e *DownstreamError) Unavailable() bool { return e.Kind == KindUnavailable }

// NotFound reports a 404 rejection, which adapters translate to the
// domain-level not-found sentinel.
func (e *DownstreamError) NotFound() bool {
	return e.Kind == KindRejected && e.Status == http.StatusNotFound
}

// Client issues JSON-over-HTTP calls to one downstream service.
type Client struct {
	service    string
	base       string
	timeout    time.Duration
	tracer     trace.Tracer
	httpClient *http.Client
}

// New creates a client for the service at baseURL. The http.Client carries
// no Timeout of its own; each attempt is bounded by a context deadline so a
// retry gets a fresh budget.
func New(service, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		service: service,
		base:    strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		tracer:  otel.Tracer("orquestador/httpclient"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
	}
}

// Get issues a read-only call. On a transport-level failure it retries
// exactly once before surfacing the error.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	err := c.do(ctx, http.MethodGet, path, params, nil, out)
	var derr *DownstreamError
	if errors.As(err, &derr) && derr.Unavailable() {
		return c.do(ctx, http.MethodGet, path, params, nil, out)
	}
	return err
}

// Post issues a mutating call. Never retried by this layer.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	target := c.base + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("call-%s", c.service),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", target),
			attribute.String("peer.service", c.service),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpclient: marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("httpclient: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := correlation.FromContext(ctx); id != "" {
		req.Header.Set(correlation.Header, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		derr := &DownstreamError{Service: c.service, Kind: KindUnavailable, Err: err}
		span.RecordError(derr)
		span.SetStatus(codes.Error, derr.Error())
		return derr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		derr := &DownstreamError{Service: c.service, Kind: KindRejected, Status: resp.StatusCode, Body: raw}
		span.RecordError(derr)
		span.SetStatus(codes.Error, derr.Error())
		return derr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("httpclient: decode %s response: %w", c.service, err)
		}
	}
	return nil
}
