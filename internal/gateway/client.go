package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Recorder receives one observation per completed call.
type Recorder interface {
	ObserveRequest(op, outcome string, elapsed time.Duration)
}

// Client talks to the simulation service. It never retries and never caches;
// callers decide what to refetch after a mutation.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    Recorder
}

var nowFn = time.Now

func (c *Client) tracer() trace.Tracer {
	return otel.Tracer("github.com/yourorg/tradesim/internal/gateway")
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

type call struct {
	op      string
	method  string
	path    string
	body    any
	headers map[string]string
}

// do issues one request and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, cl call, out any) (err error) {
	ctx, span := c.tracer().Start(ctx, "gateway."+cl.op, trace.WithAttributes(
		attribute.String("http.method", cl.method),
		attribute.String("http.route", cl.path),
	))
	start := nowFn()
	outcome := "ok"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, Message(err))
		}
		span.End()
		if c.Metrics != nil {
			c.Metrics.ObserveRequest(cl.op, outcome, nowFn().Sub(start))
		}
	}()

	endpoint := strings.TrimRight(c.BaseURL, "/") + cl.path
	var reader io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			outcome = "validation_error"
			return &ValidationError{Op: cl.op, Reason: fmt.Sprintf("encode body: %v", err)}
		}
		reader = bytes.NewReader(data)
		if c.Logger != nil {
			c.Logger.Debug("gateway request", "op", cl.op, "method", cl.method, "url", endpoint, "body", string(data))
		}
	} else if c.Logger != nil {
		c.Logger.Debug("gateway request", "op", cl.op, "method", cl.method, "url", endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, endpoint, reader)
	if err != nil {
		outcome = "transport_error"
		return &TransportError{Op: cl.op, Err: err}
	}
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range cl.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		outcome = "transport_error"
		return &TransportError{Op: cl.op, Err: err}
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		outcome = "transport_error"
		return &TransportError{Op: cl.op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome = "status_error"
		if c.Logger != nil {
			c.Logger.Debug("gateway error response", "op", cl.op, "status", resp.StatusCode, "body", strings.TrimSpace(string(data)))
		}
		return &StatusError{Op: cl.op, Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		outcome = "decode_error"
		return &DecodeError{Op: cl.op, Err: err}
	}
	if c.Logger != nil {
		c.Logger.Debug("gateway response", "op", cl.op, "status", resp.StatusCode, "bytes", len(data))
	}
	return nil
}
