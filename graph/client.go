// Package graph builds, signs and makes requests to the Facebook Graph API.
//
// A Session (an *App or a *User) supplies the access token. NewRequest
// validates the method, path and query; Request.URL signs the request by
// adding access_token and appsecret_proof; Client.Do sends it and turns
// error envelopes into *RemoteAPIError.
package graph

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fussgo/fuss/internal/graphhttp"
	"github.com/fussgo/fuss/internal/redact"
	"github.com/fussgo/fuss/logger"
	"github.com/fussgo/fuss/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/fussgo/fuss/graph"

// Longest response body quoted in a StatusError.
const maxErrorBody = 512

// Config is configuration for the Graph API Client
type Config struct {
	// Endpoint for API requests. Defaults to DefaultEndpoint.
	Endpoint string

	// User agent sent with every request. Defaults to version.UserAgent().
	UserAgent string

	// If true, HTTP2 is disabled
	DisableHTTP2 bool

	// If true, requests and responses will be dumped to the logger with
	// credentials redacted
	DebugHTTP bool

	// If true timings for each request will be logged
	TraceHTTP bool

	// Client timeout. Zero means the graphhttp default; cancellation via
	// the request context always applies.
	Timeout time.Duration

	// The http client used, leave nil for the default
	HTTPClient *http.Client

	// optional TLS configuration primarily used for testing
	TLSConfig *tls.Config

	// Spans are started from this provider; defaults to the global one.
	TracerProvider trace.TracerProvider

	// Optional request metrics.
	Metrics *Metrics
}

// A Client sends Requests to the Graph API.
type Client struct {
	conf   Config
	client *http.Client
	logger logger.Logger
	tracer trace.Tracer
}

// NewClient returns a new Graph API Client.
func NewClient(l logger.Logger, conf Config) *Client {
	if conf.Endpoint == "" {
		conf.Endpoint = DefaultEndpoint
	}

	if conf.UserAgent == "" {
		conf.UserAgent = version.UserAgent()
	}

	tp := conf.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	client := conf.HTTPClient
	if client == nil {
		opts := []graphhttp.ClientOption{
			graphhttp.WithUserAgent(conf.UserAgent),
			graphhttp.WithAllowHTTP2(!conf.DisableHTTP2),
			graphhttp.WithTLSConfig(conf.TLSConfig),
		}
		if conf.Timeout > 0 {
			opts = append(opts, graphhttp.WithTimeout(conf.Timeout))
		}
		client = graphhttp.NewClient(opts...)
	}

	return &Client{
		conf:   conf,
		client: client,
		logger: l,
		tracer: tp.Tracer(tracerName),
	}
}

// Config returns the internal configuration for the Client
func (c *Client) Config() Config {
	return c.conf
}

// HTTPClient returns the underlying HTTP client. It can be handed to
// WithAppHTTPClient so token exchanges share its transport.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Response is a Graph API response. This wraps the standard http.Response;
// its body has already been consumed.
type Response struct {
	*http.Response
}

// Make sends r and returns the decoded JSON response: usually a
// map[string]any, or true for endpoints that only report success.
func (c *Client) Make(ctx context.Context, r *Request) (any, error) {
	var result any
	if _, err := c.Do(ctx, r, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Do sends r. The response is JSON decoded into the value pointed to by v,
// or copied verbatim if v is an io.Writer, or discarded if v is nil.
//
// A Request is spent once Do is called, whatever the outcome; calling Do
// again returns ErrRequestSpent. Do never retries.
func (c *Client) Do(ctx context.Context, r *Request, v any) (*Response, error) {
	if !r.spent.CompareAndSwap(false, true) {
		return nil, ErrRequestSpent
	}

	ctx, span := c.tracer.Start(ctx, "graph.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.method),
			attribute.String("graph.path", r.path),
			attribute.String("graph.request_id", r.id),
		),
	)
	defer span.End()

	start := time.Now()
	resp, outcome, err := c.do(ctx, r, v)
	c.conf.Metrics.observe(r.method, outcome, time.Since(start))

	if resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, r *Request, v any) (*Response, string, error) {
	l := c.logger.WithFields(logger.StringField("request", r.id))

	u, err := r.signedURL(ctx, c.conf.Endpoint)
	if err != nil {
		return nil, outcomeSigningError, err
	}

	var body io.Reader
	if r.body != nil {
		encoded, err := r.body.Encode()
		if err != nil {
			return nil, outcomeSigningError, fmt.Errorf("encoding request body: %w", err)
		}
		body = strings.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, outcomeSigningError, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.conf.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpResp, err := graphhttp.Do(l, c.client, req,
		graphhttp.WithDebugHTTP(c.conf.DebugHTTP),
		graphhttp.WithTraceHTTP(c.conf.TraceHTTP),
	)
	if err != nil {
		// url.Error repeats the unredacted URL.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, outcomeTransportError, &TransportError{Method: r.method, URL: redact.URL(req.URL), Err: err}
	}
	defer httpResp.Body.Close() //nolint:errcheck // fully read below

	resp := &Response{Response: httpResp}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return resp, outcomeTransportError, &TransportError{Method: r.method, URL: redact.URL(req.URL), Err: err}
	}
	l.WithFields(logger.SizeField("size", len(data))).Debug("Read response body")

	if err := checkResponse(req, httpResp, data); err != nil {
		l.WithFields(logger.ErrorField(err)).Debug("%s %s failed", r.method, r.path)
		var apiErr *RemoteAPIError
		if errors.As(err, &apiErr) {
			return resp, outcomeAPIError, err
		}
		return resp, outcomeStatusError, err
	}

	if v == nil {
		return resp, outcomeSuccess, nil
	}
	if w, ok := v.(io.Writer); ok {
		if _, err := w.Write(data); err != nil {
			return resp, outcomeDecodeError, err
		}
		return resp, outcomeSuccess, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return resp, outcomeDecodeError, fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return resp, outcomeSuccess, nil
}

// checkResponse looks for an error envelope regardless of status, since the
// Graph API has been known to send them with 200 OK.
func checkResponse(req *http.Request, resp *http.Response, data []byte) error {
	var envelope struct {
		Error *RemoteAPIError `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = resp.StatusCode
		return envelope.Error
	}

	if c := resp.StatusCode; 200 <= c && c <= 299 {
		return nil
	}

	body := strings.TrimSpace(string(data))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "…"
	}
	return &StatusError{
		Method:     req.Method,
		URL:        redact.URL(req.URL),
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}
