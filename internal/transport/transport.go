// Package transport sends authenticated requests to the Tower API.
//
// Every request carries the same Basic authorization header and an empty
// body when none is supplied. Response bodies are kept raw and decoded as
// JSON on demand, so non-JSON error pages pass through untouched.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"towerrunner/internal/apperrors"
	"towerrunner/pkg/backoff"
)

// maxResponseBodySize limits how much of a response body is read.
const maxResponseBodySize = 16 << 20 // 16 MB

// Request is a single API call.
type Request struct {
	Method  string
	URI     string
	Body    []byte
	Headers http.Header
}

// Response is the status, headers and raw body of an API call.
type Response struct {
	StatusCode int
	Status     string // reason phrase, e.g. "Not Found"
	Headers    http.Header
	Body       []byte
}

// IsJSON reports whether the body parses as JSON.
func (r *Response) IsJSON() bool {
	return len(r.Body) > 0 && json.Valid(r.Body)
}

// Decode unmarshals the JSON body into v. Numbers are kept as json.Number
// when v contains interface values.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Message returns a short description of the response for error reports:
// the reason phrase, followed by the "detail" field when the body has one.
func (r *Response) Message() string {
	msg := r.Status
	var body struct {
		Detail string `json:"detail"`
	}
	if r.IsJSON() && json.Unmarshal(r.Body, &body) == nil && body.Detail != "" {
		msg = strings.TrimSpace(msg + " " + body.Detail)
	}
	return msg
}

// MetricsRecorder is an optional interface for recording request metrics.
type MetricsRecorder interface {
	RecordAPIRequest(ctx context.Context, method, uri string, statusCode int, durationSeconds float64)
}

// Config holds client settings. Zero values use defaults.
type Config struct {
	Username string
	Password string
	Timeout  time.Duration   // per request (default: 30s)
	Insecure bool            // skip TLS verification
	Retries  int             // retries for transport errors only (default: 0)
	Backoff  *backoff.Config // delay between retries
	Client   *http.Client    // overrides Timeout and Insecure when set
}

// Client sends requests with uniform headers.
type Client struct {
	http          *http.Client
	authorization string
	retries       int
	backoff       *backoff.Config
	metrics       MetricsRecorder
	logger        *slog.Logger
}

// New creates a Client. metrics may be nil.
func New(cfg Config, metrics MetricsRecorder) *Client {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = NewHTTPClient(cfg.Timeout, cfg.Insecure)
	}

	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		http:          httpClient,
		authorization: BasicAuth(cfg.Username, cfg.Password),
		retries:       retries,
		backoff:       cfg.Backoff,
		metrics:       metrics,
		logger:        slog.With("component", "transport"),
	}
}

// NewHTTPClient returns a client honouring proxy variables, with TLS
// verification skipped when insecure is set. A zero timeout means 30s.
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: insecure},
		},
	}
}

// BasicAuth returns the Authorization header value for the credentials.
func BasicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// Do sends the request. Any HTTP status is returned as a Response; only
// failures to get a response at all are errors (apperrors.ErrTransport).
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	err := backoff.Retry(ctx, c.retries, c.backoff, isRetryable, func(attempt int) error {
		if attempt > 0 {
			c.logger.Warn("Retrying request after transport error", "method", req.Method, "uri", req.URI, "attempt", attempt)
		}
		var err error
		resp, err = c.roundTrip(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// isRetryable allows retries for transport errors unless the caller gave up.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, apperrors.ErrTransport)
}

func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	op := req.Method + " " + req.URI
	c.logger.Debug("Tower request", "method", req.Method, "uri", req.URI)

	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URI, body)
	if err != nil {
		return nil, apperrors.Transport(op, err)
	}
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Authorization", c.authorization)
	httpReq.Header.Set("Accept", "application/json")
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.record(ctx, req, 0, start)
		return nil, apperrors.Transport(op, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodySize))
	c.record(ctx, req, httpResp.StatusCode, start)
	if err != nil {
		return nil, apperrors.Transport(op, fmt.Errorf("failed to read response body: %w", err))
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     reasonPhrase(httpResp),
		Headers:    httpResp.Header,
		Body:       data,
	}, nil
}

func (c *Client) record(ctx context.Context, req *Request, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordAPIRequest(ctx, req.Method, req.URI, status, time.Since(start).Seconds())
	}
}

// reasonPhrase strips the numeric code from "404 Not Found".
func reasonPhrase(resp *http.Response) string {
	if _, phrase, ok := strings.Cut(resp.Status, " "); ok {
		return phrase
	}
	return http.StatusText(resp.StatusCode)
}
