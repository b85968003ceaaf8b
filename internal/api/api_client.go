package api

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

	"github.com/Yoosu-L/llmstreambench/internal/logging"
)

// maxErrorBody bounds how much of a non-2xx body is kept as diagnostic text.
const maxErrorBody = 64 << 10

// Client issues streaming chat requests over one shared connection pool.
type Client struct {
	httpClient  *http.Client
	readTimeout time.Duration
	now         func() time.Time
}

// NewClient builds a client whose pool and timeouts follow cfg.
func NewClient(cfg BenchmarkConfig) *Client {
	return &Client{
		httpClient:  newHTTPClient(cfg),
		readTimeout: cfg.ReadTimeout,
		now:         time.Now,
	}
}

// NewClientWithHTTP wraps an existing http.Client. readTimeout <= 0 disables
// the stall detection.
func NewClientWithHTTP(httpClient *http.Client, readTimeout time.Duration) *Client {
	return &Client{httpClient: httpClient, readTimeout: readTimeout, now: time.Now}
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Run sends one streaming request to backend and measures it. Every failure,
// whether pre-flight, transport, HTTP status or stream, is reported in the
// returned result; Run never returns an error.
func (c *Client) Run(ctx context.Context, backend Backend, prompt string) RequestResult {
	if err := backend.preflight(); err != nil {
		logging.Debugf("pre-flight failed for %s: %v", backend.Name, err)
		return FailedResult(backend.Name, err.Error())
	}

	payload, err := backend.Build(prompt)
	if err != nil {
		return FailedResult(backend.Name, fmt.Sprintf("build request: %v", err))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return FailedResult(backend.Name, fmt.Sprintf("encode request: %v", err))
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	tracker := newTimingTracker(c.now)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return FailedResult(backend.Name, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if backend.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+backend.APIKey)
	}
	for k, v := range backend.Headers {
		req.Header.Set(k, v)
	}

	var timer *time.Timer
	if c.readTimeout > 0 {
		timer = time.AfterFunc(c.readTimeout, func() { cancel(ErrReadTimeout) })
		defer timer.Stop()
	}

	logging.LogRequest("BENCH->LLM", backend.Name, backend.Model, body)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FailedResult(backend.Name, describeError(ctx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.LogRequest("LLM->BENCH", backend.Name, backend.Model, raw)
		return FailedResult(backend.Name, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var stream io.Reader = resp.Body
	if timer != nil {
		stream = &idleReader{r: resp.Body, timer: timer, timeout: c.readTimeout}
	}
	if err := ParseStream(stream, tracker); err != nil {
		logging.LogEvent("stream from %s broke: %s", backend.Name, describeError(ctx, err))
		return FailedResult(backend.Name, "Stream parsing failed")
	}

	result := ResultFromSample(backend.Name, tracker.Finalize())
	logging.Debugf("%s finished: %d tokens in %s", backend.Name, result.TokenCount, result.TotalTime)
	return result
}

// describeError appends the cancellation cause when it adds information, so
// a stalled stream reads differently from a plain cancellation.
func describeError(ctx context.Context, err error) string {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) || errors.Is(err, cause) {
		return err.Error()
	}
	return fmt.Sprintf("%v (%v)", err, cause)
}
