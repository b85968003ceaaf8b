package api

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrReadTimeout is the cancellation cause when a response stalls longer than
// the configured read timeout.
var ErrReadTimeout = errors.New("read timeout exceeded")

// BenchmarkConfig sizes the connection pool and per-request timeouts shared by
// every request of a sweep.
type BenchmarkConfig struct {
	ConnectionLimit       int
	PerHostLimit          int
	KeepaliveTimeout      time.Duration
	TotalTimeout          time.Duration
	ConnectTimeout        time.Duration
	ReadTimeout           time.Duration
	ResponsePreviewLength int
}

// DefaultBenchmarkConfig mirrors the limits the benchmark has always used.
func DefaultBenchmarkConfig() BenchmarkConfig {
	return BenchmarkConfig{
		ConnectionLimit:       100,
		PerHostLimit:          30,
		KeepaliveTimeout:      30 * time.Second,
		TotalTimeout:          120 * time.Second,
		ConnectTimeout:        10 * time.Second,
		ReadTimeout:           60 * time.Second,
		ResponsePreviewLength: 50,
	}
}

// newHTTPClient returns a pooled client. Requests beyond the pool limits wait
// for a connection instead of failing.
func newHTTPClient(cfg BenchmarkConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.ConnectionLimit,
		MaxIdleConnsPerHost: cfg.PerHostLimit,
		MaxConnsPerHost:     cfg.PerHostLimit,
		IdleConnTimeout:     cfg.KeepaliveTimeout,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2: false,
	}

	var rt http.RoundTripper = transport
	if cfg.ConnectionLimit > 0 {
		rt = &limitedTransport{
			base: transport,
			sem:  semaphore.NewWeighted(int64(cfg.ConnectionLimit)),
		}
	}
	return &http.Client{
		Timeout:   cfg.TotalTimeout,
		Transport: rt,
	}
}

// limitedTransport caps the number of in-flight responses across all hosts.
// A slot is held until the response body is closed.
type limitedTransport struct {
	base *http.Transport
	sem  *semaphore.Weighted
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.sem.Acquire(req.Context(), 1); err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.sem.Release(1)
		return nil, err
	}
	resp.Body = &releasingBody{
		ReadCloser: resp.Body,
		release:    sync.OnceFunc(func() { t.sem.Release(1) }),
	}
	return resp, nil
}

func (t *limitedTransport) CloseIdleConnections() {
	t.base.CloseIdleConnections()
}

type releasingBody struct {
	io.ReadCloser
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}

// idleReader re-arms the read-timeout timer before every read so the timer
// measures how long the stream has been silent.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	ir.timer.Reset(ir.timeout)
	return ir.r.Read(p)
}
