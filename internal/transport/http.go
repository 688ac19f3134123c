package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/stampede-load/stampede/internal/tracing"
)

// maxCapturedBody caps how much of a response body is retained for
// variable capture.
const maxCapturedBody = 1024 * 1024

// HTTPRequester issues requests over net/http. A single instance is shared
// by all virtual users; the underlying transport pools connections.
type HTTPRequester struct {
	client *http.Client
	tracer *tracing.Provider
}

// HTTPOptions tune the shared HTTP client.
type HTTPOptions struct {
	Timeout time.Duration
	Tracing *tracing.Provider
}

// NewHTTPRequester builds a requester with a transport tuned for load
// generation: HTTP/2 enabled, generous idle pools, keep-alives on.
func NewHTTPRequester(opts HTTPOptions) *HTTPRequester {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	rt := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	timeout := opts.Timeout
	if timeout < 0 {
		timeout = 0
	}

	return &HTTPRequester{
		client: &http.Client{Timeout: timeout, Transport: rt},
		tracer: opts.Tracing,
	}
}

func (h *HTTPRequester) Do(ctx context.Context, req Request) (Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, err
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	var span tracing.Span
	if h.tracer != nil && h.tracer.Enabled() {
		ctx, span = h.tracer.StartRequestSpan(ctx, "http", req.Method+" "+req.URL)
		httpReq = httpReq.WithContext(ctx)
		if h.tracer.ShouldPropagate() {
			tracing.InjectHTTPHeaders(ctx, httpReq.Header)
		}
	}

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		if span != nil {
			tracing.EndSpan(span, err)
		}
		return Response{Latency: latency}, err
	}
	defer resp.Body.Close()

	captured, readErr := io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody))
	if readErr != nil {
		captured = nil
	}
	// Drain so the connection is reusable even past the capture cap.
	_, _ = io.Copy(io.Discard, resp.Body)

	size := resp.ContentLength
	if size < 0 {
		size = int64(len(captured))
	}

	if span != nil {
		tracing.EndSpan(span, nil,
			attribute.Int("http.response.status_code", resp.StatusCode),
			attribute.String("http.response.size", strconv.FormatInt(size, 10)),
		)
	}

	return Response{
		StatusCode: resp.StatusCode,
		Body:       captured,
		Bytes:      size,
		Latency:    latency,
	}, nil
}

func (h *HTTPRequester) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
