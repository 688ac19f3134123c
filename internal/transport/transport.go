// Package transport abstracts the "issue one request" capability the load
// engine consumes. The engine only needs status, latency, and byte size
// back; adapters exist for HTTP, WebSocket, and gRPC targets.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stampede-load/stampede/internal/metrics"
)

// Request is a fully resolved request: templates are already substituted
// by the time it reaches a Requester.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response carries what the engine needs from a completed request. Body is
// retained (capped) only so capture rules can run; the aggregator never
// sees it.
type Response struct {
	StatusCode int
	Body       []byte
	Bytes      int64
	Latency    time.Duration
}

// Requester issues a single request. Implementations must be safe for
// concurrent use by many virtual users and must honor ctx cancellation
// only between requests, never by corrupting an in-flight outcome.
type Requester interface {
	Do(ctx context.Context, req Request) (Response, error)
	Close() error
}

// StatusError marks a response that completed with an error status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Classify buckets a request outcome. err takes precedence over code:
// a transport failure has no meaningful status code.
func Classify(code int, err error) metrics.Classification {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return metrics.ClassTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return metrics.ClassTimeout
		}
		if st, ok := status.FromError(err); ok && st.Code() == codes.DeadlineExceeded {
			return metrics.ClassTimeout
		}
		return metrics.ClassConnectionError
	}
	switch {
	case code >= 500:
		return metrics.ClassServerError
	case code >= 400:
		return metrics.ClassClientError
	default:
		return metrics.ClassSuccess
	}
}
