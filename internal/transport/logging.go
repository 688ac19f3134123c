package transport

import "context"

// maxLoggedBody caps the response snippet carried in logged status errors.
const maxLoggedBody = 1024

// FailureLogger receives each failed request outcome.
type FailureLogger interface {
	LogFailure(err error)
}

type failureLogging struct {
	next   Requester
	logger FailureLogger
}

// WithFailureLogging decorates next so transport errors and error-status
// responses are reported to the logger as they happen.
func WithFailureLogging(next Requester, logger FailureLogger) Requester {
	return &failureLogging{next: next, logger: logger}
}

func (f *failureLogging) Do(ctx context.Context, req Request) (Response, error) {
	resp, err := f.next.Do(ctx, req)
	switch {
	case err != nil:
		f.logger.LogFailure(err)
	case resp.StatusCode >= 400:
		body := resp.Body
		if len(body) > maxLoggedBody {
			body = body[:maxLoggedBody]
		}
		f.logger.LogFailure(&StatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}
	return resp, err
}

func (f *failureLogging) Close() error {
	return f.next.Close()
}
