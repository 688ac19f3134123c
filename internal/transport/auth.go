package transport

import (
	"context"

	"github.com/stampede-load/stampede/internal/auth"
)

type authenticated struct {
	next     Requester
	provider auth.Provider
}

// Authenticated decorates next so every request carries a bearer token
// from the provider. Step-level Authorization headers win over the
// injected token.
func Authenticated(next Requester, provider auth.Provider) Requester {
	return &authenticated{next: next, provider: provider}
}

func (a *authenticated) Do(ctx context.Context, req Request) (Response, error) {
	if _, set := req.Headers["Authorization"]; !set {
		tok, err := a.provider.Token(ctx)
		if err != nil {
			return Response{}, err
		}
		headers := make(map[string]string, len(req.Headers)+1)
		for k, v := range req.Headers {
			headers[k] = v
		}
		headers["Authorization"] = "Bearer " + tok
		req.Headers = headers
	}
	return a.next.Do(ctx, req)
}

func (a *authenticated) Close() error {
	err := a.provider.Close()
	if nextErr := a.next.Close(); err == nil {
		err = nextErr
	}
	return err
}
