// Package auth supplies bearer tokens for authenticated load targets.
package auth

import "context"

// Provider yields a valid bearer token for outgoing requests. Providers
// cache and refresh tokens internally; Token is safe for concurrent use
// by many virtual users.
type Provider interface {
	Token(ctx context.Context) (string, error)
	Close() error
}

// Static returns a provider that always yields the given pre-issued
// token, for targets where the credential is obtained out of band.
func Static(token string) Provider {
	return staticToken(token)
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }
func (s staticToken) Close() error                          { return nil }
