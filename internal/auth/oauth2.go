package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials implements the OAuth2 client credentials flow.
// Tokens are cached and refreshed transparently by the underlying
// token source; concurrent callers share a single refresh.
type ClientCredentials struct {
	source oauth2.TokenSource
}

// ClientCredentialsOptions configure the token endpoint.
type ClientCredentialsOptions struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

func NewClientCredentials(opts ClientCredentialsOptions) (*ClientCredentials, error) {
	if opts.TokenURL == "" {
		return nil, fmt.Errorf("auth: token URL is required")
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("auth: client ID is required")
	}
	cfg := &clientcredentials.Config{
		TokenURL:     opts.TokenURL,
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		Scopes:       opts.Scopes,
	}
	// The config token source refetches on every call; ReuseTokenSource
	// adds expiry-aware caching on top.
	src := oauth2.ReuseTokenSource(nil, cfg.TokenSource(context.Background()))
	return &ClientCredentials{source: src}, nil
}

// Token returns a valid access token, fetching or refreshing as needed.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	tok, err := c.source.Token()
	if err != nil {
		return "", fmt.Errorf("auth: fetch token: %w", err)
	}
	return tok.AccessToken, nil
}

func (c *ClientCredentials) Close() error { return nil }
