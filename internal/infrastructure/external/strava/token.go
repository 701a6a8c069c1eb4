package strava

import (
	"context"
	"errors"
)

// ErrNoAccessToken is returned when no provider token is available for a user.
var ErrNoAccessToken = errors.New("strava: no access token")

// TokenSource yields the provider access token for a user.
type TokenSource interface {
	Token(ctx context.Context, userID string) (string, error)
}

type tokenKey struct{}

// WithAccessToken attaches a caller-supplied access token to ctx.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// ContextTokenSource reads the token placed by WithAccessToken. Tokens are
// never stored.
type ContextTokenSource struct{}

// Token implements TokenSource.
func (ContextTokenSource) Token(ctx context.Context, _ string) (string, error) {
	if tok, ok := ctx.Value(tokenKey{}).(string); ok && tok != "" {
		return tok, nil
	}
	return "", ErrNoAccessToken
}
