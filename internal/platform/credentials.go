package platform

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/fieldops/fieldsync/internal/errors"
)

// CredentialProvider supplies a valid bearer credential for the external
// platform. The engine treats it as opaque; Invalidate asks the provider to
// discard any cached credential so the next Token call fetches a fresh one.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// TokenSourceProvider adapts an oauth2.TokenSource to CredentialProvider
type TokenSourceProvider struct {
	base oauth2.TokenSource
	mu   sync.Mutex
	cur  oauth2.TokenSource
}

// NewTokenSourceProvider creates a provider backed by the given token source
func NewTokenSourceProvider(ts oauth2.TokenSource) *TokenSourceProvider {
	return &TokenSourceProvider{
		base: ts,
		cur:  oauth2.ReuseTokenSource(nil, ts),
	}
}

// NewStaticProvider creates a provider for a fixed bearer token
func NewStaticProvider(token string) *TokenSourceProvider {
	return NewTokenSourceProvider(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// Token returns the current bearer credential
func (p *TokenSourceProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	src := p.cur
	p.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", errors.NewCredentialError("failed to obtain platform credential", err)
	}
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next Token call refreshes
func (p *TokenSourceProvider) Invalidate() {
	p.mu.Lock()
	p.cur = oauth2.ReuseTokenSource(nil, p.base)
	p.mu.Unlock()
}
