// Package auth holds the collaborator interfaces the realtime layer consumes
// from the rest of the client: a bearer credential source and an auth-state query.
// The realtime layer never refreshes or validates tokens itself.
package auth

import (
	"sync"
	"time"

	"github.com/mohdafzal1700/Doc-Door-sub002/logger"
	"github.com/mohdafzal1700/Doc-Door-sub002/tools/security"
	"go.uber.org/zap"
)

// TokenProvider returns a currently valid bearer credential, or false when none is available.
type TokenProvider interface {
	GetValidAccessToken() (string, bool)
}

// AuthState answers whether a user is signed in.
type AuthState interface {
	IsUserAuthenticated() bool
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func() (string, bool)

func (f TokenProviderFunc) GetValidAccessToken() (string, bool) { return f() }

// AuthStateFunc adapts a function to AuthState.
type AuthStateFunc func() bool

func (f AuthStateFunc) IsUserAuthenticated() bool { return f() }

// StaticProvider serves a token handed to it by the login flow (or a CLI flag).
// It reports the token as unavailable once its exp claim is within Skew.
type StaticProvider struct {
	mu     sync.RWMutex
	token  string
	info   security.TokenInfo
	opaque bool

	Skew  time.Duration
	Clock func() time.Time
}

// NewStaticProvider stores token. Tokens that are not JWTs are accepted as opaque
// credentials with no expiry.
func NewStaticProvider(token string) *StaticProvider {
	p := &StaticProvider{Skew: 30 * time.Second, Clock: time.Now}
	p.SetToken(token)
	return p
}

// SetToken replaces the credential, e.g. after the REST layer refreshed it.
func (p *StaticProvider) SetToken(token string) {
	info, err := security.Inspect(token)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
	p.info = info
	p.opaque = err != nil
	if err != nil && token != "" {
		logger.Debug("access token is not a jwt, treating as opaque", zap.Error(err))
	}
}

// Clear drops the credential (logout).
func (p *StaticProvider) Clear() { p.SetToken("") }

func (p *StaticProvider) GetValidAccessToken() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == "" {
		return "", false
	}
	if !p.opaque && p.info.Expired(p.now(), p.Skew) {
		return "", false
	}
	return p.token, true
}

// IsUserAuthenticated is true while a usable credential is held.
func (p *StaticProvider) IsUserAuthenticated() bool {
	_, ok := p.GetValidAccessToken()
	return ok
}

// Subject returns the sub claim of the current token, if any.
func (p *StaticProvider) Subject() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Subject
}

func (p *StaticProvider) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock()
}
