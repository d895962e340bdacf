package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mohdafzal1700/Doc-Door-sub002/tools/security"
)

func TestStaticProvider_Opaque(t *testing.T) {
	p := NewStaticProvider("opaque-token")
	tok, ok := p.GetValidAccessToken()
	assert.True(t, ok)
	assert.Equal(t, "opaque-token", tok)
	assert.True(t, p.IsUserAuthenticated())
	assert.Equal(t, "", p.Subject())

	p.Clear()
	_, ok = p.GetValidAccessToken()
	assert.False(t, ok)
	assert.False(t, p.IsUserAuthenticated())
}

func TestStaticProvider_JWTExpiry(t *testing.T) {
	tok, exp, err := security.Generate(security.Options{Secret: []byte("k"), TTL: time.Minute}, "7", nil)
	assert.NoError(t, err)

	now := time.Now()
	p := NewStaticProvider(tok)
	p.Clock = func() time.Time { return now }
	assert.True(t, p.IsUserAuthenticated())
	assert.Equal(t, "7", p.Subject())

	// inside the skew the token is already unusable
	now = exp.Add(-p.Skew / 2)
	_, ok := p.GetValidAccessToken()
	assert.False(t, ok)
}

func TestFuncAdapters(t *testing.T) {
	var tp TokenProvider = TokenProviderFunc(func() (string, bool) { return "x", true })
	var st AuthState = AuthStateFunc(func() bool { return false })
	tok, ok := tp.GetValidAccessToken()
	assert.Equal(t, "x", tok)
	assert.True(t, ok)
	assert.False(t, st.IsUserAuthenticated())
}
