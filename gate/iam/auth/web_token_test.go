package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reefgate/reefgate/gate/iam/providers"
)

// fakeProvider validates nothing; it hands back canned claims or a canned
// error so the engine's sequencing can be tested in isolation.
type fakeProvider struct {
	name   string
	claims *providers.TokenClaims
	err    error
}

func (f *fakeProvider) Name() string                  { return f.name }
func (f *fakeProvider) Initialize(interface{}) error  { return nil }
func (f *fakeProvider) Authenticate(context.Context, string) (*providers.ExternalIdentity, error) {
	return nil, nil
}
func (f *fakeProvider) GetUserInfo(context.Context, string) (*providers.ExternalIdentity, error) {
	return nil, nil
}
func (f *fakeProvider) ValidateToken(context.Context, string) (*providers.TokenClaims, error) {
	return f.claims, f.err
}

type mapResolver map[string]providers.IdentityProvider

func (m mapResolver) ProviderForIssuer(issuer string) (providers.IdentityProvider, bool) {
	p, ok := m[issuer]
	return p, ok
}

func signedToken(t *testing.T, issuer string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": issuer,
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func webTokenRequest(token string) *Request {
	return NewRequest(map[string]string{ParamWebIdentityToken: token})
}

func TestWebTokenEngineApplicability(t *testing.T) {
	engine := NewWebTokenEngine(ParamTokenExtractor{}, mapResolver{}, WebIdentityApplier{})

	assert.False(t, engine.IsApplicable(NewRequest(nil)))
	assert.True(t, engine.IsApplicable(webTokenRequest("some-token")))
}

func TestWebTokenEngineGrantsValidToken(t *testing.T) {
	claims := &providers.TokenClaims{
		Subject:   "alice",
		Issuer:    "https://idp.example.com",
		Audience:  "sts.example.internal",
		ExpiresAt: time.Now().Add(5 * time.Minute),
		Provider:  "example-idp",
	}
	resolver := mapResolver{
		"https://idp.example.com": &fakeProvider{name: "example-idp", claims: claims},
	}
	engine := NewWebTokenEngine(ParamTokenExtractor{}, resolver, WebIdentityApplier{})

	result := engine.Authenticate(context.Background(), webTokenRequest(signedToken(t, "https://idp.example.com")))

	require.Equal(t, StatusGranted, result.Status)
	assert.Equal(t, KindWebIdentity, result.Identity.Kind)
	assert.Equal(t, "https://idp.example.com#alice", result.Identity.Principal)
	assert.Equal(t, "example-idp", result.Identity.Provider)
	assert.Same(t, claims, result.Identity.Claims)
}

func TestWebTokenEngineDeniesMalformedToken(t *testing.T) {
	engine := NewWebTokenEngine(ParamTokenExtractor{}, mapResolver{}, WebIdentityApplier{})

	result := engine.Authenticate(context.Background(), webTokenRequest("not-a-jwt"))

	assert.Equal(t, StatusDenied, result.Status)
	assert.ErrorIs(t, result.Reason, providers.ErrTokenMalformed)
}

func TestWebTokenEngineDeniesUnknownIssuer(t *testing.T) {
	engine := NewWebTokenEngine(ParamTokenExtractor{}, mapResolver{}, WebIdentityApplier{})

	result := engine.Authenticate(context.Background(), webTokenRequest(signedToken(t, "https://unknown.example.com")))

	assert.Equal(t, StatusDenied, result.Status)
	assert.ErrorIs(t, result.Reason, providers.ErrIssuerNotTrusted)
}

func TestWebTokenEngineDeniesProviderRejection(t *testing.T) {
	resolver := mapResolver{
		"https://idp.example.com": &fakeProvider{name: "example-idp", err: providers.ErrTokenExpired},
	}
	engine := NewWebTokenEngine(ParamTokenExtractor{}, resolver, WebIdentityApplier{})

	result := engine.Authenticate(context.Background(), webTokenRequest(signedToken(t, "https://idp.example.com")))

	assert.Equal(t, StatusDenied, result.Status)
	assert.ErrorIs(t, result.Reason, providers.ErrTokenExpired)
}

func TestUnverifiedIssuer(t *testing.T) {
	issuer, err := UnverifiedIssuer(signedToken(t, "https://idp.example.com"))
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com", issuer)

	_, err = UnverifiedIssuer("garbage")
	assert.ErrorIs(t, err, providers.ErrTokenMalformed)

	noIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"})
	signed, signErr := noIssuer.SignedString([]byte("k"))
	require.NoError(t, signErr)
	_, err = UnverifiedIssuer(signed)
	assert.ErrorIs(t, err, providers.ErrMissingClaims)
}
