package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reefgate/reefgate/gate/iam/providers"
)

const (
	testIssuer   = "https://test.example.com"
	testClientID = "test-client-id"
)

// jwksTestServer serves a JWKS document for the given keys.
func jwksTestServer(t *testing.T, keys ...map[string]interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"keys": keys})
	}))
	t.Cleanup(server.Close)
	return server
}

func jwkFor(t *testing.T, kid string, pub *rsa.PublicKey) map[string]interface{} {
	t.Helper()
	return map[string]interface{}{
		"kty": "RSA",
		"kid": kid,
		"use": "sig",
		"alg": "RS256",
		"n":   encodePublicKey(t, pub),
		"e":   "AQAB",
	}
}

// encodePublicKey encodes the RSA modulus as base64url for a JWKS document.
func encodePublicKey(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()
	return base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
}

func newTestProvider(t *testing.T, jwksURL string) *OIDCProvider {
	t.Helper()
	provider := NewOIDCProvider("test-oidc")
	err := provider.Initialize(&OIDCConfig{
		Issuer:   testIssuer,
		ClientID: testClientID,
		JWKSUri:  jwksURL,
	})
	require.NoError(t, err)
	return provider
}

func signTestToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func defaultClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":    testIssuer,
		"sub":    "user-42",
		"aud":    testClientID,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"iat":    time.Now().Unix(),
		"email":  "user42@example.com",
		"name":   "User FortyTwo",
		"groups": []string{"developers", "oncall"},
	}
}

func TestOIDCProviderInitialization(t *testing.T) {
	tests := []struct {
		name    string
		config  *OIDCConfig
		wantErr bool
	}{
		{
			name: "valid config",
			config: &OIDCConfig{
				Issuer:   testIssuer,
				ClientID: testClientID,
			},
			wantErr: false,
		},
		{
			name:    "missing issuer",
			config:  &OIDCConfig{ClientID: testClientID},
			wantErr: true,
		},
		{
			name:    "missing client ID",
			config:  &OIDCConfig{Issuer: testIssuer},
			wantErr: true,
		},
		{
			name: "issuer without scheme",
			config: &OIDCConfig{
				Issuer:   "test.example.com",
				ClientID: testClientID,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewOIDCProvider("test")
			err := provider.Initialize(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOIDCProviderJWKSUriDefault(t *testing.T) {
	provider := NewOIDCProvider("test")
	config := &OIDCConfig{Issuer: testIssuer + "/", ClientID: testClientID}
	require.NoError(t, provider.Initialize(config))
	assert.Equal(t, testIssuer+"/.well-known/jwks.json", config.JWKSUri)
}

func TestOIDCProviderValidateToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := jwksTestServer(t, jwkFor(t, "kid-1", &key.PublicKey))
	provider := newTestProvider(t, server.URL)

	claims, err := provider.ValidateToken(context.Background(), signTestToken(t, key, "kid-1", defaultClaims()))
	require.NoError(t, err)

	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, testClientID, claims.Audience)
	assert.Equal(t, "test-oidc", claims.Provider)

	email, ok := claims.GetClaimString("email")
	assert.True(t, ok)
	assert.Equal(t, "user42@example.com", email)

	groups, ok := claims.GetClaimStringSlice("groups")
	assert.True(t, ok)
	assert.Equal(t, []string{"developers", "oncall"}, groups)
}

func TestOIDCProviderRejectsExpiredToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := jwksTestServer(t, jwkFor(t, "kid-1", &key.PublicKey))
	provider := newTestProvider(t, server.URL)

	claims := defaultClaims()
	claims["exp"] = time.Now().Add(-10 * time.Minute).Unix()

	_, err = provider.ValidateToken(context.Background(), signTestToken(t, key, "kid-1", claims))
	assert.ErrorIs(t, err, providers.ErrTokenExpired)
}

func TestOIDCProviderToleratesClockSkew(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := jwksTestServer(t, jwkFor(t, "kid-1", &key.PublicKey))
	provider := newTestProvider(t, server.URL)

	// Expired 30s ago, inside the default 60s leeway.
	claims := defaultClaims()
	claims["exp"] = time.Now().Add(-30 * time.Second).Unix()
	_, err = provider.ValidateToken(context.Background(), signTestToken(t, key, "kid-1", claims))
	assert.NoError(t, err)

	// Not valid for another 30s, also inside leeway.
	claims = defaultClaims()
	claims["nbf"] = time.Now().Add(30 * time.Second).Unix()
	_, err = provider.ValidateToken(context.Background(), signTestToken(t, key, "kid-1", claims))
	assert.NoError(t, err)

	// Beyond the leeway window.
	claims = defaultClaims()
	claims["exp"] = time.Now().Add(-2 * time.Minute).Unix()
	_, err = provider.ValidateToken(context.Background(), signTestToken(t, key, "kid-1", claims))
	assert.ErrorIs(t, err, providers.ErrTokenExpired)
}

func TestOIDCProviderRejectsWrongIssuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := jwksTestServer(t, jwkFor(t, "kid-1", &key.PublicKey))
	provider := newTestProvider(t, server.URL)

	claims := defaultClaims()
	claims["iss"] = "https://evil.example.com"

	_, err = provider.ValidateToken(context.Background(), signTestToken(t, key, "kid-1", claims))
	assert.ErrorIs(t, err, providers.ErrIssuerNotTrusted)
}

func TestOIDCProviderRejectsWrongAudience(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := jwksTestServer(t, jwkFor(t, "kid-1", &key.PublicKey))
	provider := newTestProvider(t, server.URL)

	claims := defaultClaims()
	claims["aud"] = "some-other-client"

	_, err = provider.ValidateToken(context.Background(), signTestToken(t, key, "kid-1", claims))
	assert.ErrorIs(t, err, providers.ErrAudienceMismatch)
}

func TestOIDCProviderAcceptsExtraAudience(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := jwksTestServer(t, jwkFor(t, "kid-1", &key.PublicKey))
	provider := NewOIDCProvider("test-oidc")
	require.NoError(t, provider.Initialize(&OIDCConfig{
		Issuer:         testIssuer,
		ClientID:       testClientID,
		JWKSUri:        server.URL,
		ExtraAudiences: []string{"sts.reefgate.internal"},
	}))

	claims := defaultClaims()
	claims["aud"] = "sts.reefgate.internal"

	verified, err := provider.ValidateToken(context.Background(), signTestToken(t, key, "kid-1", claims))
	require.NoError(t, err)
	assert.Equal(t, "sts.reefgate.internal", verified.Audience)
}

func TestOIDCProviderRejectsBadSignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := jwksTestServer(t, jwkFor(t, "kid-1", &key.PublicKey))
	provider := newTestProvider(t, server.URL)

	_, err = provider.ValidateToken(context.Background(), signTestToken(t, otherKey, "kid-1", defaultClaims()))
	assert.ErrorIs(t, err, providers.ErrSignatureInvalid)
}

func TestOIDCProviderRejectsNonRSAAlgorithm(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := jwksTestServer(t, jwkFor(t, "kid-1", &key.PublicKey))
	provider := newTestProvider(t, server.URL)

	hsToken := jwt.NewWithClaims(jwt.SigningMethodHS256, defaultClaims())
	signed, err := hsToken.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = provider.ValidateToken(context.Background(), signed)
	assert.Error(t, err)
}

func TestOIDCProviderRejectsMalformedToken(t *testing.T) {
	server := jwksTestServer(t)
	provider := newTestProvider(t, server.URL)

	_, err := provider.ValidateToken(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, providers.ErrTokenMalformed)
}

func TestOIDCProviderRefreshesOnUnknownKid(t *testing.T) {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	// Serve the old key first, then the rotated key on subsequent fetches.
	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		key := jwkFor(t, "kid-old", &oldKey.PublicKey)
		if fetches > 1 {
			key = jwkFor(t, "kid-new", &newKey.PublicKey)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"keys": []map[string]interface{}{key}})
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)

	// Warm the cache with the old key.
	_, err = provider.ValidateToken(context.Background(), signTestToken(t, oldKey, "kid-old", defaultClaims()))
	require.NoError(t, err)

	// A token signed with the rotated key forces a refresh despite the
	// cache still being fresh.
	_, err = provider.ValidateToken(context.Background(), signTestToken(t, newKey, "kid-new", defaultClaims()))
	assert.NoError(t, err)
	assert.Equal(t, 2, fetches)
}

func TestOIDCProviderJWKSFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	provider := newTestProvider(t, server.URL)

	_, err = provider.ValidateToken(context.Background(), signTestToken(t, key, "kid-1", defaultClaims()))
	assert.ErrorIs(t, err, ErrJWKSFetch)
}

func TestOIDCProviderAuthenticate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := jwksTestServer(t, jwkFor(t, "kid-1", &key.PublicKey))
	provider := newTestProvider(t, server.URL)

	identity, err := provider.Authenticate(context.Background(), signTestToken(t, key, "kid-1", defaultClaims()))
	require.NoError(t, err)

	assert.Equal(t, "user-42", identity.UserID)
	assert.Equal(t, "user42@example.com", identity.Email)
	assert.Equal(t, "User FortyTwo", identity.DisplayName)
	assert.Equal(t, []string{"developers", "oncall"}, identity.Groups)
	assert.Equal(t, "test-oidc", identity.Provider)
	require.NotNil(t, identity.TokenExpiration)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *identity.TokenExpiration, time.Minute)
}

func TestOIDCProviderClaimsMapping(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := jwksTestServer(t, jwkFor(t, "kid-1", &key.PublicKey))
	provider := NewOIDCProvider("test-oidc")
	require.NoError(t, provider.Initialize(&OIDCConfig{
		Issuer:   testIssuer,
		ClientID: testClientID,
		JWKSUri:  server.URL,
		ClaimsMapping: map[string]string{
			"email":  "mail",
			"groups": "roles",
		},
	}))

	claims := defaultClaims()
	claims["mail"] = "mapped@example.com"
	claims["roles"] = []string{"admins"}

	identity, err := provider.Authenticate(context.Background(), signTestToken(t, key, "kid-1", claims))
	require.NoError(t, err)
	assert.Equal(t, "mapped@example.com", identity.Email)
	assert.Equal(t, []string{"admins"}, identity.Groups)
}

func TestOIDCProviderRoleMapping(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := jwksTestServer(t, jwkFor(t, "kid-1", &key.PublicKey))
	provider := NewOIDCProvider("test-oidc")
	require.NoError(t, provider.Initialize(&OIDCConfig{
		Issuer:   testIssuer,
		ClientID: testClientID,
		JWKSUri:  server.URL,
		RoleMapping: &providers.RoleMapping{
			Rules: []providers.MappingRule{
				{Claim: "groups", Value: "developers", Role: "arn:aws:iam::123456789012:role/Developer"},
			},
			DefaultRole: "arn:aws:iam::123456789012:role/ReadOnly",
		},
	}))

	identity, err := provider.Authenticate(context.Background(), signTestToken(t, key, "kid-1", defaultClaims()))
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:iam::123456789012:role/Developer", identity.Attributes[providers.AttrRole])

	// No rule matches: the default role applies
	claims := defaultClaims()
	claims["groups"] = []string{"guests"}
	identity, err = provider.Authenticate(context.Background(), signTestToken(t, key, "kid-1", claims))
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:iam::123456789012:role/ReadOnly", identity.Attributes[providers.AttrRole])
}

func TestOIDCProviderRequiresInitialization(t *testing.T) {
	provider := NewOIDCProvider("test")

	_, err := provider.ValidateToken(context.Background(), "some-token")
	assert.Error(t, err)

	_, err = provider.Authenticate(context.Background(), "some-token")
	assert.Error(t, err)
}

func TestJWKSKeySetLookup(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	doc := &jwksDocument{Keys: []jwkKey{{
		Kty: "RSA",
		Kid: "only-key",
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   "AQAB",
	}}}

	keySet, err := newJWKSKeySet(doc)
	require.NoError(t, err)

	_, ok := keySet.lookup("only-key")
	assert.True(t, ok)

	// Missing kid header falls back to the sole key.
	_, ok = keySet.lookup("")
	assert.True(t, ok)

	_, ok = keySet.lookup("other-key")
	assert.False(t, ok)
}

func TestJWKSKeySetRejectsEmptyDocument(t *testing.T) {
	_, err := newJWKSKeySet(&jwksDocument{})
	assert.Error(t, err)

	// Encryption keys are skipped; a document with only enc keys is unusable.
	_, err = newJWKSKeySet(&jwksDocument{Keys: []jwkKey{{Kty: "RSA", Kid: "enc", Use: "enc"}}})
	assert.Error(t, err)
}
