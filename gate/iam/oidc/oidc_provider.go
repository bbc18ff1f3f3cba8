// Package oidc implements the OpenID Connect identity provider: JWKS-backed
// token verification with a TTL'd key cache and single-flight refresh.
package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
	"golang.org/x/sync/singleflight"

	"github.com/reefgate/reefgate/gate/iam/providers"
)

// ErrJWKSFetch marks infrastructure failures while retrieving the provider's
// signing keys. These are backend errors, not authentication denials, and
// are not retried here; retry policy belongs to the caller.
var ErrJWKSFetch = errors.New("failed to fetch JWKS")

// Defaults for optional OIDC configuration values.
const (
	DefaultClockSkewSeconds    = 60
	DefaultJWKSCacheTTLSeconds = 3600
	DefaultFetchTimeoutSeconds = 10
)

// OIDCProvider implements OpenID Connect authentication
type OIDCProvider struct {
	name        string
	config      *OIDCConfig
	initialized bool
	httpClient  *http.Client

	// jwksCache holds the current immutable key snapshot; jwksMu guards
	// only the pointer swap. jwksGroup coalesces concurrent refreshes so a
	// refresh-in-flight never triggers duplicate fetches for this provider.
	jwksMu    sync.RWMutex
	jwksCache *jwksKeySet
	jwksGroup singleflight.Group
}

// OIDCConfig holds OIDC provider configuration
type OIDCConfig struct {
	// Issuer is the OIDC issuer URL
	Issuer string `json:"issuer"`

	// ClientID is the OAuth2 client ID and the primary accepted audience
	ClientID string `json:"clientId"`

	// ClientSecret is the OAuth2 client secret (optional for public clients)
	ClientSecret string `json:"clientSecret,omitempty"`

	// JWKSUri is the JSON Web Key Set URI
	JWKSUri string `json:"jwksUri,omitempty"`

	// UserInfoUri is the UserInfo endpoint URI
	UserInfoUri string `json:"userInfoUri,omitempty"`

	// Scopes are the OAuth2 scopes to request
	Scopes []string `json:"scopes,omitempty"`

	// ExtraAudiences are additional accepted aud values beyond ClientID
	ExtraAudiences []string `json:"extraAudiences,omitempty"`

	// ClockSkewSeconds is the tolerance applied to exp/nbf validation
	ClockSkewSeconds int `json:"clockSkewSeconds,omitempty"`

	// JWKSCacheTTLSeconds is the signing-key cache lifetime
	JWKSCacheTTLSeconds int `json:"jwksCacheTTLSeconds,omitempty"`

	// JWKSFetchTimeoutSeconds bounds a single JWKS fetch
	JWKSFetchTimeoutSeconds int `json:"jwksFetchTimeoutSeconds,omitempty"`

	// RoleMapping defines how to map OIDC claims to roles
	RoleMapping *providers.RoleMapping `json:"roleMapping,omitempty"`

	// ClaimsMapping defines how to map OIDC claims to identity attributes
	ClaimsMapping map[string]string `json:"claimsMapping,omitempty"`
}

// NewOIDCProvider creates a new OIDC provider
func NewOIDCProvider(name string) *OIDCProvider {
	return &OIDCProvider{
		name: name,
	}
}

// Name returns the provider name
func (p *OIDCProvider) Name() string {
	return p.name
}

// GetIssuer returns the configured issuer, enabling issuer-based provider
// lookup by the STS service.
func (p *OIDCProvider) GetIssuer() string {
	if p.config == nil {
		return ""
	}
	return p.config.Issuer
}

// Initialize initializes the OIDC provider with configuration
func (p *OIDCProvider) Initialize(config interface{}) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	oidcConfig, ok := config.(*OIDCConfig)
	if !ok {
		return fmt.Errorf("invalid config type for OIDC provider")
	}

	if err := p.validateConfig(oidcConfig); err != nil {
		return fmt.Errorf("invalid OIDC configuration: %w", err)
	}

	p.config = oidcConfig
	p.httpClient = &http.Client{Timeout: p.fetchTimeout()}
	p.initialized = true
	return nil
}

// validateConfig validates the OIDC configuration
func (p *OIDCProvider) validateConfig(config *OIDCConfig) error {
	if config.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}

	issuerURL, err := url.Parse(config.Issuer)
	if err != nil || (issuerURL.Scheme != "http" && issuerURL.Scheme != "https") {
		return fmt.Errorf("invalid issuer URL format: %s", config.Issuer)
	}

	if config.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}

	if config.JWKSUri == "" {
		config.JWKSUri = strings.TrimSuffix(config.Issuer, "/") + "/.well-known/jwks.json"
	}

	return nil
}

func (p *OIDCProvider) clockSkew() time.Duration {
	if p.config != nil && p.config.ClockSkewSeconds > 0 {
		return time.Duration(p.config.ClockSkewSeconds) * time.Second
	}
	return DefaultClockSkewSeconds * time.Second
}

func (p *OIDCProvider) cacheTTL() time.Duration {
	if p.config != nil && p.config.JWKSCacheTTLSeconds > 0 {
		return time.Duration(p.config.JWKSCacheTTLSeconds) * time.Second
	}
	return DefaultJWKSCacheTTLSeconds * time.Second
}

func (p *OIDCProvider) fetchTimeout() time.Duration {
	if p.config != nil && p.config.JWKSFetchTimeoutSeconds > 0 {
		return time.Duration(p.config.JWKSFetchTimeoutSeconds) * time.Second
	}
	return DefaultFetchTimeoutSeconds * time.Second
}

// acceptedAudiences returns the audiences this provider accepts.
func (p *OIDCProvider) acceptedAudiences() []string {
	return append([]string{p.config.ClientID}, p.config.ExtraAudiences...)
}

// Authenticate authenticates a user with an OIDC token
func (p *OIDCProvider) Authenticate(ctx context.Context, token string) (*providers.ExternalIdentity, error) {
	if !p.initialized {
		return nil, fmt.Errorf("provider not initialized")
	}

	if token == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	claims, err := p.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	return p.identityFromClaims(claims), nil
}

// identityFromClaims maps verified claims to an external identity, honoring
// any configured claim-name overrides.
func (p *OIDCProvider) identityFromClaims(claims *providers.TokenClaims) *providers.ExternalIdentity {
	emailClaim, nameClaim, groupsClaim := "email", "name", "groups"
	if p.config.ClaimsMapping != nil {
		if v, ok := p.config.ClaimsMapping["email"]; ok {
			emailClaim = v
		}
		if v, ok := p.config.ClaimsMapping["displayName"]; ok {
			nameClaim = v
		}
		if v, ok := p.config.ClaimsMapping["groups"]; ok {
			groupsClaim = v
		}
	}

	email, _ := claims.GetClaimString(emailClaim)
	displayName, _ := claims.GetClaimString(nameClaim)
	groups, _ := claims.GetClaimStringSlice(groupsClaim)

	expiration := claims.ExpiresAt
	identity := &providers.ExternalIdentity{
		UserID:          claims.Subject,
		Email:           email,
		DisplayName:     displayName,
		Groups:          groups,
		Provider:        p.name,
		TokenExpiration: &expiration,
	}
	if role, ok := p.config.RoleMapping.MapRole(claims); ok {
		identity.Attributes = map[string]string{providers.AttrRole: role}
	}
	return identity
}

// GetUserInfo retrieves user information by user ID. The UserInfo endpoint
// needs the end user's access token, which the gateway does not hold, so
// lookups are answered from token claims only.
func (p *OIDCProvider) GetUserInfo(ctx context.Context, userID string) (*providers.ExternalIdentity, error) {
	if !p.initialized {
		return nil, fmt.Errorf("provider not initialized")
	}

	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}

	return nil, fmt.Errorf("user info lookup requires a token; authenticate instead")
}

// ValidateToken validates an OIDC JWT: signature against the provider's
// JWKS, then expiry/not-before with clock-skew tolerance, then issuer and
// audience, and finally builds immutable claims from the verified payload.
func (p *OIDCProvider) ValidateToken(ctx context.Context, token string) (*providers.TokenClaims, error) {
	if !p.initialized {
		return nil, fmt.Errorf("provider not initialized")
	}

	if token == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	mapClaims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, mapClaims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return p.signingKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(p.clockSkew()),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, p.mapValidationError(err)
	}
	if !parsed.Valid {
		return nil, providers.ErrSignatureInvalid
	}

	issuer, _ := mapClaims.GetIssuer()
	if issuer != p.config.Issuer {
		return nil, fmt.Errorf("%w: %s", providers.ErrIssuerNotTrusted, issuer)
	}

	audiences, _ := mapClaims.GetAudience()
	audience, ok := p.matchAudience(audiences)
	if !ok {
		return nil, fmt.Errorf("%w: token audience %v not accepted", providers.ErrAudienceMismatch, []string(audiences))
	}

	subject, _ := mapClaims.GetSubject()
	if subject == "" {
		return nil, fmt.Errorf("%w: sub", providers.ErrMissingClaims)
	}

	claims := &providers.TokenClaims{
		Subject:  subject,
		Issuer:   issuer,
		Audience: audience,
		Provider: p.name,
		Claims:   make(map[string]interface{}, len(mapClaims)),
	}
	if exp, _ := mapClaims.GetExpirationTime(); exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, _ := mapClaims.GetIssuedAt(); iat != nil {
		claims.IssuedAt = iat.Time
	}
	if nbf, _ := mapClaims.GetNotBefore(); nbf != nil {
		claims.NotBefore = nbf.Time
	}
	for k, v := range mapClaims {
		claims.Claims[k] = v
	}

	return claims, nil
}

// mapValidationError translates jwt library errors into the typed sentinels
// the STS layer matches on. Key-fetch failures pass through as backend
// errors rather than denials.
func (p *OIDCProvider) mapValidationError(err error) error {
	switch {
	case errors.Is(err, ErrJWKSFetch):
		return err
	case errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", providers.ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", providers.ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", providers.ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", providers.ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", providers.ErrTokenMalformed, err)
	}
}

func (p *OIDCProvider) matchAudience(audiences jwt.ClaimStrings) (string, bool) {
	for _, accepted := range p.acceptedAudiences() {
		for _, aud := range audiences {
			if aud == accepted {
				return aud, true
			}
		}
	}
	return "", false
}

// signingKey resolves the verification key for kid. The cached snapshot is
// consulted under a read lock; on a miss or an expired snapshot the key set
// is refreshed, with concurrent refreshes coalesced by singleflight. An
// unknown kid on a fresh snapshot forces one refresh to pick up rotated
// keys before failing.
func (p *OIDCProvider) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	p.jwksMu.RLock()
	cached := p.jwksCache
	p.jwksMu.RUnlock()

	if !cached.expired(p.cacheTTL()) {
		if key, ok := cached.lookup(kid); ok {
			return key, nil
		}
	}

	refreshed, err := p.refreshJWKS(ctx, cached)
	if err != nil {
		return nil, err
	}

	key, ok := refreshed.lookup(kid)
	if !ok {
		return nil, fmt.Errorf("%w: no key for kid %q", providers.ErrSignatureInvalid, kid)
	}
	return key, nil
}

// refreshJWKS installs a new key snapshot. stale is the snapshot the caller
// observed; if another goroutine already replaced it, the replacement is
// reused without another fetch.
func (p *OIDCProvider) refreshJWKS(ctx context.Context, stale *jwksKeySet) (*jwksKeySet, error) {
	v, err, _ := p.jwksGroup.Do("jwks", func() (interface{}, error) {
		p.jwksMu.RLock()
		current := p.jwksCache
		p.jwksMu.RUnlock()
		if current != stale && current != nil {
			return current, nil
		}

		doc, err := p.fetchJWKS(ctx)
		if err != nil {
			return nil, err
		}
		keySet, err := newJWKSKeySet(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrJWKSFetch, err)
		}

		p.jwksMu.Lock()
		p.jwksCache = keySet
		p.jwksMu.Unlock()

		glog.V(2).Infof("refreshed JWKS for provider %s: %d keys", p.name, len(keySet.keys))
		return keySet, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*jwksKeySet), nil
}

// fetchJWKS retrieves and decodes the provider's key set document.
func (p *OIDCProvider) fetchJWKS(ctx context.Context) (*jwksDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.JWKSUri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d from %s", ErrJWKSFetch, resp.StatusCode, p.config.JWKSUri)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JWKS document: %v", ErrJWKSFetch, err)
	}
	return &doc, nil
}
