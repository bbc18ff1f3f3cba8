package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/reefgate/reefgate/gate/iam/providers"
)

// ParamWebIdentityToken is the request parameter carrying a federated
// identity token.
const ParamWebIdentityToken = "WebIdentityToken"

// TokenExtractor pulls the raw bearer token, if any, out of a request.
type TokenExtractor interface {
	GetToken(r *Request) string
}

// ParamTokenExtractor extracts the token from a named request parameter.
type ParamTokenExtractor struct {
	ParamName string
}

// GetToken returns the token parameter value.
func (e ParamTokenExtractor) GetToken(r *Request) string {
	name := e.ParamName
	if name == "" {
		name = ParamWebIdentityToken
	}
	return r.Param(name)
}

// IdentityApplier turns validated claims into an internal identity.
type IdentityApplier interface {
	ApplyWebIdentity(claims *providers.TokenClaims) (*Identity, error)
}

// ProviderResolver maps a token issuer to the identity provider configured
// for it.
type ProviderResolver interface {
	ProviderForIssuer(issuer string) (providers.IdentityProvider, bool)
}

// WebIdentityApplier is the default applier for federated tokens.
type WebIdentityApplier struct{}

// ApplyWebIdentity builds a web identity whose principal descriptor binds
// the issuer and subject together, so two providers with colliding subjects
// never map to the same principal.
func (WebIdentityApplier) ApplyWebIdentity(claims *providers.TokenClaims) (*Identity, error) {
	if claims == nil || claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", providers.ErrMissingClaims)
	}
	return &Identity{
		Principal: claims.Issuer + "#" + claims.Subject,
		Kind:      KindWebIdentity,
		Provider:  claims.Provider,
		Claims:    claims,
	}, nil
}

// WebTokenEngine authenticates requests that carry a web identity token.
// Token extraction, provider resolution and identity application are
// injected capabilities; the engine only sequences them.
type WebTokenEngine struct {
	extractor TokenExtractor
	resolver  ProviderResolver
	applier   IdentityApplier
}

// NewWebTokenEngine creates a web token engine over the given capabilities.
func NewWebTokenEngine(extractor TokenExtractor, resolver ProviderResolver, applier IdentityApplier) *WebTokenEngine {
	return &WebTokenEngine{
		extractor: extractor,
		resolver:  resolver,
		applier:   applier,
	}
}

// Name returns the engine name.
func (e *WebTokenEngine) Name() string {
	return "auth.sts.WebTokenEngine"
}

// IsApplicable reports whether the request carries a candidate token.
func (e *WebTokenEngine) IsApplicable(r *Request) bool {
	return e.extractor.GetToken(r) != ""
}

// Authenticate validates the extracted token:
// structural decode, issuer-to-provider resolution, then full validation
// (signature, expiry, audience) by the resolved provider, and finally
// identity application. Each failure maps to a typed denial.
func (e *WebTokenEngine) Authenticate(ctx context.Context, r *Request) Result {
	token := e.extractor.GetToken(r)
	if token == "" {
		return NotApplicable()
	}

	issuer, err := UnverifiedIssuer(token)
	if err != nil {
		return Denied(err)
	}

	provider, ok := e.resolver.ProviderForIssuer(issuer)
	if !ok {
		return Denied(fmt.Errorf("%w: %s", providers.ErrIssuerNotTrusted, issuer))
	}

	claims, err := provider.ValidateToken(ctx, token)
	if err != nil {
		return Denied(fmt.Errorf("token validation failed for issuer %s: %w", issuer, err))
	}

	identity, err := e.applier.ApplyWebIdentity(claims)
	if err != nil {
		return Denied(err)
	}

	return Granted(identity)
}

// UnverifiedIssuer extracts the iss claim from a token without verifying the
// signature. It only selects which provider validates the token; nothing is
// trusted until that provider verifies the signature.
func UnverifiedIssuer(token string) (string, error) {
	parsed, _, err := new(jwt.Parser).ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", providers.ErrTokenMalformed, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: unreadable claims", providers.ErrTokenMalformed)
	}

	issuer, ok := claims["iss"].(string)
	if !ok || issuer == "" {
		return "", fmt.Errorf("%w: iss", providers.ErrMissingClaims)
	}

	return issuer, nil
}
