package sts

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// GenerateSessionId generates a unique 32-character session identifier.
func GenerateSessionId() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// PolicyDigest returns the SHA-256 fingerprint of a policy document,
// hex-encoded. Empty input yields an empty digest.
func PolicyDigest(policy string) string {
	if policy == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(policy))
	return hex.EncodeToString(sum[:])
}

// TokenGenerator mints and verifies HMAC-signed session tokens. The same
// signing key must be shared by every gateway instance; tokens are then
// self-verifying without shared session state.
type TokenGenerator struct {
	signingKey []byte
	issuer     string
}

// NewTokenGenerator creates a token generator over a signing key and issuer.
func NewTokenGenerator(signingKey []byte, issuer string) *TokenGenerator {
	return &TokenGenerator{
		signingKey: signingKey,
		issuer:     issuer,
	}
}

// GenerateJWTWithClaims signs the full session claims into a compact token.
// The generator's issuer always wins over whatever the claims carry, so a
// token can never be minted under a foreign issuer.
func (t *TokenGenerator) GenerateJWTWithClaims(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("claims cannot be nil")
	}

	claims.Issuer = t.issuer

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ValidateJWTWithClaims verifies the token signature, algorithm, expiry and
// issuer, and returns the embedded session claims. A single flipped byte
// anywhere in the token fails the signature check.
func (t *TokenGenerator) ValidateJWTWithClaims(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf(ErrSessionTokenCannotBeEmpty)
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.signingKey, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(t.issuer),
	)
	if err != nil {
		return nil, mapSessionTokenError(err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token is not valid", ErrTypedSignatureInvalid)
	}

	if !claims.IsValid() {
		return nil, fmt.Errorf("%w: incomplete session claims", ErrTypedTokenMalformed)
	}

	return claims, nil
}

// GenerateSessionToken mints a minimal session token carrying only the
// session id and expiry.
func (t *TokenGenerator) GenerateSessionToken(sessionId string, expiresAt time.Time) (string, error) {
	if sessionId == "" {
		return "", fmt.Errorf("session id cannot be empty")
	}

	claims := NewSessionClaims(sessionId, t.issuer, expiresAt)
	claims.Principal = sessionId

	return t.GenerateJWTWithClaims(claims)
}

// SessionTokenInfo is the result of validating a minimal session token.
type SessionTokenInfo struct {
	SessionId string
	ExpiresAt time.Time
}

// ValidateSessionToken verifies a session token and returns its identifying
// information.
func (t *TokenGenerator) ValidateSessionToken(tokenString string) (*SessionTokenInfo, error) {
	claims, err := t.ValidateJWTWithClaims(tokenString)
	if err != nil {
		return nil, err
	}
	return &SessionTokenInfo{
		SessionId: claims.SessionId,
		ExpiresAt: claims.GetExpiresAt(),
	}, nil
}

// mapSessionTokenError translates jwt library errors into typed sentinels.
func mapSessionTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTypedTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrTypedSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrTypedInvalidIssuer, err)
	default:
		return fmt.Errorf("%w: %v", ErrTypedTokenMalformed, err)
	}
}

// CredentialGenerator derives temporary credentials from session ids. The
// derivation is deterministic: given the same session id, every instance
// produces the same access key and secret.
type CredentialGenerator struct{}

// NewCredentialGenerator creates a credential generator.
func NewCredentialGenerator() *CredentialGenerator {
	return &CredentialGenerator{}
}

// GenerateTemporaryCredentials derives the credential pair for a session.
// The access key uses the ASIA prefix reserved for temporary credentials,
// never AKIA. The returned credentials carry a placeholder session token;
// the caller replaces it with the signed session token.
func (g *CredentialGenerator) GenerateTemporaryCredentials(sessionId string, expiresAt time.Time) (*Credentials, error) {
	if sessionId == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}

	accessSum := sha256.Sum256([]byte(sessionId + "-access"))
	accessKeyId := "ASIA" + strings.ToUpper(hex.EncodeToString(accessSum[:8]))

	secretSum := sha256.Sum256([]byte(sessionId + "-secret"))
	secretAccessKey := base64.StdEncoding.EncodeToString(secretSum[:])

	tokenSum := sha256.Sum256([]byte(sessionId + "-token"))
	sessionToken := "ST" + hex.EncodeToString(tokenSum[:16])

	return &Credentials{
		AccessKeyId:     accessKeyId,
		SecretAccessKey: secretAccessKey,
		SessionToken:    sessionToken,
		Expiration:      expiresAt,
	}, nil
}
