package providers

import "errors"

// Typed sentinel errors for token validation failures. Callers match them
// with errors.Is to translate internal failures into the externally visible
// STS error codes without string comparison.
var (
	// ErrTokenMalformed indicates the token could not be decoded structurally.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenExpired indicates the token's exp claim is in the past (or nbf
	// in the future) beyond the configured clock-skew tolerance.
	ErrTokenExpired = errors.New("token has expired")

	// ErrSignatureInvalid indicates signature verification against the
	// resolved provider key failed.
	ErrSignatureInvalid = errors.New("token signature verification failed")

	// ErrIssuerNotTrusted indicates no identity provider is configured for
	// the token's issuer.
	ErrIssuerNotTrusted = errors.New("no identity provider registered for token issuer")

	// ErrAudienceMismatch indicates the token audience does not match any of
	// the provider's accepted audiences.
	ErrAudienceMismatch = errors.New("token audience mismatch")

	// ErrMissingClaims indicates a required claim (sub, iss, exp) is absent.
	ErrMissingClaims = errors.New("token is missing required claims")
)
