package sts

// Provider Types
const (
	ProviderTypeOIDC = "oidc"
	ProviderTypeMock = "mock"
)

// Session duration bounds in seconds. Role-based calls are bounded by
// [MinSessionDurationSeconds, MaxRoleSessionDurationSeconds]; GetSessionToken
// allows longer sessions up to MaxSessionTokenDurationSeconds.
const (
	MinSessionDurationSeconds      = 900    // 15 minutes
	DefaultSessionDurationSeconds  = 3600   // 1 hour
	MaxRoleSessionDurationSeconds  = 43200  // 12 hours
	MaxSessionTokenDurationSeconds = 129600 // 36 hours
)

// Default Values
const (
	DefaultIssuer              = "reefgate-sts"
	DefaultMaxPackedPolicySize = 2048
	MinSigningKeyLength        = 16 // Minimum signing key length in bytes
)

// Error Messages
const (
	ErrConfigCannotBeNil         = "config cannot be nil"
	ErrProviderCannotBeNil       = "provider cannot be nil"
	ErrProviderNameEmpty         = "provider name cannot be empty"
	ErrProviderTypeEmpty         = "provider type cannot be empty"
	ErrTokenCannotBeEmpty        = "token cannot be empty"
	ErrSessionTokenCannotBeEmpty = "session token cannot be empty"
	ErrSTSServiceNotInitialized  = "STS service not initialized"
	ErrInvalidTokenDuration      = "token duration must be positive"
	ErrInvalidMaxSessionLength   = "max session length must be positive"
	ErrIssuerRequired            = "issuer is required"
	ErrSigningKeyTooShort        = "signing key must be at least %d bytes"
	ErrUnsupportedProviderType   = "unsupported provider type: %s"
	ErrSessionValidationFailed   = "session validation failed: %w"
)

// JWT Claims
const (
	JWTClaimIssuer     = "iss"
	JWTClaimSubject    = "sub"
	JWTClaimAudience   = "aud"
	JWTClaimExpiration = "exp"
	JWTClaimIssuedAt   = "iat"
	JWTClaimTokenType  = "token_type"
)

// Token Types
const (
	TokenTypeSession = "session"
	TokenTypeAccess  = "access"
)

// STS Actions
const (
	ActionAssumeRole                = "sts:AssumeRole"
	ActionAssumeRoleWithWebIdentity = "sts:AssumeRoleWithWebIdentity"
	ActionGetSessionToken           = "sts:GetSessionToken"
	ActionValidateSession           = "sts:ValidateSession"
)

// Default Test Values
const (
	TestSigningKey32Chars = "test-signing-key-32-characters-long"
	TestIssuer            = "test-sts"
	TestClientID          = "test-client"
	TestSessionID         = "test-session-123"
	TestValidToken        = "valid_test_token"
	TestInvalidToken      = "invalid_token"
	TestExpiredToken      = "expired_token"
)
