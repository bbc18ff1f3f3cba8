// Package sts implements session-credential issuance: AssumeRoleWithWebIdentity,
// AssumeRole and GetSessionToken over a chainable authentication strategy,
// with stateless self-verifying session tokens.
package sts

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/reefgate/reefgate/gate/iam/auth"
	"github.com/reefgate/reefgate/gate/iam/policy"
	"github.com/reefgate/reefgate/gate/iam/providers"
	"github.com/reefgate/reefgate/gate/iam/utils"
)

// TrustPolicyValidator decides whether an authenticated identity may assume
// a role, by evaluating the role's trust policy.
type TrustPolicyValidator interface {
	// ValidateTrustPolicyForWebIdentity validates a federated identity,
	// described by its verified claims, against the role's trust policy.
	ValidateTrustPolicyForWebIdentity(ctx context.Context, roleArn string, claims *providers.TokenClaims) error

	// ValidateTrustPolicyForPrincipal validates a local principal against the
	// role's trust policy. reqCtx carries condition context such as
	// sts:ExternalId and aws:MultiFactorAuthPresent.
	ValidateTrustPolicyForPrincipal(ctx context.Context, roleArn string, caller *auth.Identity, reqCtx map[string]string) error
}

// RoleReader resolves role ARNs to their session constraints.
type RoleReader interface {
	GetAssumableRole(ctx context.Context, roleArn string) (*AssumableRole, error)
}

// MFAVerifier checks a one-time code against a registered MFA device.
type MFAVerifier interface {
	VerifyMFA(ctx context.Context, principal, serialNumber, tokenCode string) error
}

// AssumableRole is the session-relevant view of a role definition.
type AssumableRole struct {
	// RoleArn is the canonical ARN of the role
	RoleArn string `json:"roleArn"`

	// MaxSessionDuration caps DurationSeconds for this role, in seconds
	MaxSessionDuration int64 `json:"maxSessionDuration,omitempty"`

	// DefaultSessionDuration applies when the caller omits DurationSeconds
	DefaultSessionDuration int64 `json:"defaultSessionDuration,omitempty"`
}

// FlexibleDuration wraps time.Duration to support both integer nanoseconds
// and duration strings in JSON.
type FlexibleDuration struct {
	time.Duration
}

// UnmarshalJSON accepts "1h" style strings and raw nanosecond integers.
func (fd *FlexibleDuration) UnmarshalJSON(data []byte) error {
	var durationStr string
	if err := json.Unmarshal(data, &durationStr); err == nil {
		duration, parseErr := time.ParseDuration(durationStr)
		if parseErr != nil {
			// Quoted integer edge case
			if nanoseconds, intErr := strconv.ParseInt(durationStr, 10, 64); intErr == nil {
				fd.Duration = time.Duration(nanoseconds)
				return nil
			}
			return fmt.Errorf("invalid duration string %q: %w", durationStr, parseErr)
		}
		fd.Duration = duration
		return nil
	}

	var nanoseconds int64
	if err := json.Unmarshal(data, &nanoseconds); err == nil {
		fd.Duration = time.Duration(nanoseconds)
		return nil
	}

	return fmt.Errorf("unable to parse duration from %s (expected duration string like \"1h\" or integer nanoseconds)", data)
}

// MarshalJSON always emits a human-readable duration string.
func (fd FlexibleDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(fd.Duration.String())
}

// STSService issues and validates session credentials. The service is
// stateless: all session information lives inside signed session tokens, so
// any instance sharing the signing key can validate what another issued.
type STSService struct {
	Config      *STSConfig // Public for access by other components
	initialized bool

	providers        map[string]providers.IdentityProvider
	issuerToProvider map[string]providers.IdentityProvider

	tokenGenerator *TokenGenerator
	credGenerator  *CredentialGenerator
	strategy       *auth.Strategy

	trustPolicyValidator TrustPolicyValidator
	roleReader           RoleReader
	mfaVerifier          MFAVerifier
}

// STSConfig holds STS service configuration
type STSConfig struct {
	// TokenDuration is the default duration for issued sessions
	TokenDuration FlexibleDuration `json:"tokenDuration"`

	// MaxSessionLength is the ceiling for role-based sessions
	MaxSessionLength FlexibleDuration `json:"maxSessionLength"`

	// MinSessionLength is the floor for any requested duration
	MinSessionLength FlexibleDuration `json:"minSessionLength,omitempty"`

	// SessionTokenDurationMax is the wider ceiling for GetSessionToken
	SessionTokenDurationMax FlexibleDuration `json:"sessionTokenDurationMax,omitempty"`

	// Issuer is the STS issuer identifier embedded in session tokens
	Issuer string `json:"issuer"`

	// SigningKey signs session tokens; all instances must share it
	SigningKey []byte `json:"signingKey"`

	// MaxPackedPolicySize bounds inline session policy documents, in bytes
	MaxPackedPolicySize int `json:"maxPackedPolicySize,omitempty"`

	// ClampDuration clamps out-of-range durations into bounds instead of
	// rejecting the request. Off by default: silent clamping hides caller
	// bugs, so out-of-range durations are an InvalidParameterValue error.
	ClampDuration bool `json:"clampDuration,omitempty"`

	// OpaqueDenials collapses identity-validation error detail into a
	// generic AccessDenied on the wire
	OpaqueDenials bool `json:"opaqueDenials,omitempty"`

	// AccountId is the account embedded in generated ARNs
	AccountId string `json:"accountId,omitempty"`

	// Providers configuration - enables automatic provider loading
	Providers []*ProviderConfig `json:"providers,omitempty"`
}

// ProviderConfig holds identity provider configuration
type ProviderConfig struct {
	// Name is the unique identifier for the provider
	Name string `json:"name"`

	// Type specifies the provider type (oidc, mock)
	Type string `json:"type"`

	// Config contains provider-specific configuration
	Config map[string]interface{} `json:"config"`

	// Enabled indicates if this provider should be active
	Enabled bool `json:"enabled"`
}

// AssumeRoleWithWebIdentityRequest is a request to assume a role with a
// federated identity token.
type AssumeRoleWithWebIdentityRequest struct {
	// RoleArn is the ARN of the role to assume
	RoleArn string `json:"RoleArn"`

	// WebIdentityToken is the token from the identity provider
	WebIdentityToken string `json:"WebIdentityToken"`

	// RoleSessionName names the assumed role session
	RoleSessionName string `json:"RoleSessionName"`

	// DurationSeconds is the requested session duration (optional)
	DurationSeconds *int64 `json:"DurationSeconds,omitempty"`

	// Policy is an inline session policy that further restricts the
	// session (optional)
	Policy *string `json:"Policy,omitempty"`
}

// AssumeRoleRequest is a request to assume a role with an already
// authenticated local principal.
type AssumeRoleRequest struct {
	// RoleArn is the ARN of the role to assume
	RoleArn string `json:"RoleArn"`

	// RoleSessionName names the assumed role session
	RoleSessionName string `json:"RoleSessionName"`

	// DurationSeconds is the requested session duration (optional)
	DurationSeconds *int64 `json:"DurationSeconds,omitempty"`

	// Policy is an inline session policy (optional)
	Policy *string `json:"Policy,omitempty"`

	// ExternalId must exactly match the role's expected external id when
	// the trust policy demands one (optional)
	ExternalId *string `json:"ExternalId,omitempty"`

	// SerialNumber identifies the MFA device (optional, with TokenCode)
	SerialNumber *string `json:"SerialNumber,omitempty"`

	// TokenCode is the one-time code from the MFA device (optional)
	TokenCode *string `json:"TokenCode,omitempty"`
}

// GetSessionTokenRequest is a request for session credentials scoped to the
// caller's own principal. No role is involved.
type GetSessionTokenRequest struct {
	// DurationSeconds is the requested session duration (optional)
	DurationSeconds *int64 `json:"DurationSeconds,omitempty"`

	// SerialNumber identifies the MFA device (optional, with TokenCode)
	SerialNumber *string `json:"SerialNumber,omitempty"`

	// TokenCode is the one-time code from the MFA device (optional)
	TokenCode *string `json:"TokenCode,omitempty"`
}

// AssumeRoleResponse is the response from the role assumption operations.
type AssumeRoleResponse struct {
	// Credentials contains the temporary security credentials
	Credentials *Credentials `json:"Credentials"`

	// AssumedRoleUser describes the assumed role session
	AssumedRoleUser *AssumedRoleUser `json:"AssumedRoleUser"`

	// SubjectFromWebIdentityToken echoes the sub claim of the source token
	SubjectFromWebIdentityToken string `json:"SubjectFromWebIdentityToken,omitempty"`

	// PackedPolicySize is the percentage of the allowed packed policy size
	// used by the session policy
	PackedPolicySize *int64 `json:"PackedPolicySize,omitempty"`
}

// GetSessionTokenResponse is the response from GetSessionToken.
type GetSessionTokenResponse struct {
	// Credentials contains the temporary security credentials
	Credentials *Credentials `json:"Credentials"`
}

// Credentials represents temporary security credentials
type Credentials struct {
	// AccessKeyId is the access key ID
	AccessKeyId string `json:"AccessKeyId"`

	// SecretAccessKey is the secret access key
	SecretAccessKey string `json:"SecretAccessKey"`

	// SessionToken is the signed session token
	SessionToken string `json:"SessionToken"`

	// Expiration is when the credentials expire
	Expiration time.Time `json:"Expiration"`
}

// AssumedRoleUser describes the principal created by a role assumption.
type AssumedRoleUser struct {
	// AssumedRoleId is the unique identifier of the assumed role
	AssumedRoleId string `json:"AssumedRoleId"`

	// Arn is the assumed-role ARN (arn:PARTITION:sts::ACCOUNT:assumed-role/Role/Session)
	Arn string `json:"Arn"`

	// Subject is the subject identifier from the identity provider
	Subject string `json:"Subject,omitempty"`
}

// SessionInfo is the decoded state of an active session.
type SessionInfo struct {
	// SessionId is the unique identifier for the session
	SessionId string `json:"sessionId"`

	// SessionName is the name of the role session
	SessionName string `json:"sessionName"`

	// RoleArn is the ARN of the assumed role, empty for GetSessionToken sessions
	RoleArn string `json:"roleArn,omitempty"`

	// AssumedRoleUser is the assumed-role ARN
	AssumedRoleUser string `json:"assumedRoleUser,omitempty"`

	// Principal is the principal the session acts as
	Principal string `json:"principal"`

	// Subject is the registered subject claim of the session token
	Subject string `json:"subject"`

	// IdentityProvider is the provider that authenticated the caller
	IdentityProvider string `json:"identityProvider,omitempty"`

	// ExternalUserId is the external user identifier from the provider
	ExternalUserId string `json:"externalUserId,omitempty"`

	// ProviderIssuer is the issuer of the source identity token
	ProviderIssuer string `json:"providerIssuer,omitempty"`

	// SessionPolicy is the inline session policy document, if any
	SessionPolicy string `json:"sessionPolicy,omitempty"`

	// PolicyDigest is the SHA-256 fingerprint of the session policy
	PolicyDigest string `json:"policyDigest,omitempty"`

	// CreatedAt is when the session was created
	CreatedAt time.Time `json:"createdAt"`

	// ExpiresAt is when the session expires
	ExpiresAt time.Time `json:"expiresAt"`

	// Credentials are the temporary credentials for this session
	Credentials *Credentials `json:"credentials"`
}

// NewSTSService creates a new STS service
func NewSTSService() *STSService {
	return &STSService{
		providers:        make(map[string]providers.IdentityProvider),
		issuerToProvider: make(map[string]providers.IdentityProvider),
	}
}

// Initialize initializes the STS service with configuration
func (s *STSService) Initialize(config *STSConfig) error {
	if config == nil {
		return fmt.Errorf(ErrConfigCannotBeNil)
	}

	if err := s.validateConfig(config); err != nil {
		return fmt.Errorf("invalid STS configuration: %w", err)
	}

	s.Config = config
	s.tokenGenerator = NewTokenGenerator(config.SigningKey, config.Issuer)
	s.credGenerator = NewCredentialGenerator()

	if err := s.loadProvidersFromConfig(config); err != nil {
		return fmt.Errorf("failed to load identity providers: %w", err)
	}

	// The web-token engine is Sufficient: a single grant from it settles
	// authentication for federated calls.
	s.strategy = auth.NewStrategy("sts")
	s.strategy.AddEngine(auth.Sufficient, auth.NewWebTokenEngine(
		auth.ParamTokenExtractor{},
		s,
		auth.WebIdentityApplier{},
	))

	s.initialized = true
	return nil
}

// validateConfig validates the STS configuration
func (s *STSService) validateConfig(config *STSConfig) error {
	if config.TokenDuration.Duration <= 0 {
		return fmt.Errorf(ErrInvalidTokenDuration)
	}

	if config.MaxSessionLength.Duration <= 0 {
		return fmt.Errorf(ErrInvalidMaxSessionLength)
	}

	if config.Issuer == "" {
		return fmt.Errorf(ErrIssuerRequired)
	}

	if len(config.SigningKey) < MinSigningKeyLength {
		return fmt.Errorf(ErrSigningKeyTooShort, MinSigningKeyLength)
	}

	return nil
}

// loadProvidersFromConfig loads identity providers from configuration
func (s *STSService) loadProvidersFromConfig(config *STSConfig) error {
	if len(config.Providers) == 0 {
		glog.V(2).Infof("No providers configured in STS config")
		return nil
	}

	factory := NewProviderFactory()

	providersMap, err := factory.LoadProvidersFromConfig(config.Providers)
	if err != nil {
		return fmt.Errorf("failed to load providers from config: %w", err)
	}

	s.providers = providersMap

	s.issuerToProvider = make(map[string]providers.IdentityProvider)
	for name, provider := range s.providers {
		issuer := extractIssuerFromProvider(provider)
		if issuer != "" {
			if _, exists := s.issuerToProvider[issuer]; exists {
				glog.Warningf("Duplicate issuer %s found for provider %s. Overwriting.", issuer, name)
			}
			s.issuerToProvider[issuer] = provider
		}
	}

	glog.V(1).Infof("Loaded %d identity providers: %v", len(s.providers), s.providerNames())
	return nil
}

func (s *STSService) providerNames() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// IsInitialized returns whether the service is initialized
func (s *STSService) IsInitialized() bool {
	return s.initialized
}

// RegisterProvider registers an identity provider
func (s *STSService) RegisterProvider(provider providers.IdentityProvider) error {
	if provider == nil {
		return fmt.Errorf(ErrProviderCannotBeNil)
	}

	name := provider.Name()
	if name == "" {
		return fmt.Errorf(ErrProviderNameEmpty)
	}

	s.providers[name] = provider

	issuer := extractIssuerFromProvider(provider)
	if issuer != "" {
		s.issuerToProvider[issuer] = provider
		glog.V(2).Infof("Registered provider %s with issuer %s", name, issuer)
	}

	return nil
}

// extractIssuerFromProvider extracts the issuer from providers that expose one.
func extractIssuerFromProvider(provider providers.IdentityProvider) string {
	if p, ok := provider.(interface{ GetIssuer() string }); ok {
		return p.GetIssuer()
	}
	return ""
}

// ProviderForIssuer returns the provider registered for an issuer. Tokens
// carrying an issuer with no registered provider are never validated by any
// other provider. Implements the auth package's ProviderResolver.
func (s *STSService) ProviderForIssuer(issuer string) (providers.IdentityProvider, bool) {
	provider, ok := s.issuerToProvider[issuer]
	return provider, ok
}

// GetProviders returns all registered identity providers
func (s *STSService) GetProviders() map[string]providers.IdentityProvider {
	return s.providers
}

// SetTrustPolicyValidator sets the trust policy validator for role assumption
func (s *STSService) SetTrustPolicyValidator(validator TrustPolicyValidator) {
	s.trustPolicyValidator = validator
}

// SetRoleReader sets the role catalog used to resolve role ARNs
func (s *STSService) SetRoleReader(reader RoleReader) {
	s.roleReader = reader
}

// SetMFAVerifier sets the MFA verifier for AssumeRole and GetSessionToken
func (s *STSService) SetMFAVerifier(verifier MFAVerifier) {
	s.mfaVerifier = verifier
}

// ErrorCode maps a service error to its external code, applying the
// configured denial opacity.
func (s *STSService) ErrorCode(err error) STSErrorCode {
	code := ErrorCodeFor(err)
	if s.Config != nil && s.Config.OpaqueDenials {
		code = code.Opaque()
	}
	return code
}

// AssumeRoleWithWebIdentity exchanges a federated identity token for role
// session credentials. Parameter problems fail before any token validation
// work; the session policy size check in particular runs before the
// authentication strategy so oversized documents never cost a JWKS fetch.
func (s *STSService) AssumeRoleWithWebIdentity(ctx context.Context, request *AssumeRoleWithWebIdentityRequest) (*AssumeRoleResponse, error) {
	if !s.initialized {
		return nil, fmt.Errorf(ErrSTSServiceNotInitialized)
	}

	if request == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", ErrTypedInvalidParameterValue)
	}

	if request.RoleArn == "" {
		return nil, fmt.Errorf("%w: RoleArn", ErrTypedMissingParameter)
	}
	if request.WebIdentityToken == "" {
		return nil, fmt.Errorf("%w: WebIdentityToken", ErrTypedMissingParameter)
	}
	if request.RoleSessionName == "" {
		return nil, fmt.Errorf("%w: RoleSessionName", ErrTypedMissingParameter)
	}

	if err := validateSessionName(request.RoleSessionName); err != nil {
		return nil, err
	}

	sessionPolicy, packedPolicySize, err := s.validateSessionPolicy(request.Policy)
	if err != nil {
		return nil, err
	}

	if err := s.validateRequestedDuration(request.DurationSeconds, s.maxRoleSessionSeconds()); err != nil {
		return nil, err
	}

	// Authenticate the token through the engine chain
	authReq := auth.NewRequest(map[string]string{
		auth.ParamWebIdentityToken: request.WebIdentityToken,
	})
	result := s.strategy.Apply(ctx, authReq)
	if result.Status != auth.StatusGranted {
		return nil, fmt.Errorf("web identity authentication failed: %w", result.Reason)
	}
	identity := result.Identity
	claims := identity.Claims

	role, err := s.resolveRole(ctx, request.RoleArn)
	if err != nil {
		return nil, err
	}

	var tokenExpiration *time.Time
	if claims != nil && !claims.ExpiresAt.IsZero() {
		tokenExpiration = &claims.ExpiresAt
	}
	duration, err := s.resolveSessionDuration(request.DurationSeconds, role, tokenExpiration)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(duration)

	// Trust policy decides whether this identity may assume the role
	if err := s.validateTrustForWebIdentity(ctx, request.RoleArn, claims); err != nil {
		return nil, err
	}

	subject := ""
	if claims != nil {
		subject = claims.Subject
	}

	response, err := s.mintRoleSession(mintParams{
		roleArn:        request.RoleArn,
		sessionName:    request.RoleSessionName,
		subject:        subject,
		provider:       identity.Provider,
		providerIssuer: issuerOf(claims),
		sessionPolicy:  sessionPolicy,
		duration:       duration,
		expiresAt:      expiresAt,
	})
	if err != nil {
		return nil, err
	}

	response.SubjectFromWebIdentityToken = subject
	response.PackedPolicySize = packedPolicySize
	return response, nil
}

// AssumeRole exchanges an already authenticated caller identity for role
// session credentials. The caller must have been authenticated by the
// gateway's request signing path; federated callers use
// AssumeRoleWithWebIdentity instead.
func (s *STSService) AssumeRole(ctx context.Context, caller *auth.Identity, request *AssumeRoleRequest) (*AssumeRoleResponse, error) {
	if !s.initialized {
		return nil, fmt.Errorf(ErrSTSServiceNotInitialized)
	}

	if caller == nil || caller.Principal == "" {
		return nil, fmt.Errorf("%w: request is not authenticated", ErrTypedAccessDenied)
	}

	if request == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", ErrTypedInvalidParameterValue)
	}
	if request.RoleArn == "" {
		return nil, fmt.Errorf("%w: RoleArn", ErrTypedMissingParameter)
	}
	if request.RoleSessionName == "" {
		return nil, fmt.Errorf("%w: RoleSessionName", ErrTypedMissingParameter)
	}

	if err := validateSessionName(request.RoleSessionName); err != nil {
		return nil, err
	}

	sessionPolicy, packedPolicySize, err := s.validateSessionPolicy(request.Policy)
	if err != nil {
		return nil, err
	}

	if err := s.validateRequestedDuration(request.DurationSeconds, s.maxRoleSessionSeconds()); err != nil {
		return nil, err
	}

	mfaPresent, err := s.verifyMFA(ctx, caller.Principal, request.SerialNumber, request.TokenCode)
	if err != nil {
		return nil, err
	}

	role, err := s.resolveRole(ctx, request.RoleArn)
	if err != nil {
		return nil, err
	}

	duration, err := s.resolveSessionDuration(request.DurationSeconds, role, nil)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(duration)

	reqCtx := map[string]string{
		policy.CtxMFAPresent: strconv.FormatBool(mfaPresent),
	}
	if request.ExternalId != nil {
		reqCtx[policy.CtxExternalId] = *request.ExternalId
	}
	if err := s.validateTrustForPrincipal(ctx, request.RoleArn, caller, reqCtx); err != nil {
		return nil, err
	}

	response, err := s.mintRoleSession(mintParams{
		roleArn:       request.RoleArn,
		sessionName:   request.RoleSessionName,
		subject:       caller.Principal,
		provider:      caller.Provider,
		sessionPolicy: sessionPolicy,
		duration:      duration,
		expiresAt:     expiresAt,
	})
	if err != nil {
		return nil, err
	}

	response.PackedPolicySize = packedPolicySize
	return response, nil
}

// GetSessionToken mints session credentials scoped to the caller's own
// principal. No role is assumed and no trust policy runs; the wider
// duration ceiling applies.
func (s *STSService) GetSessionToken(ctx context.Context, caller *auth.Identity, request *GetSessionTokenRequest) (*GetSessionTokenResponse, error) {
	if !s.initialized {
		return nil, fmt.Errorf(ErrSTSServiceNotInitialized)
	}

	if caller == nil || caller.Principal == "" {
		return nil, fmt.Errorf("%w: request is not authenticated", ErrTypedAccessDenied)
	}

	if request == nil {
		request = &GetSessionTokenRequest{}
	}

	duration, err := s.resolveSessionTokenDuration(request.DurationSeconds)
	if err != nil {
		return nil, err
	}

	if _, err := s.verifyMFA(ctx, caller.Principal, request.SerialNumber, request.TokenCode); err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(duration)

	sessionId, err := GenerateSessionId()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	credentials, err := s.credGenerator.GenerateTemporaryCredentials(sessionId, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate credentials: %w", err)
	}

	sessionClaims := NewSessionClaims(sessionId, s.Config.Issuer, expiresAt).
		WithPrincipal(caller.Principal).
		WithIdentityProvider(caller.Provider, caller.Principal, "").
		WithMaxDuration(duration)

	sessionToken, err := s.tokenGenerator.GenerateJWTWithClaims(sessionClaims)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	credentials.SessionToken = sessionToken

	return &GetSessionTokenResponse{Credentials: credentials}, nil
}

// ValidateSessionToken validates a session token and returns the session
// state it carries. Stateless: any instance with the signing key can serve
// this for tokens minted elsewhere.
func (s *STSService) ValidateSessionToken(ctx context.Context, sessionToken string) (*SessionInfo, error) {
	if !s.initialized {
		return nil, fmt.Errorf(ErrSTSServiceNotInitialized)
	}

	if sessionToken == "" {
		return nil, fmt.Errorf(ErrSessionTokenCannotBeEmpty)
	}

	claims, err := s.tokenGenerator.ValidateJWTWithClaims(sessionToken)
	if err != nil {
		return nil, fmt.Errorf(ErrSessionValidationFailed, err)
	}

	info := claims.ToSessionInfo()
	if info.IsExpired() {
		return nil, fmt.Errorf(ErrSessionValidationFailed, ErrTypedTokenExpired)
	}
	return info, nil
}

// mintParams carries everything needed to mint a role session.
type mintParams struct {
	roleArn        string
	sessionName    string
	subject        string
	provider       string
	providerIssuer string
	sessionPolicy  string
	duration       time.Duration
	expiresAt      time.Time
}

// mintRoleSession generates the session id, credentials and signed session
// token for a role session. Minting is atomic: either the caller gets a
// complete credentials set or an error, never partial state.
func (s *STSService) mintRoleSession(p mintParams) (*AssumeRoleResponse, error) {
	sessionId, err := GenerateSessionId()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	credentials, err := s.credGenerator.GenerateTemporaryCredentials(sessionId, p.expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate credentials: %w", err)
	}

	assumedRoleUser := &AssumedRoleUser{
		AssumedRoleId: p.roleArn,
		Arn:           utils.GenerateAssumedRoleArn(p.roleArn, p.sessionName),
		Subject:       p.subject,
	}

	sessionClaims := NewSessionClaims(sessionId, s.Config.Issuer, p.expiresAt).
		WithSessionName(p.sessionName).
		WithRoleInfo(p.roleArn, assumedRoleUser.Arn, assumedRoleUser.Arn).
		WithIdentityProvider(p.provider, p.subject, p.providerIssuer).
		WithMaxDuration(p.duration)
	if p.sessionPolicy != "" {
		sessionClaims.WithSessionPolicy(p.sessionPolicy)
	}

	sessionToken, err := s.tokenGenerator.GenerateJWTWithClaims(sessionClaims)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	credentials.SessionToken = sessionToken

	return &AssumeRoleResponse{
		Credentials:     credentials,
		AssumedRoleUser: assumedRoleUser,
	}, nil
}

// resolveRole looks up the role. Unknown and unreadable roles surface as
// AccessDenied so callers cannot probe the role catalog.
func (s *STSService) resolveRole(ctx context.Context, roleArn string) (*AssumableRole, error) {
	if utils.ExtractRoleNameFromArn(roleArn) == "" {
		return nil, fmt.Errorf("%w: invalid role ARN format: %s", ErrTypedInvalidParameterValue, roleArn)
	}

	if s.roleReader == nil {
		glog.Errorf("No role reader configured - denying role assumption")
		return nil, fmt.Errorf("%w: role resolution not available", ErrTypedAccessDenied)
	}

	role, err := s.roleReader.GetAssumableRole(ctx, roleArn)
	if err != nil {
		glog.V(2).Infof("Role lookup failed for %s: %v", roleArn, err)
		return nil, fmt.Errorf("%w: not authorized to assume %s", ErrTypedAccessDenied, roleArn)
	}
	if role == nil {
		return nil, fmt.Errorf("%w: not authorized to assume %s", ErrTypedAccessDenied, roleArn)
	}
	return role, nil
}

func (s *STSService) validateTrustForWebIdentity(ctx context.Context, roleArn string, claims *providers.TokenClaims) error {
	if s.trustPolicyValidator == nil {
		glog.Errorf("No trust policy validator configured - denying role assumption")
		return fmt.Errorf("%w: trust policy validation not available", ErrTypedAccessDenied)
	}
	if err := s.trustPolicyValidator.ValidateTrustPolicyForWebIdentity(ctx, roleArn, claims); err != nil {
		return fmt.Errorf("%w: trust policy denies assumption of %s: %v", ErrTypedAccessDenied, roleArn, err)
	}
	return nil
}

func (s *STSService) validateTrustForPrincipal(ctx context.Context, roleArn string, caller *auth.Identity, reqCtx map[string]string) error {
	if s.trustPolicyValidator == nil {
		glog.Errorf("No trust policy validator configured - denying role assumption")
		return fmt.Errorf("%w: trust policy validation not available", ErrTypedAccessDenied)
	}
	if err := s.trustPolicyValidator.ValidateTrustPolicyForPrincipal(ctx, roleArn, caller, reqCtx); err != nil {
		return fmt.Errorf("%w: trust policy denies assumption of %s: %v", ErrTypedAccessDenied, roleArn, err)
	}
	return nil
}

// verifyMFA validates the MFA parameters. Both or neither of SerialNumber
// and TokenCode must be present; a presented but unverifiable code is a
// denial, not a parameter error.
func (s *STSService) verifyMFA(ctx context.Context, principal string, serialNumber, tokenCode *string) (bool, error) {
	if serialNumber == nil && tokenCode == nil {
		return false, nil
	}
	if serialNumber == nil || tokenCode == nil {
		return false, fmt.Errorf("%w: SerialNumber and TokenCode must be provided together", ErrTypedInvalidParameterValue)
	}
	if *serialNumber == "" || *tokenCode == "" {
		return false, fmt.Errorf("%w: SerialNumber and TokenCode cannot be empty", ErrTypedInvalidParameterValue)
	}

	if s.mfaVerifier == nil {
		return false, fmt.Errorf("%w: MFA verification not available", ErrTypedAccessDenied)
	}

	if err := s.mfaVerifier.VerifyMFA(ctx, principal, *serialNumber, *tokenCode); err != nil {
		return false, fmt.Errorf("%w: MFA verification failed: %v", ErrTypedAccessDenied, err)
	}

	return true, nil
}

// validateSessionName enforces the RoleSessionName constraints: 2-64
// characters from [A-Za-z0-9_=,.@-].
func validateSessionName(name string) error {
	if !utils.IsValidSessionName(name) {
		return fmt.Errorf("%w: RoleSessionName must be 2-64 characters from [A-Za-z0-9_=,.@-]", ErrTypedInvalidParameterValue)
	}
	return nil
}

// validateSessionPolicy checks the inline session policy. The size check
// runs first and fails fast; it must never be preceded by authentication
// work. Returns the policy text and the packed size as a percentage of the
// allowed maximum.
func (s *STSService) validateSessionPolicy(policyDoc *string) (string, *int64, error) {
	if policyDoc == nil {
		return "", nil, nil
	}

	text := *policyDoc
	if text == "" {
		return "", nil, fmt.Errorf("%w: Policy cannot be empty when provided", ErrTypedInvalidParameterValue)
	}

	maxSize := s.maxPackedPolicySize()
	if len(text) > maxSize {
		return "", nil, fmt.Errorf("%w: packed size %d exceeds maximum %d", ErrTypedPackedPolicyTooLarge, len(text), maxSize)
	}

	if !json.Valid([]byte(text)) {
		return "", nil, fmt.Errorf("%w: Policy is not valid JSON", ErrTypedMalformedPolicy)
	}

	percent := (int64(len(text))*100 + int64(maxSize) - 1) / int64(maxSize)
	return text, &percent, nil
}

func (s *STSService) maxPackedPolicySize() int {
	if s.Config != nil && s.Config.MaxPackedPolicySize > 0 {
		return s.Config.MaxPackedPolicySize
	}
	return DefaultMaxPackedPolicySize
}

func (s *STSService) minSessionSeconds() int64 {
	if s.Config != nil && s.Config.MinSessionLength.Duration > 0 {
		return int64(s.Config.MinSessionLength.Duration.Seconds())
	}
	return MinSessionDurationSeconds
}

func (s *STSService) maxRoleSessionSeconds() int64 {
	if s.Config != nil && s.Config.MaxSessionLength.Duration > 0 {
		return int64(s.Config.MaxSessionLength.Duration.Seconds())
	}
	return MaxRoleSessionDurationSeconds
}

func (s *STSService) sessionTokenCeilingSeconds() int64 {
	if s.Config != nil && s.Config.SessionTokenDurationMax.Duration > 0 {
		return int64(s.Config.SessionTokenDurationMax.Duration.Seconds())
	}
	return MaxSessionTokenDurationSeconds
}

// validateRequestedDuration rejects a requested duration outside the
// configured service bounds before any authentication or role resolution
// work runs. In clamp mode nothing is rejected here; duration resolution
// clamps into bounds instead.
func (s *STSService) validateRequestedDuration(durationSeconds *int64, ceiling int64) error {
	if durationSeconds == nil || s.Config.ClampDuration {
		return nil
	}
	floor := s.minSessionSeconds()
	if *durationSeconds < floor || *durationSeconds > ceiling {
		return fmt.Errorf("%w: DurationSeconds must be between %d and %d seconds",
			ErrTypedInvalidParameterValue, floor, ceiling)
	}
	return nil
}

// resolveSessionTokenDuration resolves the effective duration for
// GetSessionToken: the caller's request bounded by the floor and the
// session-token ceiling, or the service default when omitted. Out-of-bounds
// requests are rejected unless ClampDuration is set.
func (s *STSService) resolveSessionTokenDuration(durationSeconds *int64) (time.Duration, error) {
	if durationSeconds == nil {
		return s.Config.TokenDuration.Duration, nil
	}

	floor := s.minSessionSeconds()
	ceiling := s.sessionTokenCeilingSeconds()
	requested := *durationSeconds
	if requested < floor || requested > ceiling {
		if !s.Config.ClampDuration {
			return 0, fmt.Errorf("%w: DurationSeconds must be between %d and %d seconds",
				ErrTypedInvalidParameterValue, floor, ceiling)
		}
		if requested < floor {
			requested = floor
		}
		if requested > ceiling {
			requested = ceiling
		}
	}
	return time.Duration(requested) * time.Second, nil
}

// resolveSessionDuration resolves the effective session duration for a role
// session: the caller's request (or the role/service default) bounded by the
// floor, the role's ceiling and the service ceiling. Out-of-bounds requests
// are rejected unless ClampDuration is set. The source token's remaining
// lifetime always caps the result, so sessions never outlive the identity
// token that created them.
func (s *STSService) resolveSessionDuration(durationSeconds *int64, role *AssumableRole, tokenExpiration *time.Time) (time.Duration, error) {
	floor := s.minSessionSeconds()
	ceiling := s.maxRoleSessionSeconds()
	if role != nil && role.MaxSessionDuration > 0 && role.MaxSessionDuration < ceiling {
		ceiling = role.MaxSessionDuration
	}

	var requested int64
	if durationSeconds != nil {
		requested = *durationSeconds
	} else {
		requested = int64(s.Config.TokenDuration.Duration.Seconds())
		if role != nil && role.DefaultSessionDuration > 0 {
			requested = role.DefaultSessionDuration
		}
		// A misconfigured default is clamped rather than rejected; the
		// caller did nothing wrong.
		if requested > ceiling {
			requested = ceiling
		}
		if requested < floor {
			requested = floor
		}
	}

	if requested < floor || requested > ceiling {
		if !s.Config.ClampDuration {
			return 0, fmt.Errorf("%w: DurationSeconds must be between %d and %d seconds for this role",
				ErrTypedInvalidParameterValue, floor, ceiling)
		}
		if requested < floor {
			requested = floor
		}
		if requested > ceiling {
			requested = ceiling
		}
	}

	duration := time.Duration(requested) * time.Second

	if tokenExpiration != nil && !tokenExpiration.IsZero() {
		remaining := time.Until(*tokenExpiration)
		if remaining > 0 && remaining < duration {
			glog.V(2).Infof("Limiting session duration from %v to %v based on source token expiration",
				duration, remaining)
			duration = remaining
		}
	}

	return duration, nil
}

func issuerOf(claims *providers.TokenClaims) string {
	if claims == nil {
		return ""
	}
	return claims.Issuer
}
