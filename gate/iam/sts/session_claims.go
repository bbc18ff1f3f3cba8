package sts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
)

// defaultCredentialGenerator is a reusable instance for re-deriving temporary
// credentials from session claims. Credentials are deterministic per session
// id, so ToSessionInfo can reproduce them on any gateway instance.
var defaultCredentialGenerator = NewCredentialGenerator()

// SessionClaims is the complete session state embedded in a signed session
// token. Embedding everything in the token keeps issuance stateless: no
// session store, any instance holding the signing key can verify and rebuild
// the session. Claim keys are abbreviated to keep tokens small.
type SessionClaims struct {
	jwt.RegisteredClaims

	// Session identification
	SessionId   string `json:"sid"`
	SessionName string `json:"snam"`
	TokenType   string `json:"typ"`

	// Role information
	RoleArn     string `json:"role,omitempty"`
	AssumedRole string `json:"assumed,omitempty"`
	Principal   string `json:"principal"`

	// SessionPolicy carries the inline session policy JSON; PolicyDigest is
	// its SHA-256 fingerprint so downstream authorizers can detect the
	// document without reparsing it.
	SessionPolicy string `json:"spol,omitempty"`
	PolicyDigest  string `json:"spdg,omitempty"`

	// Identity provider information
	IdentityProvider string `json:"idp,omitempty"`
	ExternalUserId   string `json:"ext_uid,omitempty"`
	ProviderIssuer   string `json:"prov_iss,omitempty"`

	// Session metadata
	AssumedAt   time.Time `json:"assumed_at"`
	MaxDuration int64     `json:"max_dur,omitempty"` // seconds
}

// NewSessionClaims creates session claims with the required identification
// and time bounds filled in.
func NewSessionClaims(sessionId, issuer string, expiresAt time.Time) *SessionClaims {
	now := time.Now()
	return &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sessionId,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
		SessionId: sessionId,
		TokenType: TokenTypeSession,
		AssumedAt: now,
	}
}

// ToSessionInfo converts verified claims back into a SessionInfo, re-deriving
// the deterministic temporary credentials for the session.
func (c *SessionClaims) ToSessionInfo() *SessionInfo {
	var expiresAt time.Time
	if c.ExpiresAt != nil {
		expiresAt = c.ExpiresAt.Time
	}

	credentials, err := defaultCredentialGenerator.GenerateTemporaryCredentials(c.SessionId, expiresAt)
	if err != nil {
		errMsg := fmt.Errorf("generate temporary credentials for session %s: %w", c.SessionId, err)
		glog.Warningf("Failed to re-derive credentials for session: %v", errMsg)
		credentials = nil
	}

	return &SessionInfo{
		SessionId:        c.SessionId,
		SessionName:      c.SessionName,
		RoleArn:          c.RoleArn,
		AssumedRoleUser:  c.AssumedRole,
		Principal:        c.Principal,
		SessionPolicy:    c.SessionPolicy,
		PolicyDigest:     c.PolicyDigest,
		IdentityProvider: c.IdentityProvider,
		ExternalUserId:   c.ExternalUserId,
		ProviderIssuer:   c.ProviderIssuer,
		Subject:          c.Subject,
		CreatedAt:        c.AssumedAt,
		ExpiresAt:        expiresAt,
		Credentials:      credentials,
	}
}

// IsValid checks that the claims are inside their validity window and carry
// the fields every session must have.
func (c *SessionClaims) IsValid() bool {
	now := time.Now()

	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return false
	}

	if c.NotBefore != nil && c.NotBefore.After(now) {
		return false
	}

	if c.SessionId == "" || c.Principal == "" {
		return false
	}

	return true
}

// GetExpiresAt returns the expiration time
func (c *SessionClaims) GetExpiresAt() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// WithRoleInfo sets role-related information in the claims
func (c *SessionClaims) WithRoleInfo(roleArn, assumedRole, principal string) *SessionClaims {
	c.RoleArn = roleArn
	c.AssumedRole = assumedRole
	c.Principal = principal
	return c
}

// WithPrincipal sets the principal without role information, for sessions
// minted by GetSessionToken.
func (c *SessionClaims) WithPrincipal(principal string) *SessionClaims {
	c.Principal = principal
	return c
}

// WithSessionPolicy sets the inline session policy and its digest.
func (c *SessionClaims) WithSessionPolicy(policy string) *SessionClaims {
	c.SessionPolicy = policy
	c.PolicyDigest = PolicyDigest(policy)
	return c
}

// WithIdentityProvider sets identity provider information
func (c *SessionClaims) WithIdentityProvider(providerName, externalUserId, providerIssuer string) *SessionClaims {
	c.IdentityProvider = providerName
	c.ExternalUserId = externalUserId
	c.ProviderIssuer = providerIssuer
	return c
}

// WithMaxDuration sets the maximum session duration
func (c *SessionClaims) WithMaxDuration(duration time.Duration) *SessionClaims {
	c.MaxDuration = int64(duration.Seconds())
	return c
}

// WithSessionName sets the session name
func (c *SessionClaims) WithSessionName(sessionName string) *SessionClaims {
	c.SessionName = sessionName
	return c
}
