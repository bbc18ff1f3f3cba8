// Package integration wires the STS service, the role catalog and trust
// policy evaluation into one orchestration layer. The IAMManager implements
// the STS service's RoleReader and TrustPolicyValidator collaborator
// interfaces, so the STS core stays free of storage concerns.
package integration

import (
	"context"
	"fmt"

	"github.com/reefgate/reefgate/gate/iam/auth"
	"github.com/reefgate/reefgate/gate/iam/policy"
	"github.com/reefgate/reefgate/gate/iam/providers"
	"github.com/reefgate/reefgate/gate/iam/sts"
	"github.com/reefgate/reefgate/gate/iam/utils"
)

// IAMManager orchestrates the STS service and the role catalog
type IAMManager struct {
	stsService  *sts.STSService
	roleStore   RoleStore
	initialized bool
}

// IAMConfig holds configuration for all IAM components
type IAMConfig struct {
	// STS service configuration
	STS *sts.STSConfig `json:"sts"`

	// Roles is the role store configuration
	Roles *RoleStoreConfig `json:"roleStore"`
}

// RoleStoreConfig holds role store configuration
type RoleStoreConfig struct {
	// StoreType specifies the role store backend (memory)
	StoreType string `json:"storeType"`

	// Cache enables a caching tier over the backing store
	Cache *CachedRoleStoreConfig `json:"cache,omitempty"`
}

// NewIAMManager creates a new IAM manager
func NewIAMManager() *IAMManager {
	return &IAMManager{}
}

// Initialize initializes the STS service and the role store and wires the
// manager in as the service's role catalog and trust policy validator.
func (m *IAMManager) Initialize(config *IAMConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	m.stsService = sts.NewSTSService()
	if err := m.stsService.Initialize(config.STS); err != nil {
		return fmt.Errorf("failed to initialize STS service: %w", err)
	}

	roleStore, err := createRoleStore(config.Roles)
	if err != nil {
		return fmt.Errorf("failed to initialize role store: %w", err)
	}
	m.roleStore = roleStore

	m.stsService.SetRoleReader(m)
	m.stsService.SetTrustPolicyValidator(m)

	m.initialized = true
	return nil
}

// createRoleStore creates a role store based on configuration
func createRoleStore(config *RoleStoreConfig) (RoleStore, error) {
	if config == nil {
		return NewMemoryRoleStore(), nil
	}

	var store RoleStore
	switch config.StoreType {
	case "", "memory":
		store = NewMemoryRoleStore()
	default:
		return nil, fmt.Errorf("unsupported role store type: %s", config.StoreType)
	}

	if config.Cache != nil {
		store = NewCachedRoleStore(store, *config.Cache)
	}

	return store, nil
}

// STSService returns the managed STS service, for wiring into HTTP handlers.
func (m *IAMManager) STSService() *sts.STSService {
	return m.stsService
}

// SetMFAVerifier sets the MFA verifier on the managed STS service
func (m *IAMManager) SetMFAVerifier(verifier sts.MFAVerifier) {
	m.stsService.SetMFAVerifier(verifier)
}

// RegisterIdentityProvider registers an identity provider
func (m *IAMManager) RegisterIdentityProvider(provider providers.IdentityProvider) error {
	if !m.initialized {
		return fmt.Errorf("IAM manager not initialized")
	}

	return m.stsService.RegisterProvider(provider)
}

// CreateRole creates a new role with its trust policy. A role without a
// valid trust policy cannot be created: an unassumable role is a
// configuration error, not a useful state.
func (m *IAMManager) CreateRole(ctx context.Context, roleName string, roleDef *RoleDefinition) error {
	if !m.initialized {
		return fmt.Errorf("IAM manager not initialized")
	}

	if roleName == "" {
		return fmt.Errorf("role name cannot be empty")
	}

	if roleDef == nil {
		return fmt.Errorf("role definition cannot be nil")
	}

	if roleDef.RoleName == "" {
		roleDef.RoleName = roleName
	}

	// Set role ARN if not provided
	if roleDef.RoleArn == "" {
		accountId := ""
		if m.stsService.Config != nil {
			accountId = m.stsService.Config.AccountId
		}
		roleDef.RoleArn = fmt.Sprintf("arn:aws:iam::%s:role/%s", accountId, roleName)
	}

	if err := policy.ValidateTrustPolicyDocument(roleDef.TrustPolicy); err != nil {
		return fmt.Errorf("invalid trust policy: %w", err)
	}

	return m.roleStore.StoreRole(ctx, roleName, roleDef)
}

// GetRole retrieves a role definition
func (m *IAMManager) GetRole(ctx context.Context, roleName string) (*RoleDefinition, error) {
	if !m.initialized {
		return nil, fmt.Errorf("IAM manager not initialized")
	}
	return m.roleStore.GetRole(ctx, roleName)
}

// ListRoles lists all role names
func (m *IAMManager) ListRoles(ctx context.Context) ([]string, error) {
	if !m.initialized {
		return nil, fmt.Errorf("IAM manager not initialized")
	}
	return m.roleStore.ListRoles(ctx)
}

// DeleteRole deletes a role definition
func (m *IAMManager) DeleteRole(ctx context.Context, roleName string) error {
	if !m.initialized {
		return fmt.Errorf("IAM manager not initialized")
	}
	return m.roleStore.DeleteRole(ctx, roleName)
}

// AssumeRoleWithWebIdentity assumes a role using a federated identity token
func (m *IAMManager) AssumeRoleWithWebIdentity(ctx context.Context, request *sts.AssumeRoleWithWebIdentityRequest) (*sts.AssumeRoleResponse, error) {
	if !m.initialized {
		return nil, fmt.Errorf("IAM manager not initialized")
	}
	return m.stsService.AssumeRoleWithWebIdentity(ctx, request)
}

// AssumeRole assumes a role as an already authenticated local principal
func (m *IAMManager) AssumeRole(ctx context.Context, caller *auth.Identity, request *sts.AssumeRoleRequest) (*sts.AssumeRoleResponse, error) {
	if !m.initialized {
		return nil, fmt.Errorf("IAM manager not initialized")
	}
	return m.stsService.AssumeRole(ctx, caller, request)
}

// GetSessionToken mints session credentials for the caller's own principal
func (m *IAMManager) GetSessionToken(ctx context.Context, caller *auth.Identity, request *sts.GetSessionTokenRequest) (*sts.GetSessionTokenResponse, error) {
	if !m.initialized {
		return nil, fmt.Errorf("IAM manager not initialized")
	}
	return m.stsService.GetSessionToken(ctx, caller, request)
}

// ValidateSessionToken validates a session token and rebuilds its session
func (m *IAMManager) ValidateSessionToken(ctx context.Context, sessionToken string) (*sts.SessionInfo, error) {
	if !m.initialized {
		return nil, fmt.Errorf("IAM manager not initialized")
	}
	return m.stsService.ValidateSessionToken(ctx, sessionToken)
}

// GetAssumableRole resolves a role ARN to its session constraints.
// Implements the STS service's RoleReader.
func (m *IAMManager) GetAssumableRole(ctx context.Context, roleArn string) (*sts.AssumableRole, error) {
	role, err := m.roleForArn(ctx, roleArn)
	if err != nil {
		return nil, err
	}

	return &sts.AssumableRole{
		RoleArn:                role.RoleArn,
		MaxSessionDuration:     role.MaxSessionDuration,
		DefaultSessionDuration: role.DefaultSessionDuration,
	}, nil
}

// ValidateTrustPolicyForWebIdentity evaluates the role's trust policy
// against a federated identity's verified claims. Implements the STS
// service's TrustPolicyValidator.
func (m *IAMManager) ValidateTrustPolicyForWebIdentity(ctx context.Context, roleArn string, claims *providers.TokenClaims) error {
	if claims == nil {
		return fmt.Errorf("token claims are required")
	}

	role, err := m.roleForArn(ctx, roleArn)
	if err != nil {
		return err
	}

	evalCtx := &policy.EvaluationContext{
		Principal: claims.Issuer + "#" + claims.Subject,
		Action:    sts.ActionAssumeRoleWithWebIdentity,
		Resource:  roleArn,
		RequestContext: map[string]interface{}{
			policy.CtxFederatedProvider: claims.Issuer,
			policy.CtxIssuer:            claims.Issuer,
			policy.CtxSubject:           claims.Subject,
			policy.CtxAudience:          claims.Audience,
		},
	}

	if policy.EvaluateTrustPolicy(role.TrustPolicy, evalCtx) != policy.EffectAllow {
		return fmt.Errorf("trust policy does not allow %s from issuer %s", claims.Subject, claims.Issuer)
	}
	return nil
}

// ValidateTrustPolicyForPrincipal evaluates the role's trust policy against
// a local principal. reqCtx carries condition keys such as sts:ExternalId
// and aws:MultiFactorAuthPresent. Implements the STS service's
// TrustPolicyValidator.
func (m *IAMManager) ValidateTrustPolicyForPrincipal(ctx context.Context, roleArn string, caller *auth.Identity, reqCtx map[string]string) error {
	if caller == nil {
		return fmt.Errorf("caller identity is required")
	}

	role, err := m.roleForArn(ctx, roleArn)
	if err != nil {
		return err
	}

	requestContext := make(map[string]interface{}, len(reqCtx))
	for key, value := range reqCtx {
		requestContext[key] = value
	}

	evalCtx := &policy.EvaluationContext{
		Principal:      caller.Principal,
		Action:         sts.ActionAssumeRole,
		Resource:       roleArn,
		RequestContext: requestContext,
	}

	if policy.EvaluateTrustPolicy(role.TrustPolicy, evalCtx) != policy.EffectAllow {
		return fmt.Errorf("trust policy does not allow principal %s", caller.Principal)
	}
	return nil
}

// roleForArn resolves the role definition behind a role ARN.
func (m *IAMManager) roleForArn(ctx context.Context, roleArn string) (*RoleDefinition, error) {
	roleName := utils.ExtractRoleNameFromArn(roleArn)
	if roleName == "" {
		return nil, fmt.Errorf("invalid role ARN: %s", roleArn)
	}
	return m.roleStore.GetRole(ctx, roleName)
}
