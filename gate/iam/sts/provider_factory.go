package sts

import (
	"encoding/json"
	"fmt"

	"github.com/golang/glog"

	"github.com/reefgate/reefgate/gate/iam/oidc"
	"github.com/reefgate/reefgate/gate/iam/providers"
)

// ProviderFactory creates identity providers from configuration
type ProviderFactory struct{}

// NewProviderFactory creates a new provider factory
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{}
}

// CreateProvider creates an identity provider from configuration
func (f *ProviderFactory) CreateProvider(config *ProviderConfig) (providers.IdentityProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("provider config cannot be nil")
	}

	if config.Name == "" {
		return nil, fmt.Errorf(ErrProviderNameEmpty)
	}

	if config.Type == "" {
		return nil, fmt.Errorf(ErrProviderTypeEmpty)
	}

	if !config.Enabled {
		glog.V(2).Infof("Provider %s is disabled, skipping", config.Name)
		return nil, nil
	}

	glog.V(2).Infof("Creating provider: name=%s, type=%s", config.Name, config.Type)

	switch config.Type {
	case ProviderTypeOIDC:
		return f.createOIDCProvider(config)
	case ProviderTypeMock:
		return f.createMockProvider(config)
	default:
		return nil, fmt.Errorf(ErrUnsupportedProviderType, config.Type)
	}
}

// createOIDCProvider creates an OIDC provider from configuration
func (f *ProviderFactory) createOIDCProvider(config *ProviderConfig) (providers.IdentityProvider, error) {
	oidcConfig, err := f.convertToOIDCConfig(config.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to convert OIDC config: %w", err)
	}

	provider := oidc.NewOIDCProvider(config.Name)
	if err := provider.Initialize(oidcConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize OIDC provider: %w", err)
	}

	return provider, nil
}

// createMockProvider creates a mock provider for testing
func (f *ProviderFactory) createMockProvider(config *ProviderConfig) (providers.IdentityProvider, error) {
	oidcConfig, err := f.convertToOIDCConfig(config.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to convert mock config: %w", err)
	}

	if oidcConfig.Issuer == "" {
		oidcConfig.Issuer = "http://localhost:9999"
	}

	provider := oidc.NewMockOIDCProvider(config.Name)
	if err := provider.Initialize(oidcConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize mock provider: %w", err)
	}

	provider.SetupDefaultTestData()

	return provider, nil
}

// convertToOIDCConfig converts a generic config map to an OIDC config struct
func (f *ProviderFactory) convertToOIDCConfig(configMap map[string]interface{}) (*oidc.OIDCConfig, error) {
	config := &oidc.OIDCConfig{}

	if issuer, ok := configMap["issuer"].(string); ok {
		config.Issuer = issuer
	} else {
		return nil, fmt.Errorf("issuer is required for OIDC provider")
	}

	if clientID, ok := configMap["clientId"].(string); ok {
		config.ClientID = clientID
	} else {
		return nil, fmt.Errorf("clientId is required for OIDC provider")
	}

	if clientSecret, ok := configMap["clientSecret"].(string); ok {
		config.ClientSecret = clientSecret
	}

	if jwksUri, ok := configMap["jwksUri"].(string); ok {
		config.JWKSUri = jwksUri
	}

	if userInfoUri, ok := configMap["userInfoUri"].(string); ok {
		config.UserInfoUri = userInfoUri
	}

	if skew, ok := toInt(configMap["clockSkewSeconds"]); ok {
		config.ClockSkewSeconds = skew
	}

	if ttl, ok := toInt(configMap["jwksCacheTTLSeconds"]); ok {
		config.JWKSCacheTTLSeconds = ttl
	}

	if timeout, ok := toInt(configMap["jwksFetchTimeoutSeconds"]); ok {
		config.JWKSFetchTimeoutSeconds = timeout
	}

	if scopesInterface, ok := configMap["scopes"]; ok {
		if scopes, err := f.convertToStringSlice(scopesInterface); err == nil {
			config.Scopes = scopes
		}
	}

	if audiencesInterface, ok := configMap["extraAudiences"]; ok {
		if audiences, err := f.convertToStringSlice(audiencesInterface); err == nil {
			config.ExtraAudiences = audiences
		}
	}

	if claimsMapInterface, ok := configMap["claimsMapping"]; ok {
		if claimsMap, err := f.convertToStringMap(claimsMapInterface); err == nil {
			config.ClaimsMapping = claimsMap
		}
	}

	if mappingInterface, ok := configMap["roleMapping"]; ok {
		mapping, err := f.convertToRoleMapping(mappingInterface)
		if err != nil {
			return nil, fmt.Errorf("invalid roleMapping: %w", err)
		}
		config.RoleMapping = mapping
	}

	glog.V(3).Infof("Converted OIDC config: issuer=%s, clientId=%s, jwksUri=%s",
		config.Issuer, config.ClientID, config.JWKSUri)

	return config, nil
}

// convertToRoleMapping converts the roleMapping config subtree through its
// JSON form into a RoleMapping.
func (f *ProviderFactory) convertToRoleMapping(value interface{}) (*providers.RoleMapping, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	mapping := &providers.RoleMapping{}
	if err := json.Unmarshal(data, mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// toInt converts JSON-decoded numeric values to int.
func toInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// convertToStringSlice converts interface{} to []string
func (f *ProviderFactory) convertToStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			if str, ok := item.(string); ok {
				result[i] = str
			} else {
				return nil, fmt.Errorf("non-string item in slice: %v", item)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to []string", value)
	}
}

// convertToStringMap converts interface{} to map[string]string
func (f *ProviderFactory) convertToStringMap(value interface{}) (map[string]string, error) {
	switch v := value.(type) {
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		result := make(map[string]string)
		for key, val := range v {
			if str, ok := val.(string); ok {
				result[key] = str
			} else {
				return nil, fmt.Errorf("non-string value for key %s: %v", key, val)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to map[string]string", value)
	}
}

// LoadProvidersFromConfig creates providers from configuration
func (f *ProviderFactory) LoadProvidersFromConfig(configs []*ProviderConfig) (map[string]providers.IdentityProvider, error) {
	providersMap := make(map[string]providers.IdentityProvider)

	for _, config := range configs {
		if config == nil {
			glog.V(1).Infof("Skipping nil provider config")
			continue
		}

		if !config.Enabled {
			glog.V(2).Infof("Provider %s is disabled, skipping", config.Name)
			continue
		}

		provider, err := f.CreateProvider(config)
		if err != nil {
			glog.Errorf("Failed to create provider %s: %v", config.Name, err)
			return nil, fmt.Errorf("failed to create provider %s: %w", config.Name, err)
		}

		if provider != nil {
			providersMap[config.Name] = provider
			glog.V(1).Infof("Loaded provider: %s", config.Name)
		}
	}

	glog.V(1).Infof("Loaded %d identity providers from configuration", len(providersMap))
	return providersMap, nil
}

// ValidateProviderConfig validates a provider configuration
func (f *ProviderFactory) ValidateProviderConfig(config *ProviderConfig) error {
	if config == nil {
		return fmt.Errorf("provider config cannot be nil")
	}

	if config.Name == "" {
		return fmt.Errorf(ErrProviderNameEmpty)
	}

	if config.Type == "" {
		return fmt.Errorf(ErrProviderTypeEmpty)
	}

	if config.Config == nil {
		return fmt.Errorf("provider config cannot be nil")
	}

	switch config.Type {
	case ProviderTypeOIDC:
		return f.validateOIDCConfig(config.Config)
	case ProviderTypeMock:
		// Mock provider is lenient for testing
		return nil
	default:
		return fmt.Errorf(ErrUnsupportedProviderType, config.Type)
	}
}

// validateOIDCConfig validates OIDC provider configuration
func (f *ProviderFactory) validateOIDCConfig(config map[string]interface{}) error {
	if _, ok := config["issuer"]; !ok {
		return fmt.Errorf("OIDC provider requires 'issuer' field")
	}

	if _, ok := config["clientId"]; !ok {
		return fmt.Errorf("OIDC provider requires 'clientId' field")
	}

	return nil
}

// GetSupportedProviderTypes returns the supported provider types
func (f *ProviderFactory) GetSupportedProviderTypes() []string {
	return []string{ProviderTypeOIDC, ProviderTypeMock}
}
