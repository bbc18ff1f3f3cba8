// Package config loads the IAM configuration from a file with environment
// overrides. Supported formats follow the file extension (json, yaml, toml).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/reefgate/reefgate/gate/iam/integration"
	"github.com/reefgate/reefgate/gate/iam/sts"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// REEFGATE_STS_SIGNINGKEY overrides sts.signingKey.
const EnvPrefix = "REEFGATE"

// LoadIAMConfig reads the IAM configuration from the given file, applying
// defaults and environment overrides. An empty path loads defaults and
// environment overrides only.
func LoadIAMConfig(path string) (*integration.IAMConfig, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		glog.V(1).Infof("Loaded IAM configuration from %s", v.ConfigFileUsed())
	}

	return buildConfig(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sts.tokenDuration", "1h")
	v.SetDefault("sts.maxSessionLength", "12h")
	v.SetDefault("sts.issuer", sts.DefaultIssuer)
	v.SetDefault("sts.maxPackedPolicySize", sts.DefaultMaxPackedPolicySize)
	v.SetDefault("roleStore.storeType", "memory")
}

func buildConfig(v *viper.Viper) (*integration.IAMConfig, error) {
	stsConfig := &sts.STSConfig{
		TokenDuration:       sts.FlexibleDuration{Duration: v.GetDuration("sts.tokenDuration")},
		MaxSessionLength:    sts.FlexibleDuration{Duration: v.GetDuration("sts.maxSessionLength")},
		Issuer:              v.GetString("sts.issuer"),
		SigningKey:          []byte(v.GetString("sts.signingKey")),
		MaxPackedPolicySize: v.GetInt("sts.maxPackedPolicySize"),
		ClampDuration:       v.GetBool("sts.clampDuration"),
		OpaqueDenials:       v.GetBool("sts.opaqueDenials"),
		AccountId:           v.GetString("sts.accountId"),
	}

	if v.IsSet("sts.minSessionLength") {
		stsConfig.MinSessionLength = sts.FlexibleDuration{Duration: v.GetDuration("sts.minSessionLength")}
	}
	if v.IsSet("sts.sessionTokenDurationMax") {
		stsConfig.SessionTokenDurationMax = sts.FlexibleDuration{Duration: v.GetDuration("sts.sessionTokenDurationMax")}
	}

	if v.IsSet("sts.providers") {
		var providerConfigs []*sts.ProviderConfig
		if err := v.UnmarshalKey("sts.providers", &providerConfigs, withJSONTags); err != nil {
			return nil, fmt.Errorf("failed to decode provider configuration: %w", err)
		}
		stsConfig.Providers = providerConfigs
	}

	roleStoreConfig := &integration.RoleStoreConfig{
		StoreType: v.GetString("roleStore.storeType"),
	}
	if v.IsSet("roleStore.cache") {
		cache := &integration.CachedRoleStoreConfig{
			MaxCacheSize: v.GetInt64("roleStore.cache.maxCacheSize"),
		}
		if ttl := v.GetString("roleStore.cache.ttl"); ttl != "" {
			parsed, err := time.ParseDuration(ttl)
			if err != nil {
				return nil, fmt.Errorf("invalid roleStore.cache.ttl %q: %w", ttl, err)
			}
			cache.TTL = parsed
		}
		if listTTL := v.GetString("roleStore.cache.listTtl"); listTTL != "" {
			parsed, err := time.ParseDuration(listTTL)
			if err != nil {
				return nil, fmt.Errorf("invalid roleStore.cache.listTtl %q: %w", listTTL, err)
			}
			cache.ListTTL = parsed
		}
		roleStoreConfig.Cache = cache
	}

	return &integration.IAMConfig{
		STS:   stsConfig,
		Roles: roleStoreConfig,
	}, nil
}

// withJSONTags makes viper's mapstructure decoding honor the json tags the
// configuration structs already carry.
func withJSONTags(dc *mapstructure.DecoderConfig) {
	dc.TagName = "json"
}
