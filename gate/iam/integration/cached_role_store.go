package integration

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/karlseguin/ccache/v2"
)

// listCacheKey is the single key under which the role name list is cached.
const listCacheKey = "role_list"

// CachedRoleStoreConfig holds configuration for the caching tier.
type CachedRoleStoreConfig struct {
	// TTL is how long individual role definitions stay cached
	TTL time.Duration `json:"ttl,omitempty"`

	// ListTTL is how long the role name list stays cached
	ListTTL time.Duration `json:"listTtl,omitempty"`

	// MaxCacheSize is the maximum number of cached role definitions
	MaxCacheSize int64 `json:"maxCacheSize,omitempty"`
}

// CachedRoleStore layers a TTL cache over any RoleStore. Reads served from
// cache return deep copies, so callers can never mutate cached state. Writes
// go through to the backing store and invalidate the affected entries.
type CachedRoleStore struct {
	store     RoleStore
	cache     *ccache.Cache
	listCache *ccache.Cache
	ttl       time.Duration
	listTTL   time.Duration
}

// NewCachedRoleStore creates a caching tier over the given role store.
func NewCachedRoleStore(store RoleStore, config CachedRoleStoreConfig) *CachedRoleStore {
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.ListTTL <= 0 {
		config.ListTTL = time.Minute
	}
	if config.MaxCacheSize <= 0 {
		config.MaxCacheSize = 1000
	}

	pruneCount := config.MaxCacheSize >> 3
	if pruneCount <= 0 {
		pruneCount = 100
	}

	glog.V(2).Infof("Initialized CachedRoleStore with TTL %v, List TTL %v, Max Cache Size %d",
		config.TTL, config.ListTTL, config.MaxCacheSize)

	return &CachedRoleStore{
		store:     store,
		cache:     ccache.New(ccache.Configure().MaxSize(config.MaxCacheSize).ItemsToPrune(uint32(pruneCount))),
		listCache: ccache.New(ccache.Configure().MaxSize(100).ItemsToPrune(10)),
		ttl:       config.TTL,
		listTTL:   config.ListTTL,
	}
}

// StoreRole stores a role definition and invalidates the cache
func (c *CachedRoleStore) StoreRole(ctx context.Context, roleName string, role *RoleDefinition) error {
	if err := c.store.StoreRole(ctx, roleName, role); err != nil {
		return err
	}

	c.cache.Delete(roleName)
	c.listCache.Clear()

	glog.V(3).Infof("Stored and invalidated cache for role %s", roleName)
	return nil
}

// GetRole retrieves a role definition with caching
func (c *CachedRoleStore) GetRole(ctx context.Context, roleName string) (*RoleDefinition, error) {
	item := c.cache.Get(roleName)
	if item != nil && !item.Expired() {
		glog.V(4).Infof("Cache hit for role %s", roleName)
		return copyRoleDefinition(item.Value().(*RoleDefinition)), nil
	}

	glog.V(4).Infof("Cache miss for role %s", roleName)
	role, err := c.store.GetRole(ctx, roleName)
	if err != nil {
		return nil, err
	}

	c.cache.Set(roleName, copyRoleDefinition(role), c.ttl)
	return role, nil
}

// ListRoles lists all role names with caching
func (c *CachedRoleStore) ListRoles(ctx context.Context) ([]string, error) {
	item := c.listCache.Get(listCacheKey)
	if item != nil && !item.Expired() {
		roles := item.Value().([]string)
		glog.V(4).Infof("List cache hit, returning %d roles", len(roles))
		return append([]string(nil), roles...), nil
	}

	roles, err := c.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}

	c.listCache.Set(listCacheKey, append([]string(nil), roles...), c.listTTL)
	return roles, nil
}

// DeleteRole deletes a role definition and invalidates the cache
func (c *CachedRoleStore) DeleteRole(ctx context.Context, roleName string) error {
	if err := c.store.DeleteRole(ctx, roleName); err != nil {
		return err
	}

	c.cache.Delete(roleName)
	c.listCache.Clear()

	glog.V(3).Infof("Deleted and invalidated cache for role %s", roleName)
	return nil
}

// ClearCache drops all cached entries. The backing store is untouched.
func (c *CachedRoleStore) ClearCache() {
	c.cache.Clear()
	c.listCache.Clear()
}
