package keycloak

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// adminTokenSkew is subtracted from the token lifetime so a cached token is
// never handed out right before it expires.
const adminTokenSkew = 10 * time.Second

// adminTokenCache keeps the service account token between privileged calls.
// go-cache is safe for concurrent use.
type adminTokenCache struct {
	store *cache.Cache
}

func newAdminTokenCache() *adminTokenCache {
	return &adminTokenCache{
		store: cache.New(cache.NoExpiration, time.Minute),
	}
}

func (c *adminTokenCache) get(key string) (string, bool) {
	v, found := c.store.Get(key)
	if !found {
		return "", false
	}
	token, ok := v.(string)
	return token, ok
}

// put stores the token until shortly before expiresAt. Tokens without a
// usable lifetime are not cached.
func (c *adminTokenCache) put(key, token string, expiresAt time.Time) {
	if expiresAt.IsZero() {
		return
	}
	ttl := time.Until(expiresAt) - adminTokenSkew
	if ttl <= 0 {
		return
	}
	c.store.Set(key, token, ttl)
}

func (c *adminTokenCache) invalidate(key string) {
	c.store.Delete(key)
}
