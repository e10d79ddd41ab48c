package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/tor-evaluator/internal/domain/guidelines"
)

// OrganizationsKey holds the JSON list of active organizations.
const OrganizationsKey = "evaluator:organizations:active"

const defaultOrganizationTTL = 5 * time.Minute

// Store is the subset of Client the caches need.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// OrganizationCache is a read-through cache in front of an organization
// repository. Cache errors never fail a lookup; they fall through to Next.
type OrganizationCache struct {
	Next   guidelines.OrganizationRepository
	Store  Store
	TTL    time.Duration
	Logger *zap.Logger
}

func (c *OrganizationCache) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *OrganizationCache) ListActive(ctx context.Context) ([]*guidelines.Organization, error) {
	if raw, err := c.Store.Get(ctx, OrganizationsKey); err != nil {
		c.log().Warn("organization_cache_read_failed", zap.Error(err))
	} else if raw != "" {
		var orgs []*guidelines.Organization
		if err := json.Unmarshal([]byte(raw), &orgs); err == nil {
			return orgs, nil
		}
		c.log().Warn("organization_cache_corrupt", zap.String("key", OrganizationsKey))
	}

	orgs, err := c.Next.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultOrganizationTTL
	}
	if b, err := json.Marshal(orgs); err == nil {
		if err := c.Store.Set(ctx, OrganizationsKey, string(b), ttl); err != nil {
			c.log().Warn("organization_cache_write_failed", zap.Error(err))
		}
	}
	return orgs, nil
}

// Invalidate drops the cached list so the next lookup reloads it.
func (c *OrganizationCache) Invalidate(ctx context.Context) error {
	return c.Store.Del(ctx, OrganizationsKey)
}
