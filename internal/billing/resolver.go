package billing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexassist/a11yscan/pkg/models"
)

// TierResolver answers which subscription tier an identity is on. The tier is
// authoritative for the day's quota limit.
type TierResolver interface {
	GetTier(ctx context.Context, identity string) (models.Tier, error)
}

// ConfigResolver resolves tiers from configuration: per-identity pins first,
// then the default tier. It stands in for an external subscription backend.
type ConfigResolver struct {
	defaultTier   models.Tier
	identityTiers map[string]models.Tier
	logger        *logrus.Logger
}

func NewConfigResolver(config models.BillingConfig, logger *logrus.Logger) *ConfigResolver {
	if logger == nil {
		logger = logrus.New()
	}

	defaultTier, ok := models.ParseTier(config.DefaultTier)
	if !ok {
		defaultTier = models.TierFree
	}

	identityTiers := make(map[string]models.Tier, len(config.IdentityTiers))
	for identity, tierName := range config.IdentityTiers {
		tier, ok := models.ParseTier(tierName)
		if !ok {
			logger.WithFields(logrus.Fields{
				"identity": identity,
				"tier":     tierName,
			}).Warn("Unknown tier in billing config, ignoring")
			continue
		}
		identityTiers[normalizeIdentity(identity)] = tier
	}

	return &ConfigResolver{
		defaultTier:   defaultTier,
		identityTiers: identityTiers,
		logger:        logger,
	}
}

func (r *ConfigResolver) GetTier(_ context.Context, identity string) (models.Tier, error) {
	if tier, ok := r.identityTiers[normalizeIdentity(identity)]; ok {
		return tier, nil
	}
	return r.defaultTier, nil
}

func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

type cacheEntry struct {
	tier      models.Tier
	expiresAt time.Time
}

// CachedResolver memoizes tier lookups so the scan path does not hit the
// subscription backend on every call. A failed lookup degrades to Free
// rather than blocking the scan.
type CachedResolver struct {
	inner  TierResolver
	ttl    time.Duration
	logger *logrus.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCachedResolver(inner TierResolver, ttl time.Duration, logger *logrus.Logger) *CachedResolver {
	if logger == nil {
		logger = logrus.New()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedResolver{
		inner:   inner,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (r *CachedResolver) GetTier(ctx context.Context, identity string) (models.Tier, error) {
	key := normalizeIdentity(identity)

	r.mu.Lock()
	entry, ok := r.entries[key]
	r.mu.Unlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.tier, nil
	}

	tier, err := r.inner.GetTier(ctx, identity)
	if err != nil {
		r.logger.WithError(err).WithField("identity", identity).
			Warn("Tier lookup failed, degrading to Free")
		return models.TierFree, nil
	}

	r.mu.Lock()
	r.entries[key] = cacheEntry{tier: tier, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return tier, nil
}
