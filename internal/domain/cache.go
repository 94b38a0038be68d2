package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU + Redis.
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetProfile retrieves a cached cost-sharing profile.
	// Returns nil, nil if not cached.
	GetProfile(ctx context.Context, tenantID string, benefitID string) (*CostSharingProfile, error)

	// SetProfile caches a cost-sharing profile.
	SetProfile(ctx context.Context, tenantID string, profile *CostSharingProfile, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" mapstructure:"type"`

	// Local LRU cache settings
	LocalMaxSize int           `json:"localMaxSize" mapstructure:"local_max_size"`
	LocalTTL     time.Duration `json:"localTtl" mapstructure:"local_ttl"`

	// Redis settings
	RedisAddr     string `json:"redisAddr" mapstructure:"redis_addr"`
	RedisPassword string `json:"-" mapstructure:"redis_password"`
	RedisDB       int    `json:"redisDb" mapstructure:"redis_db"`

	// EnableTwoPhase checks local first, then Redis.
	EnableTwoPhase bool `json:"enableTwoPhase" mapstructure:"enable_two_phase"`

	// ProfileTTL bounds how long a cost-sharing profile stays cached.
	ProfileTTL time.Duration `json:"profileTtl" mapstructure:"profile_ttl"`
}

// ProfileKey is the cache key for a benefit's cost-sharing profile.
func ProfileKey(benefitID string) string {
	return "profile:" + benefitID
}
