package domain

import "context"

// Setting is a persisted runtime override.
type Setting struct {
	Key   string
	Value string
}

// ISettingsRepository persists runtime overrides as plain key/value pairs.
type ISettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Setting, error)

	// InitSchema creates the necessary tables
	InitSchema(ctx context.Context) error
}

// Eviction override keys. Sizes are bytes, ages milliseconds.
const (
	KeyCacheMaxSizeBytes = "cache_max_size_bytes"
	KeyCacheMaxAgeMs     = "cache_max_age_ms"
	KeyCacheAgeWeight    = "cache_age_weight"
	KeyCacheAccessWeight = "cache_access_weight"
	KeyCacheSafetyMargin = "cache_safety_margin"
)

var EvictionKeys = []string{
	KeyCacheMaxSizeBytes,
	KeyCacheMaxAgeMs,
	KeyCacheAgeWeight,
	KeyCacheAccessWeight,
	KeyCacheSafetyMargin,
}
