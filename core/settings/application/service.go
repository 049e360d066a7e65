package application

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/AzielCF/az-mediacache/core/settings/domain"
	"github.com/AzielCF/az-mediacache/core/settings/infrastructure"
	"github.com/AzielCF/az-mediacache/mediacache/eviction"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

type SettingsService struct {
	repo domain.ISettingsRepository
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return NewSettingsServiceWithRepository(infrastructure.NewSettingsGormRepository(db))
}

func NewSettingsServiceWithRepository(repo domain.ISettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

func (s *SettingsService) Init(ctx context.Context) error {
	return s.repo.InitSchema(ctx)
}

// EvictionOverrides holds the eviction knobs changed at runtime. Nil fields
// keep the configured value.
type EvictionOverrides struct {
	MaxTotalBytes *int64   `json:"max_total_bytes,omitempty"`
	MaxAgeMs      *int64   `json:"max_age_ms,omitempty"`
	AgeWeight     *float64 `json:"age_weight,omitempty"`
	AccessWeight  *float64 `json:"access_weight,omitempty"`
	SafetyMargin  *float64 `json:"safety_margin,omitempty"`
}

// Apply layers the overrides on top of base.
func (o EvictionOverrides) Apply(base eviction.Config) eviction.Config {
	if o.MaxTotalBytes != nil {
		base.MaxTotalBytes = *o.MaxTotalBytes
	}
	if o.MaxAgeMs != nil {
		base.MaxAge = time.Duration(*o.MaxAgeMs) * time.Millisecond
	}
	if o.AgeWeight != nil {
		base.AgeWeight = *o.AgeWeight
	}
	if o.AccessWeight != nil {
		base.AccessWeight = *o.AccessWeight
	}
	if o.SafetyMargin != nil {
		base.SafetyMargin = *o.SafetyMargin
	}
	return base
}

// Overrides reads the stored overrides. Unparseable values are ignored.
func (s *SettingsService) Overrides(ctx context.Context) (EvictionOverrides, error) {
	var o EvictionOverrides

	if val, err := s.repo.Get(ctx, domain.KeyCacheMaxSizeBytes); err != nil {
		return o, err
	} else if n, err := strconv.ParseInt(val, 10, 64); err == nil && n >= 0 {
		o.MaxTotalBytes = &n
	}
	if val, err := s.repo.Get(ctx, domain.KeyCacheMaxAgeMs); err != nil {
		return o, err
	} else if n, err := strconv.ParseInt(val, 10, 64); err == nil && n >= 0 {
		o.MaxAgeMs = &n
	}
	o.AgeWeight = s.getFloat(ctx, domain.KeyCacheAgeWeight)
	o.AccessWeight = s.getFloat(ctx, domain.KeyCacheAccessWeight)
	o.SafetyMargin = s.getFloat(ctx, domain.KeyCacheSafetyMargin)
	return o, nil
}

func (s *SettingsService) getFloat(ctx context.Context, key string) *float64 {
	val, _ := s.repo.Get(ctx, key)
	if val == "" {
		return nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f < 0 {
		return nil
	}
	return &f
}

// Update validates the merged result against base before persisting, so an
// invalid combination is never stored.
func (s *SettingsService) Update(ctx context.Context, base eviction.Config, o EvictionOverrides) (eviction.Config, error) {
	current, err := s.Overrides(ctx)
	if err != nil {
		return base, err
	}
	merged := o.Apply(current.Apply(base))
	if err := merged.Validate(); err != nil {
		return base, pkgError.ValidationError(err.Error())
	}

	if o.MaxTotalBytes != nil {
		if err := s.repo.Set(ctx, domain.KeyCacheMaxSizeBytes, strconv.FormatInt(*o.MaxTotalBytes, 10)); err != nil {
			return base, err
		}
	}
	if o.MaxAgeMs != nil {
		if err := s.repo.Set(ctx, domain.KeyCacheMaxAgeMs, strconv.FormatInt(*o.MaxAgeMs, 10)); err != nil {
			return base, err
		}
	}
	for key, v := range map[string]*float64{
		domain.KeyCacheAgeWeight:    o.AgeWeight,
		domain.KeyCacheAccessWeight: o.AccessWeight,
		domain.KeyCacheSafetyMargin: o.SafetyMargin,
	} {
		if v == nil {
			continue
		}
		if err := s.repo.Set(ctx, key, fmt.Sprintf("%g", *v)); err != nil {
			return base, err
		}
	}
	return merged, nil
}

// Reset drops every eviction override.
func (s *SettingsService) Reset(ctx context.Context) error {
	for _, key := range domain.EvictionKeys {
		if err := s.repo.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
