package application

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-mediacache/mediacache/domain"
	"github.com/AzielCF/az-mediacache/mediacache/eviction"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

type StoreRequest struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	GroupID   string `json:"group_id"`
	Payload   string `json:"payload"`
	Label     string `json:"label"`
	RemoteRef string `json:"remote_ref,omitempty"`
}

func (r StoreRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.GroupID, validation.Required),
		validation.Field(&r.Payload, validation.Required),
	)
}

// CacheStats extends the store summary with eviction counters.
type CacheStats struct {
	domain.Stats
	Evictions eviction.CounterSnapshot `json:"evictions"`
}

// CacheService is the single entry point for cache reads and writes. Every
// write runs an eviction pass sized for the incoming payload first.
type CacheService struct {
	store    domain.Store
	engine   *eviction.Engine
	counters *eviction.Counters
	clock    domain.Clock

	cleanupOnce sync.Once
}

func NewCacheService(store domain.Store, cfg eviction.Config, clock domain.Clock) *CacheService {
	if clock == nil {
		clock = domain.SystemClock
	}
	counters := &eviction.Counters{}
	return &CacheService{
		store:    store,
		engine:   eviction.NewEngine(cfg, store, clock, counters),
		counters: counters,
		clock:    clock,
	}
}

func (s *CacheService) Engine() *eviction.Engine {
	return s.engine
}

// now is truncated to the millisecond precision every backend persists.
func (s *CacheService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

func (s *CacheService) Store(ctx context.Context, req StoreRequest) (domain.Entry, error) {
	if err := req.Validate(); err != nil {
		return domain.Entry{}, pkgError.ValidationError(err.Error())
	}

	size := domain.PayloadSize(req.Payload)
	if _, err := s.engine.EnforceFor(ctx, req.ID, size); err != nil {
		return domain.Entry{}, err
	}

	now := s.now()
	entry := domain.Entry{
		ID:             req.ID,
		OwnerID:        req.OwnerID,
		GroupID:        req.GroupID,
		Payload:        req.Payload,
		RemoteRef:      req.RemoteRef,
		Label:          req.Label,
		CreatedAt:      now,
		LastAccessedAt: now,
		SizeBytes:      size,
	}
	if err := s.store.Put(ctx, entry); err != nil {
		return domain.Entry{}, pkgError.AsStorageFault("put", err)
	}

	logrus.WithFields(logrus.Fields{"id": entry.ID, "size": size}).Debug("[CACHE] Stored entry")
	return entry, nil
}

// Get returns the entry and bumps its recency. A miss is (zero, false, nil).
func (s *CacheService) Get(ctx context.Context, id string) (domain.Entry, bool, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		if pkgError.IsNotFound(err) {
			return domain.Entry{}, false, nil
		}
		return domain.Entry{}, false, pkgError.AsStorageFault("get", err)
	}

	now := s.now()
	if now.After(entry.LastAccessedAt) {
		if err := s.store.Touch(ctx, id, now); err != nil {
			return domain.Entry{}, false, pkgError.AsStorageFault("touch", err)
		}
		entry.LastAccessedAt = now
	}
	return entry, true, nil
}

// Exists checks for a local payload without touching recency.
func (s *CacheService) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.store.Get(ctx, id)
	if err == nil {
		return true, nil
	}
	if pkgError.IsNotFound(err) {
		return false, nil
	}
	return false, pkgError.AsStorageFault("get", err)
}

func (s *CacheService) GetByOwner(ctx context.Context, ownerID string) ([]domain.Entry, error) {
	entries, err := s.store.GetAllByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgError.AsStorageFault("get by owner", err)
	}
	return entries, nil
}

func (s *CacheService) GetByGroup(ctx context.Context, groupID string) ([]domain.Entry, error) {
	entries, err := s.store.GetAllByGroup(ctx, groupID)
	if err != nil {
		return nil, pkgError.AsStorageFault("get by group", err)
	}
	return entries, nil
}

// Delete removes one entry and reports how many were removed (0 or 1).
func (s *CacheService) Delete(ctx context.Context, id string) (int, error) {
	exists, err := s.Exists(ctx, id)
	if err != nil || !exists {
		return 0, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return 0, pkgError.AsStorageFault("delete", err)
	}
	return 1, nil
}

func (s *CacheService) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	entries, err := s.GetByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return s.deleteAll(ctx, entries, logrus.Fields{"owner_id": ownerID})
}

func (s *CacheService) DeleteByGroup(ctx context.Context, groupID string) (int, error) {
	entries, err := s.GetByGroup(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return s.deleteAll(ctx, entries, logrus.Fields{"group_id": groupID})
}

func (s *CacheService) deleteAll(ctx context.Context, entries []domain.Entry, fields logrus.Fields) (int, error) {
	removed := 0
	for _, e := range entries {
		if err := s.store.Delete(ctx, e.ID); err != nil {
			return removed, pkgError.AsStorageFault("delete", err)
		}
		removed++
	}
	if removed > 0 {
		logrus.WithFields(fields).WithField("removed", removed).Info("[CACHE] Bulk delete completed")
	}
	return removed, nil
}

// Stats scans the whole store; it never mutates anything.
func (s *CacheService) Stats(ctx context.Context) (CacheStats, error) {
	entries, err := s.store.ScanAll(ctx)
	if err != nil {
		return CacheStats{}, pkgError.AsStorageFault("stats", err)
	}

	var stats domain.Stats
	for _, e := range entries {
		stats.TotalEntries++
		stats.TotalBytes += e.SizeBytes
		created := e.CreatedAt
		if stats.OldestCreatedAt == nil || created.Before(*stats.OldestCreatedAt) {
			stats.OldestCreatedAt = &created
		}
		if stats.NewestCreatedAt == nil || created.After(*stats.NewestCreatedAt) {
			stats.NewestCreatedAt = &created
		}
	}

	cfg := s.engine.Config()
	stats.HumanSize = humanize.IBytes(uint64(stats.TotalBytes))
	stats.MaxTotalBytes = cfg.MaxTotalBytes
	stats.OverQuota = cfg.MaxTotalBytes > 0 && stats.TotalBytes > cfg.MaxTotalBytes

	return CacheStats{Stats: stats, Evictions: s.counters.Snapshot()}, nil
}

func (s *CacheService) ClearAll(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return pkgError.AsStorageFault("clear", err)
	}
	logrus.Info("[CACHE] Cleared all entries")
	return nil
}

// Prune runs an eviction pass with no pending write.
func (s *CacheService) Prune(ctx context.Context) (eviction.Plan, error) {
	return s.engine.Enforce(ctx, 0)
}

// StartBackgroundCleanup prunes every interval until ctx is done. Only the
// first call starts a loop.
func (s *CacheService) StartBackgroundCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.cleanupOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					logrus.Debug("[CACHE] Running scheduled cleanup...")
					plan, err := s.Prune(ctx)
					if err != nil {
						logrus.WithError(err).Error("[CACHE] Scheduled cleanup failed")
						continue
					}
					if len(plan.Victims) > 0 {
						logrus.Infof("[CACHE] Cleanup removed %d entries, freed %s", len(plan.Victims), humanize.IBytes(uint64(plan.FreedBytes())))
					}
				}
			}
		}()
	})
}
