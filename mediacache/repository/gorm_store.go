package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-mediacache/mediacache/domain"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cacheEntryModel is the GORM persistence model. The domain Entry carries no
// gorm tags.
type cacheEntryModel struct {
	ID             string `gorm:"primaryKey"`
	OwnerID        string `gorm:"column:owner_id;not null;index:idx_media_cache_entries_owner"`
	GroupID        string `gorm:"column:group_id;not null;index:idx_media_cache_entries_group"`
	Payload        string `gorm:"column:payload;not null"`
	RemoteRef      *string
	Label          string `gorm:"column:label;not null;default:''"`
	CreatedAt      int64  `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_media_cache_entries_created"`
	LastAccessedAt int64  `gorm:"column:last_accessed_at;not null;index:idx_media_cache_entries_accessed"`
	SizeBytes      int64  `gorm:"column:size_bytes;not null"`
}

func (cacheEntryModel) TableName() string {
	return "media_cache_entries"
}

// GormStore implements domain.Store using GORM, so the same table can live in
// SQLite or Postgres depending on the configured dialector.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Init creates the table and its indexes with AutoMigrate.
func (r *GormStore) Init(ctx context.Context) error {
	return pkgError.AsStorageFault("init", r.db.WithContext(ctx).AutoMigrate(&cacheEntryModel{}))
}

func (r *GormStore) Put(ctx context.Context, entry domain.Entry) error {
	model := toCacheEntryModel(entry)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model).Error
	return pkgError.AsStorageFault("put", err)
}

func (r *GormStore) Get(ctx context.Context, id string) (domain.Entry, error) {
	var model cacheEntryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Entry{}, pkgError.NotFoundError("cache entry not found")
		}
		return domain.Entry{}, pkgError.AsStorageFault("get", err)
	}
	return fromCacheEntryModel(model), nil
}

func (r *GormStore) GetAllByOwner(ctx context.Context, ownerID string) ([]domain.Entry, error) {
	return r.find(ctx, "get_by_owner", "owner_id = ?", ownerID)
}

func (r *GormStore) GetAllByGroup(ctx context.Context, groupID string) ([]domain.Entry, error) {
	return r.find(ctx, "get_by_group", "group_id = ?", groupID)
}

func (r *GormStore) Delete(ctx context.Context, id string) error {
	return pkgError.AsStorageFault("delete", r.db.WithContext(ctx).Delete(&cacheEntryModel{}, "id = ?", id).Error)
}

func (r *GormStore) ScanAll(ctx context.Context) ([]domain.Entry, error) {
	var models []cacheEntryModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, pkgError.AsStorageFault("scan", err)
	}
	return fromCacheEntryModels(models), nil
}

func (r *GormStore) Clear(ctx context.Context) error {
	err := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&cacheEntryModel{}).Error
	return pkgError.AsStorageFault("clear", err)
}

func (r *GormStore) Touch(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&cacheEntryModel{}).
		Where("id = ? AND last_accessed_at < ?", id, toMillis(at)).
		Update("last_accessed_at", toMillis(at)).Error
	return pkgError.AsStorageFault("touch", err)
}

func (r *GormStore) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *GormStore) find(ctx context.Context, op, where string, arg string) ([]domain.Entry, error) {
	var models []cacheEntryModel
	if err := r.db.WithContext(ctx).Where(where, arg).Find(&models).Error; err != nil {
		return nil, pkgError.AsStorageFault(op, err)
	}
	return fromCacheEntryModels(models), nil
}

func toCacheEntryModel(e domain.Entry) cacheEntryModel {
	model := cacheEntryModel{
		ID:             e.ID,
		OwnerID:        e.OwnerID,
		GroupID:        e.GroupID,
		Payload:        e.Payload,
		Label:          e.Label,
		CreatedAt:      toMillis(e.CreatedAt),
		LastAccessedAt: toMillis(e.LastAccessedAt),
		SizeBytes:      e.SizeBytes,
	}
	if e.RemoteRef != "" {
		ref := e.RemoteRef
		model.RemoteRef = &ref
	}
	return model
}

func fromCacheEntryModel(m cacheEntryModel) domain.Entry {
	entry := domain.Entry{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		GroupID:        m.GroupID,
		Payload:        m.Payload,
		Label:          m.Label,
		CreatedAt:      fromMillis(m.CreatedAt),
		LastAccessedAt: fromMillis(m.LastAccessedAt),
		SizeBytes:      m.SizeBytes,
	}
	if m.RemoteRef != nil {
		entry.RemoteRef = *m.RemoteRef
	}
	return entry
}

func fromCacheEntryModels(models []cacheEntryModel) []domain.Entry {
	result := make([]domain.Entry, len(models))
	for i, m := range models {
		result[i] = fromCacheEntryModel(m)
	}
	return result
}
