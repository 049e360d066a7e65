package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AzielCF/az-mediacache/mediacache/domain"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

const entryColumns = `id, owner_id, group_id, payload, remote_ref, label, created_at, last_accessed_at, size_bytes`

// SQLiteStore implements domain.Store on top of database/sql. The schema only
// uses portable SQL but is tuned for the sqlite3 driver.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (r *SQLiteStore) Init(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS media_cache_entries (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			remote_ref TEXT,
			label TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			last_accessed_at INTEGER NOT NULL,
			size_bytes INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_media_cache_owner ON media_cache_entries(owner_id);`,
		`CREATE INDEX IF NOT EXISTS idx_media_cache_group ON media_cache_entries(group_id);`,
		`CREATE INDEX IF NOT EXISTS idx_media_cache_created ON media_cache_entries(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_media_cache_accessed ON media_cache_entries(last_accessed_at);`,
	}

	for _, query := range queries {
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return pkgError.NewStorageFault("init", fmt.Errorf("failed to init schema: %w", err))
		}
	}
	return nil
}

func (r *SQLiteStore) Put(ctx context.Context, entry domain.Entry) error {
	query := `INSERT INTO media_cache_entries (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			group_id = excluded.group_id,
			payload = excluded.payload,
			remote_ref = excluded.remote_ref,
			label = excluded.label,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at,
			size_bytes = excluded.size_bytes`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.OwnerID, entry.GroupID, entry.Payload, nullString(entry.RemoteRef), entry.Label,
		toMillis(entry.CreatedAt), toMillis(entry.LastAccessedAt), entry.SizeBytes)
	return pkgError.AsStorageFault("put", err)
}

func (r *SQLiteStore) Get(ctx context.Context, id string) (domain.Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM media_cache_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return domain.Entry{}, pkgError.NotFoundError("cache entry not found")
	}
	if err != nil {
		return domain.Entry{}, pkgError.AsStorageFault("get", err)
	}
	return entry, nil
}

func (r *SQLiteStore) GetAllByOwner(ctx context.Context, ownerID string) ([]domain.Entry, error) {
	return r.query(ctx, "get_by_owner", `SELECT `+entryColumns+` FROM media_cache_entries WHERE owner_id = ?`, ownerID)
}

func (r *SQLiteStore) GetAllByGroup(ctx context.Context, groupID string) ([]domain.Entry, error) {
	return r.query(ctx, "get_by_group", `SELECT `+entryColumns+` FROM media_cache_entries WHERE group_id = ?`, groupID)
}

func (r *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM media_cache_entries WHERE id = ?`, id)
	return pkgError.AsStorageFault("delete", err)
}

func (r *SQLiteStore) ScanAll(ctx context.Context) ([]domain.Entry, error) {
	return r.query(ctx, "scan", `SELECT `+entryColumns+` FROM media_cache_entries`)
}

func (r *SQLiteStore) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM media_cache_entries`)
	return pkgError.AsStorageFault("clear", err)
}

func (r *SQLiteStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE media_cache_entries SET last_accessed_at = MAX(last_accessed_at, ?) WHERE id = ?`,
		toMillis(at), id)
	return pkgError.AsStorageFault("touch", err)
}

func (r *SQLiteStore) Close() error {
	return r.db.Close()
}

func (r *SQLiteStore) query(ctx context.Context, op, query string, args ...any) ([]domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pkgError.AsStorageFault(op, err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, pkgError.AsStorageFault(op, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgError.AsStorageFault(op, err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (domain.Entry, error) {
	var (
		entry              domain.Entry
		remoteRef          sql.NullString
		createdAt, lastAcc int64
	)
	err := row.Scan(&entry.ID, &entry.OwnerID, &entry.GroupID, &entry.Payload, &remoteRef, &entry.Label,
		&createdAt, &lastAcc, &entry.SizeBytes)
	if err != nil {
		return domain.Entry{}, err
	}
	entry.RemoteRef = remoteRef.String
	entry.CreatedAt = fromMillis(createdAt)
	entry.LastAccessedAt = fromMillis(lastAcc)
	return entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
