package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AzielCF/az-mediacache/infrastructure/valkey"
	"github.com/AzielCF/az-mediacache/mediacache/domain"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEntry(id, owner, group string, age time.Duration) domain.Entry {
	payload := "data:image/png;base64,aWQ6" + id
	return domain.Entry{
		ID:             id,
		OwnerID:        owner,
		GroupID:        group,
		Payload:        payload,
		Label:          "a cat wearing " + id,
		CreatedAt:      base.Add(-age),
		LastAccessedAt: base.Add(-age),
		SizeBytes:      domain.PayloadSize(payload),
	}
}

func ids(entries []domain.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	sort.Strings(out)
	return out
}

func setupSQLiteStore(t *testing.T) domain.Store {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL", filepath.Join(t.TempDir(), "cache.db")))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	store := NewSQLiteStore(db)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func setupGormStore(t *testing.T) domain.Store {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "cache.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewGormStore(db)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func setupValkeyStore(t *testing.T) domain.Store {
	client, err := valkey.NewClient(context.Background(), valkey.Config{
		Address:        "localhost:6379",
		KeyPrefix:      "mediacache-test-" + t.Name(),
		ConnectTimeout: 300 * time.Millisecond,
	})
	if err != nil {
		t.Skip("No valkey")
	}
	store := NewValkeyStore(client)
	require.NoError(t, store.Clear(context.Background()))
	t.Cleanup(func() {
		_ = store.Clear(context.Background())
		_ = client.Close()
	})
	return store
}

func TestStores(t *testing.T) {
	backends := map[string]func(t *testing.T) domain.Store{
		"memory": func(t *testing.T) domain.Store { return NewMemoryStore() },
		"sqlite": setupSQLiteStore,
		"gorm":   setupGormStore,
		"valkey": setupValkeyStore,
	}

	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("PutGetRoundTrip", func(t *testing.T) { testPutGetRoundTrip(t, setup(t)) })
			t.Run("UpsertReplaces", func(t *testing.T) { testUpsertReplaces(t, setup(t)) })
			t.Run("SecondaryLookups", func(t *testing.T) { testSecondaryLookups(t, setup(t)) })
			t.Run("DeleteAndClear", func(t *testing.T) { testDeleteAndClear(t, setup(t)) })
			t.Run("TouchIsMonotonicAndNeverResurrects", func(t *testing.T) { testTouch(t, setup(t)) })
		})
	}
}

func testPutGetRoundTrip(t *testing.T, store domain.Store) {
	ctx := context.Background()
	entry := newEntry("img-1", "u1", "c1", time.Minute)
	entry.RemoteRef = "https://blobs.example.com/img-1.png"

	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, entry.Payload, got.Payload)
	assert.Equal(t, entry.RemoteRef, got.RemoteRef)
	assert.Equal(t, entry.Label, got.Label)
	assert.Equal(t, entry.SizeBytes, got.SizeBytes)
	assert.True(t, entry.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, entry.LastAccessedAt.Equal(got.LastAccessedAt))

	_, err = store.Get(ctx, "missing")
	assert.True(t, pkgError.IsNotFound(err))

	padded := newEntry("img-2", "u1", "c1", time.Minute)
	padded.RemoteRef = " s3://media/img-2.png\n"
	require.NoError(t, store.Put(ctx, padded))
	got, err = store.Get(ctx, "img-2")
	require.NoError(t, err)
	assert.Equal(t, padded.RemoteRef, got.RemoteRef)
}

func testUpsertReplaces(t *testing.T, store domain.Store) {
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, newEntry("img-1", "u1", "c1", time.Hour)))

	replacement := newEntry("img-1", "u2", "c9", 0)
	replacement.Payload = "data:image/png;base64,bmV3"
	replacement.SizeBytes = domain.PayloadSize(replacement.Payload)
	require.NoError(t, store.Put(ctx, replacement))

	got, err := store.Get(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, "u2", got.OwnerID)
	assert.Equal(t, replacement.Payload, got.Payload)

	all, err := store.ScanAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	old, err := store.GetAllByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, old)
	moved, err := store.GetAllByGroup(ctx, "c9")
	require.NoError(t, err)
	assert.Equal(t, []string{"img-1"}, ids(moved))
}

func testSecondaryLookups(t *testing.T, store domain.Store) {
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, newEntry("a", "u1", "c1", 0)))
	require.NoError(t, store.Put(ctx, newEntry("b", "u1", "c2", 0)))
	require.NoError(t, store.Put(ctx, newEntry("c", "u2", "c2", 0)))

	byOwner, err := store.GetAllByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(byOwner))

	byGroup, err := store.GetAllByGroup(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(byGroup))

	none, err := store.GetAllByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testDeleteAndClear(t *testing.T, store domain.Store) {
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, newEntry("a", "u1", "c1", 0)))
	require.NoError(t, store.Put(ctx, newEntry("b", "u1", "c1", 0)))

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "a"), "deleting an absent id is a no-op")

	all, err := store.ScanAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(all))

	byOwner, err := store.GetAllByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(byOwner))

	require.NoError(t, store.Clear(ctx))
	all, err = store.ScanAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testTouch(t *testing.T, store domain.Store) {
	ctx := context.Background()
	entry := newEntry("a", "u1", "c1", time.Hour)
	require.NoError(t, store.Put(ctx, entry))

	require.NoError(t, store.Touch(ctx, "a", base))
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, base.Equal(got.LastAccessedAt))

	// Older timestamps never move recency backwards.
	require.NoError(t, store.Touch(ctx, "a", base.Add(-2*time.Hour)))
	got, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, base.Equal(got.LastAccessedAt))

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Touch(ctx, "a", base.Add(time.Hour)))
	_, err = store.Get(ctx, "a")
	assert.True(t, pkgError.IsNotFound(err))
}
