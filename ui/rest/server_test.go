package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	settingsApp "github.com/AzielCF/az-mediacache/core/settings/application"
	"github.com/AzielCF/az-mediacache/mediacache/application"
	"github.com/AzielCF/az-mediacache/mediacache/domain"
	"github.com/AzielCF/az-mediacache/mediacache/eviction"
	"github.com/AzielCF/az-mediacache/mediacache/repository"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

type testEnv struct {
	app        *fiber.App
	cache      *application.CacheService
	rehydrator *application.Rehydrator
}

func newTestEnv(t *testing.T, cfg ServerConfig) testEnv {
	t.Helper()

	cache := application.NewCacheService(repository.NewMemoryStore(), eviction.DefaultConfig(), nil)
	fetcher := domain.FetcherFunc(func(ctx context.Context, ref string) (string, error) {
		if strings.Contains(ref, "broken") {
			return "", &pkgError.RemoteUnavailable{Ref: ref, Status: 500}
		}
		return "data:text/plain;base64,aGk=", nil
	})
	rehydrator := application.NewRehydrator(cache, fetcher, application.DefaultRehydratorConfig())
	t.Cleanup(rehydrator.Close)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "settings.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	settings := settingsApp.NewSettingsService(db)
	require.NoError(t, settings.Init(context.Background()))

	app, err := NewServer(cfg,
		Cache{Service: cache, Rehydrator: rehydrator, Settings: settings, Base: eviction.DefaultConfig()},
		Rehydrate{Service: rehydrator, Session: application.NewSession(cache, rehydrator)},
	)
	require.NoError(t, err)
	return testEnv{app: app, cache: cache, rehydrator: rehydrator}
}

type envelope struct {
	Status  int             `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Results json.RawMessage `json:"results"`
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestCacheEntryLifecycle(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	status, res := do(t, env.app, http.MethodPost, "/api/cache/entries",
		`{"id":"img-1","owner_id":"u1","group_id":"c1","payload":"data:image/png;base64,AAAA","label":"cat"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "SUCCESS", res.Code)

	status, res = do(t, env.app, http.MethodGet, "/api/cache/entries/img-1", "")
	require.Equal(t, http.StatusOK, status)
	var entry domain.Entry
	require.NoError(t, json.Unmarshal(res.Results, &entry))
	assert.Equal(t, "data:image/png;base64,AAAA", entry.Payload)
	assert.Equal(t, "cat", entry.Label)

	status, res = do(t, env.app, http.MethodGet, "/api/cache/owners/u1/entries", "")
	require.Equal(t, http.StatusOK, status)
	var entries []domain.Entry
	require.NoError(t, json.Unmarshal(res.Results, &entries))
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Payload)

	status, res = do(t, env.app, http.MethodDelete, "/api/cache/entries/img-1", "")
	require.Equal(t, http.StatusOK, status)
	var removed DeleteResult
	require.NoError(t, json.Unmarshal(res.Results, &removed))
	assert.Equal(t, 1, removed.Removed)

	status, res = do(t, env.app, http.MethodGet, "/api/cache/entries/img-1", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND_ERROR", res.Code)
}

func TestStoreEntryGeneratesID(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	status, res := do(t, env.app, http.MethodPost, "/api/cache/entries",
		`{"owner_id":"u1","group_id":"c1","payload":"data:text/plain;base64,aGk="}`)
	require.Equal(t, http.StatusCreated, status)

	var entry domain.Entry
	require.NoError(t, json.Unmarshal(res.Results, &entry))
	assert.Len(t, entry.ID, 36)
}

func TestStoreEntryValidation(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	status, res := do(t, env.app, http.MethodPost, "/api/cache/entries",
		`{"owner_id":"u1","group_id":"c1","payload":"not a data url"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Code)
}

func TestBulkDeleteAndStats(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctx := context.Background()
	for _, req := range []application.StoreRequest{
		{ID: "a", OwnerID: "u1", GroupID: "c1", Payload: "data:,a"},
		{ID: "b", OwnerID: "u1", GroupID: "c2", Payload: "data:,b"},
		{ID: "c", OwnerID: "u2", GroupID: "c1", Payload: "data:,c"},
	} {
		_, err := env.cache.Store(ctx, req)
		require.NoError(t, err)
	}

	status, res := do(t, env.app, http.MethodDelete, "/api/cache/owners/u1/entries", "")
	require.Equal(t, http.StatusOK, status)
	var removed DeleteResult
	require.NoError(t, json.Unmarshal(res.Results, &removed))
	assert.Equal(t, 2, removed.Removed)

	status, res = do(t, env.app, http.MethodGet, "/api/cache/stats", "")
	require.Equal(t, http.StatusOK, status)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(res.Results, &stats))
	assert.Equal(t, 1, stats.Cache.TotalEntries)
	assert.Equal(t, application.StateIdle, stats.Rehydrate.State)

	status, _ = do(t, env.app, http.MethodPost, "/api/cache/clear", "")
	require.Equal(t, http.StatusOK, status)

	_, res = do(t, env.app, http.MethodGet, "/api/cache/stats", "")
	require.NoError(t, json.Unmarshal(res.Results, &stats))
	assert.Equal(t, 0, stats.Cache.TotalEntries)
	assert.Equal(t, int64(0), stats.Cache.TotalBytes)
}

func TestRehydrateEndpoints(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	status, res := do(t, env.app, http.MethodPost, "/api/rehydrate/now",
		`{"id":"x","remote_ref":"https://cdn/x.png","owner_id":"u1","group_id":"c1"}`)
	require.Equal(t, http.StatusOK, status)
	var now struct {
		Payload  string `json:"payload"`
		Fallback bool   `json:"fallback"`
	}
	require.NoError(t, json.Unmarshal(res.Results, &now))
	assert.Equal(t, "data:text/plain;base64,aGk=", now.Payload)
	assert.False(t, now.Fallback)

	_, res = do(t, env.app, http.MethodPost, "/api/rehydrate/now",
		`{"id":"y","remote_ref":"https://cdn/broken.png","owner_id":"u1","group_id":"c1"}`)
	require.NoError(t, json.Unmarshal(res.Results, &now))
	assert.Equal(t, "https://cdn/broken.png", now.Payload)
	assert.True(t, now.Fallback)

	status, _ = do(t, env.app, http.MethodPost, "/api/rehydrate",
		`{"id":"z","remote_ref":"https://cdn/z.png","owner_id":"u1","group_id":"c1"}`)
	assert.Equal(t, http.StatusAccepted, status)
	require.NoError(t, env.rehydrator.WaitIdle(context.Background()))

	ok, err := env.cache.Exists(context.Background(), "z")
	require.NoError(t, err)
	assert.True(t, ok)

	status, res = do(t, env.app, http.MethodPost, "/api/rehydrate", `{"owner_id":"u1","group_id":"c1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Code)

	status, _ = do(t, env.app, http.MethodPost, "/api/session/sign-out", "")
	require.Equal(t, http.StatusOK, status)
	ok, err = env.cache.Exists(context.Background(), "z")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	status, res := do(t, env.app, http.MethodPut, "/api/cache/settings", `{"max_total_bytes":2048,"safety_margin":0.1}`)
	require.Equal(t, http.StatusOK, status)
	var settings SettingsResponse
	require.NoError(t, json.Unmarshal(res.Results, &settings))
	assert.Equal(t, int64(2048), settings.MaxTotalBytes)
	assert.Equal(t, int64(2048), env.cache.Engine().Config().MaxTotalBytes)

	status, res = do(t, env.app, http.MethodPut, "/api/cache/settings", `{"safety_margin":3}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Code)

	status, _ = do(t, env.app, http.MethodDelete, "/api/cache/settings", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, eviction.DefaultConfig(), env.cache.Engine().Config())
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, ServerConfig{BasicAuth: []string{"admin:secret"}, BasePath: "/media"})

	req := httptest.NewRequest(http.MethodGet, "/media/api/healthz", nil)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/media/api/healthz", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = NewServer(ServerConfig{BasicAuth: []string{"nocolon"}}, Cache{}, Rehydrate{})
	assert.Error(t, err)
}
