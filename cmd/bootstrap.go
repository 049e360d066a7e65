package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	coreconfig "github.com/AzielCF/az-mediacache/core/config"
	"github.com/AzielCF/az-mediacache/core/database"
	settingsApp "github.com/AzielCF/az-mediacache/core/settings/application"
	"github.com/AzielCF/az-mediacache/infrastructure/valkey"
	"github.com/AzielCF/az-mediacache/mediacache/application"
	"github.com/AzielCF/az-mediacache/mediacache/domain"
	"github.com/AzielCF/az-mediacache/mediacache/eviction"
	"github.com/AzielCF/az-mediacache/mediacache/fetcher"
	"github.com/AzielCF/az-mediacache/mediacache/repository"
)

// runtime is the wired object graph shared by every command.
type runtime struct {
	cfg        *coreconfig.Config
	store      domain.Store
	cache      *application.CacheService
	rehydrator *application.Rehydrator
	session    *application.Session
	settings   *settingsApp.SettingsService
	base       eviction.Config
	normalizer fetcher.Normalizer
	closers    []func() error
}

func evictionConfig(cfg coreconfig.CacheConfig) eviction.Config {
	return eviction.Config{
		MaxTotalBytes: cfg.MaxSizeBytes,
		MaxAge:        cfg.MaxAge,
		AgeWeight:     cfg.AgeWeight,
		AccessWeight:  cfg.AccessWeight,
		SafetyMargin:  cfg.SafetyMargin,
	}
}

func newRuntime(ctx context.Context, cfg *coreconfig.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, base: evictionConfig(cfg.Cache)}

	store, settingsDB, err := rt.openStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = store

	evictionCfg := rt.base
	if settingsDB != nil {
		rt.settings = settingsApp.NewSettingsService(settingsDB)
		if err := rt.settings.Init(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to init settings: %w", err)
		}
		overrides, err := rt.settings.Overrides(ctx)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		evictionCfg = overrides.Apply(rt.base)
		if err := evictionCfg.Validate(); err != nil {
			logrus.WithError(err).Warn("[CACHE] Stored eviction overrides are invalid, using configured values")
			evictionCfg = rt.base
		}
	}

	rt.cache = application.NewCacheService(store, evictionCfg, nil)

	mux, err := rt.newFetcher()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.rehydrator = application.NewRehydrator(rt.cache, mux, application.RehydratorConfig{
		BatchSize:  cfg.Rehydrate.BatchSize,
		BatchDelay: cfg.Rehydrate.BatchDelay,
		RearmDelay: cfg.Rehydrate.RearmDelay,
	})
	rt.session = application.NewSession(rt.cache, rt.rehydrator)

	logrus.WithFields(logrus.Fields{
		"store":     cfg.Cache.Store,
		"max_bytes": evictionCfg.MaxTotalBytes,
		"max_age":   evictionCfg.MaxAge,
	}).Debug("[CACHE] Runtime ready")
	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) (domain.Store, *gorm.DB, error) {
	cfg := rt.cfg
	switch cfg.Cache.Store {
	case coreconfig.StoreMemory:
		return repository.NewMemoryStore(), nil, nil

	case coreconfig.StoreSQLite:
		db, err := database.OpenSQLite(cfg.Database.Name)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewSQLiteStore(db)
		rt.closers = append(rt.closers, store.Close)
		if err := store.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to init sqlite store: %w", err)
		}
		// settings share the file through a separate gorm handle
		gdb, err := database.NewDatabase(coreconfig.DatabaseConfig{Driver: "sqlite", Name: cfg.Database.Name}, cfg.App.Debug)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, closeGorm(gdb))
		return store, gdb, nil

	case coreconfig.StoreGorm:
		gdb, err := database.NewDatabase(cfg.Database, cfg.App.Debug)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewGormStore(gdb)
		rt.closers = append(rt.closers, store.Close)
		if err := store.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to init gorm store: %w", err)
		}
		return store, gdb, nil

	case coreconfig.StoreValkey:
		client, err := valkey.NewClient(ctx, valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		store := repository.NewValkeyStore(client)
		return store, nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported cache store: %s", cfg.Cache.Store)
}

func (rt *runtime) newFetcher() (*fetcher.Mux, error) {
	cfg := rt.cfg
	rt.normalizer = fetcher.Normalizer{MaxDimension: cfg.Fetch.MaxDimension}

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPConfig{
		Timeout:    cfg.Fetch.Timeout,
		MaxBytes:   cfg.Fetch.MaxBytes,
		UserAgent:  cfg.Fetch.UserAgent,
		Normalizer: rt.normalizer,
	})
	mux := fetcher.NewMux().Handle(httpFetcher, "http", "https")

	if cfg.ObjectStore.Endpoint != "" {
		objectFetcher, err := fetcher.NewObjectStoreFetcher(fetcher.ObjectStoreConfig{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			Region:    cfg.ObjectStore.Region,
			UseSSL:    cfg.ObjectStore.UseSSL,
			MaxBytes:  cfg.Fetch.MaxBytes,
		}, rt.normalizer)
		if err != nil {
			return nil, err
		}
		mux.Handle(objectFetcher, "s3")
	}
	return mux, nil
}

func (rt *runtime) Close() {
	if rt.rehydrator != nil {
		rt.rehydrator.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logrus.WithError(err).Warn("[CACHE] Failed to close resource")
		}
	}
	rt.closers = nil
}

func closeGorm(db *gorm.DB) func() error {
	return func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}

// withRuntime builds the runtime for a one-shot command and tears it down after.
func withRuntime(fn func(ctx context.Context, rt *runtime) error) error {
	ctx := context.Background()
	rt, err := newRuntime(ctx, coreconfig.Global)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}
