package main

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/api"
	"taskboard/board"
	"taskboard/config"
	"taskboard/drag"
	"taskboard/storage"
)

const startupTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	var rc *redis.Client
	if cfg.Redis.ConnectionString != "" {
		opts, err := cfg.RedisOptions()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc = redis.NewClient(opts)
	}

	kv, err := openKV(ctx, cfg, rc)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	store, err := storage.New(kv, cfg.Store.Namespace, logger)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	engine := board.NewEngine(store.LoadBoard(ctx), store,
		board.WithLogger(logger),
		board.WithSaveTimeout(cfg.SaveTimeout),
	)
	profiles := board.NewProfiles(ctx, store, logger)

	var deduper board.Deduper
	if rc != nil {
		deduper = board.NewRedisDeduper(rc, cfg.DeduperTTL)
	} else {
		deduper = board.NewMemoryDeduper(cfg.DeduperTTL)
	}

	var auth api.Authenticator
	if cfg.AuthSecret != "" {
		a, err := api.NewAuth(cfg.AuthSecret, "", "")
		if err != nil {
			log.Fatalf("auth: %v", err)
		}
		auth = a
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(api.GzipRequestMiddleware(0))

	api.Register(e, api.Deps{
		Board:    engine,
		Profiles: profiles,
		Drag:     drag.NewController(engine, logger),
		Deduper:  deduper,
		Auth:     auth,
		Logger:   logger,
	})

	logger.WithFields(log.Fields{
		"addr":   cfg.ListenAddr,
		"driver": cfg.Store.Driver,
	}).Info("taskboard listening")
	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}

// openKV picks the blob store for the configured driver. The sql and
// aztable drivers get a Redis read cache when one is configured.
func openKV(ctx context.Context, cfg *config.Config, rc *redis.Client) (storage.KV, error) {
	var (
		kv  storage.KV
		err error
	)
	switch cfg.Store.Driver {
	case config.DriverRedis:
		return storage.NewRedisKV(rc), nil
	case config.DriverSQLite:
		kv, err = storage.OpenSQL(ctx, storage.SQLite, cfg.Store.SQLitePath, cfg.Store.Table)
	case config.DriverPostgres:
		kv, err = storage.OpenSQL(ctx, storage.Postgres, cfg.Store.PostgresDSN, cfg.Store.Table)
	case config.DriverAzTable:
		kv, err = storage.NewTableKV(ctx, cfg.Store.AzureConnectionString, cfg.Store.Table)
	}
	if err != nil {
		return nil, err
	}
	if rc != nil && cfg.Redis.CacheTTL > 0 {
		kv = storage.NewCache(kv, rc, cfg.Redis.CacheTTL)
	}
	return kv, nil
}
