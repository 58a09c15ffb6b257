package main

import (
	"fmt"
	"net/http"

	"github.com/cesargomez89/keepoffline/internal/app"
	"github.com/cesargomez89/keepoffline/internal/config"
	"github.com/cesargomez89/keepoffline/internal/constants"
	"github.com/cesargomez89/keepoffline/internal/engine"
	"github.com/cesargomez89/keepoffline/internal/httpclient"
	"github.com/cesargomez89/keepoffline/internal/logger"
	"github.com/cesargomez89/keepoffline/internal/metadata"
	"github.com/cesargomez89/keepoffline/internal/network"
	"github.com/cesargomez89/keepoffline/internal/storage"
	"github.com/cesargomez89/keepoffline/internal/store"
	"github.com/cesargomez89/keepoffline/internal/transfer/httpxfer"
)

// services is everything a command needs, built once from config.
type services struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *store.DB
	settings *store.SettingsRepo
	dir      *storage.Dir
	provider *httpxfer.Provider
	engine   *engine.Engine
	jobs     *app.JobService
}

func loadServices() (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	client := &http.Client{Timeout: constants.DefaultHTTPTimeout}
	metadataClient := httpclient.NewClientWithBackoff(client, 0, constants.DefaultRetryBase, constants.DefaultRetryMaxDelay)
	repo := metadata.NewCachedRepository(
		metadata.NewHTTPRepository(cfg.MetadataURL, metadataClient),
		db, cfg.CacheSize, cfg.CacheTTL,
	)

	// nil selects the backend's own transport with header and stall timeouts.
	provider := httpxfer.New(nil, log, httpxfer.DefaultOptions())

	settings := store.NewSettingsRepo(db)
	dir := storage.NewDir(cfg.DownloadsDir)
	checker := network.New(cfg.ConnectivityProbe, constants.DefaultProbeTimeout)

	eng := engine.New(db, repo, provider, dir, settings, checker, engine.Options{
		StatusInterval: cfg.StatusInterval,
		UpdateInterval: cfg.UpdateInterval,
		ReplanInterval: cfg.ReplanInterval,
		RetryBackoff:   cfg.RetryBackoff,
		Limits: engine.Limits{
			Support: cfg.MaxSupportTransfers,
			Video:   cfg.MaxVideoTransfers,
		},
	}, log)

	return &services{
		cfg:      cfg,
		log:      log,
		db:       db,
		settings: settings,
		dir:      dir,
		provider: provider,
		engine:   eng,
		jobs:     app.NewJobService(db, settings, provider, repo, log),
	}, nil
}

func (rt *services) Close() {
	rt.provider.Close()
	if err := rt.db.Close(); err != nil {
		rt.log.Error("Failed to close database", "error", err)
	}
}
