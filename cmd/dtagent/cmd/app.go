package cmd

import (
	"log/slog"

	"github.com/DayuGuo/DEVONthink-agent/internal/config"
	"github.com/DayuGuo/DEVONthink-agent/internal/devonthink"
	"github.com/DayuGuo/DEVONthink-agent/internal/embed"
	"github.com/DayuGuo/DEVONthink-agent/internal/index"
	"github.com/DayuGuo/DEVONthink-agent/internal/search"
	"github.com/DayuGuo/DEVONthink-agent/internal/store"
	"github.com/DayuGuo/DEVONthink-agent/internal/telemetry"
)

// app bundles the collaborators a command needs. The telemetry store
// may be nil when the database cannot be opened.
type app struct {
	cfg       *config.Config
	repo      devonthink.Repository
	embedder  embed.Embedder
	store     *store.Store
	engine    *search.Engine
	manager   *index.Manager
	telemetry *telemetry.Store
	logger    *slog.Logger
}

// newApp builds the full component stack from the loaded config. The
// vector index is loaded from disk if an index exists; a missing or
// stale index leaves the store empty, which the search engine treats
// as semantic being unavailable.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := slog.Default()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.New(store.Options{
		Dir:        cfg.IndexDir(),
		Dimensions: embedder.Dimensions(),
		Provider:   cfg.Embeddings.Provider,
		Model:      embedder.ModelName(),
	}, logger)
	if err != nil {
		return nil, err
	}
	st.Load()

	repo := newRepository(cfg)

	tel, err := telemetry.Open(cfg.TelemetryPath(), logger)
	if err != nil {
		logger.Warn("telemetry unavailable", "error", err)
		tel = nil
	}

	var recorder search.Recorder
	if tel != nil {
		recorder = tel
	}

	return &app{
		cfg:       cfg,
		repo:      repo,
		embedder:  embedder,
		store:     st,
		engine:    search.NewEngine(repo, embedder, st, cfg.Search, recorder, logger),
		manager:   index.NewManager(repo, embedder, st, cfg.Indexing, cfg.Embeddings, logger),
		telemetry: tel,
		logger:    logger,
	}, nil
}

// Close releases provider and telemetry resources.
func (a *app) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.telemetry != nil {
		_ = a.telemetry.Close()
	}
}
