// ABOUTME: Wires configuration, storage, memory bank, registry and console for one CLI invocation
// ABOUTME: Falls back to a default config under the XDG data directory when no config file exists

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/2389/memex/internal/config"
	"github.com/2389/memex/internal/console"
	"github.com/2389/memex/internal/conversation"
	"github.com/2389/memex/internal/dedupe"
	"github.com/2389/memex/internal/memory"
	"github.com/2389/memex/internal/store"
)

// app holds everything a command needs
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *store.SQLiteStore
	bank    *memory.Bank
	reg     *conversation.Registry
	query   *conversation.Query
	console *console.Console
	dedupe  *dedupe.Cache
	history *conversation.ActivityRecorder
}

func loadConfig() (*config.Config, string, error) {
	configPath := config.ResolvePath()

	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(filepath.Join(config.DataDir(), "memex.db")), "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading config from %s: %w", configPath, err)
	}
	return cfg, configPath, nil
}

func openApp(ctx context.Context) (*app, error) {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.Logging)
	if configPath != "" {
		logger.Debug("loaded config", "path", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := store.NewSQLiteStoreWithDriver(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	bank := memory.NewBank(db, cfg.Summarizer.TitleLength, logger)
	cache := dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize)

	reg := conversation.NewRegistry(conversation.Options{
		Store:            db,
		Memories:         bank,
		Summarizer:       memory.NewExtractiveSummarizer(cfg.Summarizer.TitleLength, cfg.Summarizer.SnippetLength),
		Broadcaster:      conversation.NewEventBroadcaster(cfg.Notifications.BufferSize, logger),
		Dedupe:           cache,
		SummarizeTimeout: cfg.Summarizer.Timeout,
		Logger:           logger,
	})

	if err := reg.Load(ctx); err != nil {
		cache.Close()
		reg.Broadcaster().Close()
		db.Close()
		return nil, fmt.Errorf("loading conversations: %w", err)
	}

	history := conversation.NewActivityRecorder(db, logger)
	history.Start(ctx, reg.Broadcaster())

	con := console.New(logger)
	if err := con.Register(console.MemoryCommands(reg, bank)...); err != nil {
		cache.Close()
		reg.Broadcaster().Close()
		history.Wait()
		db.Close()
		return nil, fmt.Errorf("registering console commands: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		bank:    bank,
		reg:     reg,
		query:   conversation.NewQuery(reg, bank),
		console: con,
		dedupe:  cache,
		history: history,
	}, nil
}

// Close releases the store and background workers. Closing the broadcaster
// first lets the activity recorder flush before the database goes away.
func (a *app) Close() {
	a.dedupe.Close()
	a.reg.Broadcaster().Close()
	a.history.Wait()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}
