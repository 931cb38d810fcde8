package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/cramplan/internal/config"
	"github.com/kalambet/cramplan/internal/genai"
	"github.com/kalambet/cramplan/internal/materials"
	"github.com/kalambet/cramplan/internal/planner"
	"github.com/kalambet/cramplan/internal/session"
	"github.com/kalambet/cramplan/internal/storage"
)

// app bundles the components every command works against.
type app struct {
	cfg     config.Config
	store   *storage.Store
	session *session.Manager
	planner *planner.Planner // nil when no API key is configured
	loader  *materials.Loader
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// loadApp reads config, sets up logging and opens storage.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)
	return openApp(cfg)
}

func openApp(cfg config.Config) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &app{
		cfg:     cfg,
		store:   store,
		session: session.NewManager(store),
		loader:  materials.NewLoader(),
	}

	if cfg.GenAI.APIKey != "" {
		opts, err := cfg.GenAI.Options()
		if err != nil {
			store.Close()
			return nil, err
		}
		a.planner = planner.New(genai.NewClient(cfg.GenAI.APIKey, opts), store)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}
