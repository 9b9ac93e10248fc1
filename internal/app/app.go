package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/stellar-lua/stellar/internal/config"
	"github.com/stellar-lua/stellar/internal/ctxlog"
)

// App encapsulates one host process: its logger, its loaded configuration,
// and the run lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	model  *config.Model
}

// New is the constructor for the host application. It returns a fully
// initialized App instance with its own isolated logger and loaded
// configuration.
func New(outW io.Writer, cfg *Config, loader config.Loader) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, cfg.ConfigPath)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into the unified model.")

	if cfg.Listen != "" {
		model.Host.Listen = cfg.Listen
	}
	if cfg.URL != "" {
		model.Host.URL = cfg.URL
	}

	return &App{
		outW:   outW,
		logger: logger,
		model:  model,
	}
}

// Model returns the loaded configuration. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
