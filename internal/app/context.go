// Package app assembles the engine from a workspace and its config.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"internfunnel/internal/config"
	"internfunnel/internal/db"
	"internfunnel/internal/engine"
	"internfunnel/internal/logging"
	"internfunnel/internal/metrics"
	"internfunnel/internal/migrate"
	"internfunnel/internal/sheets"
	"internfunnel/internal/signal"
)

// ResolveConfig loads the workspace config (or the defaults when the file
// is absent) and layers environment overrides on top. An explicit path
// must exist.
func ResolveConfig(workspace, path string, v *viper.Viper) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOptional(config.Path(workspace))
	}
	if err != nil {
		return nil, err
	}
	if workspace != "" && (cfg.Store.Workspace == "" || cfg.Store.Workspace == ".") {
		cfg.Store.Workspace = workspace
	}
	if v != nil {
		if err := cfg.ApplyEnv(v); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

type Options struct {
	Logger   *slog.Logger
	Registry prometheus.Registerer
	// SkipMigrate leaves the schema untouched; commands that only read use it.
	SkipMigrate bool
}

// Open opens the workspace database, migrates it and wires the engine with
// the configured spreadsheet sink and signal backend. The returned close
// function releases the database.
func Open(ctx context.Context, cfg *config.Config, opts Options) (engine.Engine, func() error, error) {
	conn, err := db.Open(db.Config{Workspace: cfg.Store.Workspace})
	if err != nil {
		return engine.Engine{}, nil, fmt.Errorf("open store: %w", err)
	}
	if !opts.SkipMigrate {
		if err := migrate.Migrate(conn); err != nil {
			conn.Close()
			return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	var m *metrics.Metrics
	if opts.Registry != nil {
		m = metrics.MustNew(opts.Registry)
	}
	eng := engine.New(conn, cfg, m)
	if opts.Logger != nil {
		eng.Logger = opts.Logger
	} else {
		eng.Logger = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}
	sink, err := NewSink(ctx, cfg)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	eng.Sheets = sink
	eng.Signals = NewSignalStore(conn, cfg)
	eng.Logger.Info("engine ready",
		"workspace", cfg.Store.Workspace,
		"sheets", sink.Name(),
		"signals", signalBackend(cfg),
		"ats_configured", eng.ATS.Configured(),
		"interview_configured", eng.Interview.Configured(),
		"email_configured", eng.Email.Configured(),
	)
	return eng, conn.Close, nil
}

// NewSink returns the spreadsheet sink selected by sheets.provider.
func NewSink(ctx context.Context, cfg *config.Config) (sheets.Sink, error) {
	switch cfg.Sheets.Provider {
	case "google":
		s, err := sheets.NewGoogleSink(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("google sheets sink: %w", err)
		}
		return s, nil
	case "excel":
		path := cfg.Sheets.ExcelPath
		if path == "" {
			path = "questionnaire-results.xlsx"
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Store.Workspace, path)
		}
		return sheets.NewExcelSink(path), nil
	}
	return sheets.Discard{}, nil
}

// NewSignalStore returns the completion-signal store selected by
// signals.backend.
func NewSignalStore(conn *sql.DB, cfg *config.Config) signal.Store {
	ttl := time.Duration(cfg.Signals.TTLMinutes) * time.Minute
	if signalBackend(cfg) == "sql" {
		return signal.NewSQLStore(conn, ttl)
	}
	return signal.NewMemoryStore(ttl)
}

func signalBackend(cfg *config.Config) string {
	if cfg.Signals.Backend == "sql" {
		return "sql"
	}
	return "memory"
}
