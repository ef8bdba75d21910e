// Package app holds everything a running service needs, built once at
// startup and torn down on shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"moviecatalog/catalog"
	"moviecatalog/config"
	"moviecatalog/db"
	"moviecatalog/forms"
	"moviecatalog/models"
	"moviecatalog/storage"
)

type App struct {
	Config    *config.Config
	Log       *zap.Logger
	DB        *gorm.DB
	Store     storage.Store
	Catalog   *catalog.Service
	Validator *forms.Validator
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	conn, err := db.Open(cfg.Database.URL, cfg.Database.LogLevel)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to database", zap.String("dialect", conn.Dialector.Name()))

	store, err := newStore(ctx, cfg, log)
	if err != nil {
		_ = db.Close(conn)
		return nil, err
	}

	rules := forms.DefaultRules()
	rules.TitleMax = cfg.Movie.TitleMaxLength
	rules.MaxPosterSize = cfg.Movie.MaxUploadSize

	return &App{
		Config:    cfg,
		Log:       log,
		DB:        conn,
		Store:     store,
		Catalog:   catalog.NewService(conn, store, log),
		Validator: forms.NewValidator(rules),
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "local":
		store, err := storage.NewLocalStore(cfg.Storage.UploadDir, log)
		if err != nil {
			return nil, err
		}
		log.Info("Local poster store ready", zap.String("dir", cfg.Storage.UploadDir))
		return store, nil
	case "s3":
		return storage.NewS3Store(ctx, &cfg.S3, log)
	default:
		return nil, fmt.Errorf("unknown poster store %q", cfg.Storage.Backend)
	}
}

// Migrate creates or updates the schema.
func (a *App) Migrate() error {
	if err := models.Migrate(a.DB, a.Config.Movie.TitleColumnWidth); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (a *App) Ping(ctx context.Context) error {
	return db.Ping(ctx, a.DB)
}

func (a *App) Close() error {
	var errs []error
	if err := db.Close(a.DB); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if err := a.Log.Sync(); err != nil {
		// Sync on stdout/stderr fails with EINVAL on some platforms.
		a.Log.Debug("Logger sync failed", zap.Error(err))
	}
	return errors.Join(errs...)
}
