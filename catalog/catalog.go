// Package catalog creates and lists movies. Creating a movie writes to two
// places, the poster store and the database, so it runs in phases:
//
//  1. stage the poster bytes (not yet servable)
//  2. in one transaction: promote the poster to its final key, insert the row
//  3. commit
//
// If anything after promotion fails, the promoted poster is removed again.
// The staged copy is always discarded before Create returns.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"moviecatalog/models"
	"moviecatalog/storage"
)

// ErrPersist marks failures to store a movie. Callers show a generic
// message; the wrapped cause is for logs only.
var ErrPersist = errors.New("failed to save movie")

// PosterPathPrefix is where posters are served from.
const PosterPathPrefix = "/api/v1/posters/"

type Service struct {
	db    *gorm.DB
	store storage.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewService(db *gorm.DB, store storage.Store, log *zap.Logger) *Service {
	return &Service{
		db:    db,
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// NewMovie is a validated submission.
type NewMovie struct {
	Title       string
	Description string
	Filename    string
	Poster      io.Reader
}

// Create stores the poster and inserts the movie row.
func (s *Service) Create(ctx context.Context, in NewMovie) (*models.Movie, error) {
	staged, err := s.store.Stage(ctx, in.Poster)
	if err != nil {
		return nil, fmt.Errorf("%w: staging poster: %w", ErrPersist, err)
	}
	defer s.discard(ctx, staged)

	key := storage.UniqueKey(s.now(), in.Filename)
	movie := &models.Movie{
		Title:       in.Title,
		Description: in.Description,
	}

	var promoted string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		k, err := s.store.Promote(ctx, staged, key)
		if err != nil {
			return fmt.Errorf("promoting poster: %w", err)
		}
		promoted = k
		movie.Poster = k

		if err := tx.Create(movie).Error; err != nil {
			return fmt.Errorf("inserting movie: %w", err)
		}
		return nil
	})
	if err != nil {
		if promoted != "" {
			s.removePoster(ctx, promoted)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.log.Info("Movie created",
		zap.Uint("id", movie.ID),
		zap.String("title", movie.Title),
		zap.String("poster", movie.Poster),
		zap.Int64("size", staged.Size))

	return movie, nil
}

// discard and removePoster run after the request may have been canceled,
// so they detach from its cancellation.
func (s *Service) discard(ctx context.Context, staged storage.Staged) {
	if err := s.store.Discard(context.WithoutCancel(ctx), staged); err != nil {
		s.log.Warn("Failed to discard staged poster",
			zap.String("staged_id", staged.ID),
			zap.Error(err))
	}
}

func (s *Service) removePoster(ctx context.Context, key string) {
	if err := s.store.Remove(context.WithoutCancel(ctx), key); err != nil {
		s.log.Error("Failed to remove poster of unsaved movie",
			zap.String("poster", key),
			zap.Error(err))
		return
	}
	s.log.Info("Removed poster of unsaved movie", zap.String("poster", key))
}

// List returns all movies in insertion order.
func (s *Service) List(ctx context.Context) ([]models.Movie, error) {
	return models.ListMovies(ctx, s.db)
}

// Open streams a stored poster.
func (s *Service) Open(ctx context.Context, key string) (*storage.Object, error) {
	return s.store.Open(ctx, key)
}

// PosterURL is the public path of a poster key.
func PosterURL(key string) string {
	return PosterPathPrefix + key
}
