package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"moviecatalog/db"
	"moviecatalog/models"
	"moviecatalog/storage"
)

type fixture struct {
	svc   *Service
	db    *gorm.DB
	store *storage.LocalStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	conn, err := db.Open(filepath.Join(dir, "movies.db"), "silent")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })
	require.NoError(t, models.Migrate(conn, 255))

	store, err := storage.NewLocalStore(filepath.Join(dir, "uploads"), zap.NewNop())
	require.NoError(t, err)

	svc := NewService(conn, store, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.Local) }
	return &fixture{svc: svc, db: conn, store: store}
}

func newMovie(filename string, body []byte) NewMovie {
	return NewMovie{
		Title:       "Inception",
		Description: "A mind-bending heist thriller about dreams within dreams.",
		Filename:    filename,
		Poster:      bytes.NewReader(body),
	}
}

func assertStagingEmpty(t *testing.T, s storage.Store) {
	t.Helper()
	staged, err := s.ListStaged(context.Background())
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := []byte("jpeg bytes")

	movie, err := f.svc.Create(ctx, newMovie("inception.jpg", body))
	require.NoError(t, err)
	assert.NotZero(t, movie.ID)
	assert.Equal(t, "20240501103000_inception.jpg", movie.Poster)
	assert.False(t, movie.CreatedAt.IsZero())

	obj, err := f.svc.Open(ctx, movie.Poster)
	require.NoError(t, err)
	defer obj.Body.Close()
	got, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	movies, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, movie.ID, movies[0].ID)

	assertStagingEmpty(t, f.store)
}

func TestCreateSameSecondGetsDistinctKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, newMovie("poster.png", []byte("a")))
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, newMovie("poster.png", []byte("b")))
	require.NoError(t, err)

	assert.Equal(t, "20240501103000_poster.png", a.Poster)
	assert.Equal(t, "20240501103000_poster_1.png", b.Poster)
}

func TestCreateInsertFailureRemovesPoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Migrator().DropTable(&models.Movie{}))

	_, err := f.svc.Create(ctx, newMovie("inception.jpg", []byte("x")))
	require.ErrorIs(t, err, ErrPersist)

	keys, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assertStagingEmpty(t, f.store)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestCreateStageFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, NewMovie{Title: "T", Description: "D", Filename: "a.jpg", Poster: errReader{}})
	require.ErrorIs(t, err, ErrPersist)

	var count int64
	require.NoError(t, f.db.Model(&models.Movie{}).Count(&count).Error)
	assert.Zero(t, count)
	assertStagingEmpty(t, f.store)
}

// failingPromote wraps a store and refuses to publish.
type failingPromote struct {
	storage.Store
}

func (failingPromote) Promote(context.Context, storage.Staged, string) (string, error) {
	return "", errors.New("disk full")
}

func TestCreatePromoteFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.store = failingPromote{f.store}

	_, err := f.svc.Create(ctx, newMovie("inception.jpg", []byte("x")))
	require.ErrorIs(t, err, ErrPersist)
	assert.Contains(t, err.Error(), "disk full")

	movies, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, movies)
	assertStagingEmpty(t, f.store)
}

func TestListIsStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		_, err := f.svc.Create(ctx, newMovie(name, []byte(name)))
		require.NoError(t, err)
	}

	first, err := f.svc.List(ctx)
	require.NoError(t, err)
	second, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestPosterURL(t *testing.T) {
	assert.Equal(t, "/api/v1/posters/20240101000000_a.jpg", PosterURL("20240101000000_a.jpg"))
}
