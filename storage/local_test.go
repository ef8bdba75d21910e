package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func newLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "uploads"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func readAll(t *testing.T, obj *Object) []byte {
	t.Helper()
	defer obj.Body.Close()
	b, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	return b
}

func TestLocalStageAndPromote(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	staged, err := s.Stage(ctx, bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, int64(len(pngHeader)), staged.Size)

	// Staged bytes are not servable.
	_, err = s.Open(ctx, staged.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	key, err := s.Promote(ctx, staged, "20240101000000_poster.png")
	require.NoError(t, err)
	assert.Equal(t, "20240101000000_poster.png", key)
	require.NoError(t, s.Discard(ctx, staged))

	obj, err := s.Open(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, int64(len(pngHeader)), obj.Size)
	assert.Equal(t, pngHeader, readAll(t, obj))

	staging, err := s.ListStaged(ctx)
	require.NoError(t, err)
	assert.Empty(t, staging)
}

func TestLocalPromoteDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	first, err := s.Stage(ctx, bytes.NewReader([]byte("first")))
	require.NoError(t, err)
	second, err := s.Stage(ctx, bytes.NewReader([]byte("second")))
	require.NoError(t, err)

	k1, err := s.Promote(ctx, first, "20240101000000_a.jpg")
	require.NoError(t, err)
	k2, err := s.Promote(ctx, second, "20240101000000_a.jpg")
	require.NoError(t, err)

	assert.Equal(t, "20240101000000_a.jpg", k1)
	assert.Equal(t, "20240101000000_a_1.jpg", k2)

	obj, err := s.Open(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, "first", string(readAll(t, obj)))
	assert.Equal(t, "image/jpeg", obj.ContentType)

	obj, err = s.Open(ctx, k2)
	require.NoError(t, err)
	assert.Equal(t, "second", string(readAll(t, obj)))
}

func TestLocalPromoteLongKey(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)
	key := UniqueKey(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), strings.Repeat("a", 400)+".png")

	for _, want := range []string{key, withSuffix(key, 1)} {
		staged, err := s.Stage(ctx, bytes.NewReader(pngHeader))
		require.NoError(t, err)
		got, err := s.Promote(ctx, staged, key)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		require.NoError(t, s.Discard(ctx, staged))
	}
}

func TestLocalPromoteMissingStaged(t *testing.T) {
	s := newLocalStore(t)

	_, err := s.Promote(context.Background(), Staged{ID: "nope"}, "x.jpg")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrKeyTaken))
}

func TestLocalPromoteRejectsBadKey(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)
	staged, err := s.Stage(ctx, bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	_, err = s.Promote(ctx, staged, "../escape.jpg")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLocalOpenRejectsTraversal(t *testing.T) {
	s := newLocalStore(t)
	secret := filepath.Join(filepath.Dir(s.Dir()), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0644))

	for _, key := range []string{"../secret.txt", "..", ".staging", ""} {
		_, err := s.Open(context.Background(), key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}

	_, err := s.Open(context.Background(), "missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRemoveAndDiscardAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	staged, err := s.Stage(ctx, bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	key, err := s.Promote(ctx, staged, "k.jpg")
	require.NoError(t, err)

	require.NoError(t, s.Discard(ctx, staged))
	require.NoError(t, s.Discard(ctx, staged))
	require.NoError(t, s.Remove(ctx, key))
	require.NoError(t, s.Remove(ctx, key))

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalListSkipsStaging(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	staged, err := s.Stage(ctx, bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	_, err = s.Promote(ctx, staged, "listed.png")
	require.NoError(t, err)

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"listed.png"}, keys)

	entries, err := s.ListStaged(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, staged.ID, entries[0].ID)
}

func TestLocalStageCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLocalStore(t).Stage(ctx, bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, context.Canceled)
}
