package catalog

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviecatalog/storage"
)

// publish puts a poster straight into the store with no movie row.
func publish(t *testing.T, s storage.Store, key string) {
	t.Helper()
	ctx := context.Background()
	staged, err := s.Stage(ctx, bytes.NewReader([]byte(key)))
	require.NoError(t, err)
	_, err = s.Promote(ctx, staged, key)
	require.NoError(t, err)
	require.NoError(t, s.Discard(ctx, staged))
}

func TestSweepOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The fixture clock is 2024-05-01 10:30, so the cutoff is 09:30.
	kept, err := f.svc.Create(ctx, newMovie("kept.jpg", []byte("kept")))
	require.NoError(t, err)
	publish(t, f.store, "20240501090000_orphan.jpg")
	publish(t, f.store, "20240501102959_fresh.jpg")
	publish(t, f.store, "not-from-an-upload.png")

	report, err := f.svc.Sweep(ctx, time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240501090000_orphan.jpg"}, report.Orphans)
	assert.Empty(t, report.Staged)

	keys, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{kept.Poster, "20240501102959_fresh.jpg", "not-from-an-upload.png"}, keys)
}

func TestSweepStaged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.now = time.Now

	oldStaged, err := f.store.Stage(ctx, bytes.NewReader([]byte("old")))
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(f.store.Dir(), storage.StagingDirName, oldStaged.ID), old, old))

	newStaged, err := f.store.Stage(ctx, bytes.NewReader([]byte("new")))
	require.NoError(t, err)

	report, err := f.svc.Sweep(ctx, time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, []string{oldStaged.ID}, report.Staged)

	staged, err := f.store.ListStaged(ctx)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, newStaged.ID, staged[0].ID)
}

func TestSweepDryRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	publish(t, f.store, "20200101000000_orphan.jpg")

	report, err := f.svc.Sweep(ctx, time.Minute, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"20200101000000_orphan.jpg"}, report.Orphans)

	keys, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20200101000000_orphan.jpg"}, keys)
}
