package catalog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"moviecatalog/models"
	"moviecatalog/storage"
)

// SweepReport lists what a sweep removed, or would remove on a dry run.
type SweepReport struct {
	Staged  []string `json:"staged"`
	Orphans []string `json:"orphans"`
}

// Sweep deletes leftovers of interrupted creates that are older than
// olderThan: staged uploads, and published posters no movie row points
// to. Posters whose key does not carry a creation timestamp are left alone.
func (s *Service) Sweep(ctx context.Context, olderThan time.Duration, dryRun bool) (*SweepReport, error) {
	cutoff := s.now().Add(-olderThan)
	report := &SweepReport{}

	staged, err := s.store.ListStaged(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing staged posters: %w", err)
	}
	for _, entry := range staged {
		if !entry.ModTime.Before(cutoff) {
			continue
		}
		if !dryRun {
			if err := s.store.Discard(ctx, storage.Staged{ID: entry.ID}); err != nil {
				return report, fmt.Errorf("discarding staged poster %s: %w", entry.ID, err)
			}
		}
		report.Staged = append(report.Staged, entry.ID)
	}

	// Snapshot referenced keys before listing files: a poster promoted
	// after this point is newer than the cutoff unless olderThan is zero.
	referenced, err := models.PosterKeys(ctx, s.db)
	if err != nil {
		return report, fmt.Errorf("loading poster keys: %w", err)
	}
	keys, err := s.store.List(ctx)
	if err != nil {
		return report, fmt.Errorf("listing posters: %w", err)
	}
	for _, key := range keys {
		if _, ok := referenced[key]; ok {
			continue
		}
		created, ok := storage.KeyTime(key, cutoff.Location())
		if !ok || !created.Before(cutoff) {
			continue
		}
		if !dryRun {
			if err := s.store.Remove(ctx, key); err != nil {
				return report, fmt.Errorf("removing orphaned poster %s: %w", key, err)
			}
		}
		report.Orphans = append(report.Orphans, key)
	}

	s.log.Info("Sweep finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("staged", len(report.Staged)),
		zap.Int("orphans", len(report.Orphans)))

	return report, nil
}
