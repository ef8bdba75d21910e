package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StagingDirName is the hidden subdirectory of the upload dir holding
// staged uploads. Hidden names are never valid keys, so it is not servable.
const StagingDirName = ".staging"

// LocalStore keeps posters as flat files in a directory.
type LocalStore struct {
	dir        string
	stagingDir string
	log        *zap.Logger
}

func NewLocalStore(dir string, log *zap.Logger) (*LocalStore, error) {
	s := &LocalStore{
		dir:        dir,
		stagingDir: filepath.Join(dir, StagingDirName),
		log:        log,
	}
	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return s, nil
}

// Dir returns the directory published posters live in.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) stagedPath(id string) string {
	return filepath.Join(s.stagingDir, id)
}

func (s *LocalStore) Stage(ctx context.Context, r io.Reader) (Staged, error) {
	if err := ctx.Err(); err != nil {
		return Staged{}, err
	}

	id := uuid.NewString()
	path := s.stagedPath(id)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return Staged{}, fmt.Errorf("failed to create staged file: %w", err)
	}

	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return Staged{}, fmt.Errorf("failed to write staged file: %w", err)
	}

	return Staged{ID: id, Size: n}, nil
}

func (s *LocalStore) Promote(ctx context.Context, staged Staged, key string) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	src := s.stagedPath(staged.ID)

	for i := 0; i < maxPromoteAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := withSuffix(key, i)
		err := placeExclusive(src, filepath.Join(s.dir, candidate))
		if err == nil {
			if candidate != key {
				s.log.Info("Poster key taken, using suffixed key",
					zap.String("requested", key),
					zap.String("key", candidate))
			}
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to promote poster %s: %w", candidate, err)
		}
	}
	return "", ErrKeyTaken
}

// placeExclusive makes dst a copy of src, failing with fs.ErrExist if dst
// already exists. A hard link is tried first; filesystems without link
// support fall back to an exclusive-create copy.
func placeExclusive(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return err
	}
	if errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return copyExclusive(src, dst)
}

func copyExclusive(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
	}
	return err
}

func (s *LocalStore) Discard(_ context.Context, staged Staged) error {
	if staged.ID == "" {
		return nil
	}
	if err := os.Remove(s.stagedPath(staged.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) Remove(_ context.Context, key string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	if err := os.Remove(filepath.Join(s.dir, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, key string) (*Object, error) {
	if !ValidKey(key) {
		return nil, ErrInvalidKey
	}

	// os.DirFS refuses names that escape the directory.
	f, err := os.DirFS(s.dir).Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}

	file, ok := f.(*os.File)
	if !ok {
		f.Close()
		return nil, fmt.Errorf("unexpected file type %T", f)
	}
	sniffed, err := mimetype.DetectReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}

	return &Object{
		Body:        file,
		Size:        info.Size(),
		ContentType: contentTypeFor(sniffed, key),
		ModTime:     info.ModTime(),
	}, nil
}

func (s *LocalStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		keys = append(keys, e.Name())
	}
	return keys, nil
}

func (s *LocalStore) ListStaged(_ context.Context) ([]StagedEntry, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		return nil, err
	}
	var staged []StagedEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		staged = append(staged, StagedEntry{ID: e.Name(), ModTime: info.ModTime()})
	}
	return staged, nil
}
