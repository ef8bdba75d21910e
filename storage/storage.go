// Package storage keeps poster bytes. Uploads land in a staging area first
// and are promoted to their final key once the caller is ready to commit,
// so a failed database write never leaves a servable orphan behind.
package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrNotFound   = errors.New("poster not found")
	ErrInvalidKey = errors.New("invalid poster key")
	ErrKeyTaken   = errors.New("no free poster key")
)

// maxPromoteAttempts bounds the _1, _2, ... suffix search on key collisions.
const maxPromoteAttempts = 100

// Staged identifies an upload sitting in the staging area.
type Staged struct {
	ID   string
	Size int64
}

// StagedEntry is a staging area listing item.
type StagedEntry struct {
	ID      string
	ModTime time.Time
}

// Object is an open poster. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	ModTime     time.Time
}

type Store interface {
	// Stage copies r into the staging area.
	Stage(ctx context.Context, r io.Reader) (Staged, error)
	// Promote publishes staged bytes under key without overwriting an
	// existing poster and returns the key actually used.
	Promote(ctx context.Context, staged Staged, key string) (string, error)
	// Discard drops a staged upload. Discarding twice is not an error.
	Discard(ctx context.Context, staged Staged) error
	// Remove deletes a published poster. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	Open(ctx context.Context, key string) (*Object, error)
	List(ctx context.Context) ([]string, error)
	ListStaged(ctx context.Context) ([]StagedEntry, error)
}

var (
	_ Store = (*LocalStore)(nil)
	_ Store = (*S3Store)(nil)
)

// contentTypeFor prefers a sniffed image type, then the extension, then
// whatever was sniffed.
func contentTypeFor(sniffed *mimetype.MIME, key string) string {
	if sniffed != nil && strings.HasPrefix(sniffed.String(), "image/") {
		return sniffed.String()
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(key))); byExt != "" {
		return byExt
	}
	if sniffed != nil {
		return sniffed.String()
	}
	return "application/octet-stream"
}
