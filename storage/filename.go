package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// KeyTimeLayout is the timestamp prefix of every poster key.
const KeyTimeLayout = "20060102150405"

// MaxKeyLength bounds a poster key, collision suffix included. It matches
// the poster column width and the usual filesystem name limit.
const MaxKeyLength = 255

// maxSuffixLength is the room kept for the longest collision suffix, "_99".
const maxSuffixLength = 3

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces a client-supplied filename to a flat ASCII name
// made of [A-Za-z0-9_.-]. Whitespace runs become a single underscore and
// leading or trailing dots and underscores are dropped, so the result
// never contains a path separator and never starts with "..". It may be
// empty.
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(b.String())
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// UniqueKey builds the storage key for an uploaded poster:
// YYYYMMDDHHMMSS_<sanitized name>. When nothing of the name survives
// sanitizing, a random name with the original extension is used instead.
// Long names are shortened so the key plus a collision suffix stays within
// MaxKeyLength.
func UniqueKey(now time.Time, filename string) string {
	safe := SecureFilename(filename)
	if safe == "" {
		safe = uuid.NewString()
		if ext := SecureFilename(strings.ToLower(filepath.Ext(filename))); ext != "" {
			safe += "." + ext
		}
	}
	prefix := now.Format(KeyTimeLayout) + "_"
	return prefix + truncateName(safe, MaxKeyLength-maxSuffixLength-len(prefix))
}

// truncateName cuts name to at most limit bytes by shortening the stem.
// The extension is kept unless it is unreasonably long itself. name must
// be ASCII and must not start with a dot, as SecureFilename guarantees.
func truncateName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > limit/2 {
		ext = ""
	}
	stem := strings.TrimRight(name[:limit-len(ext)], "._")
	return stem + ext
}

// KeyTime parses the timestamp prefix of a key built by UniqueKey, in the
// given location.
func KeyTime(key string, loc *time.Location) (time.Time, bool) {
	if len(key) < len(KeyTimeLayout)+1 || key[len(KeyTimeLayout)] != '_' {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(KeyTimeLayout, key[:len(KeyTimeLayout)], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ValidKey reports whether key can name a poster: a single flat path
// element that is not hidden.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, ".") {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !strings.ContainsRune(key, 0)
}

// withSuffix inserts _n before the extension: a.jpg -> a_2.jpg.
func withSuffix(key string, n int) string {
	if n == 0 {
		return key
	}
	ext := filepath.Ext(key)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(key, ext), n, ext)
}
