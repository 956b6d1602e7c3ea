package rendercache

import (
	"context"
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileCache implements a file-based cache for CLI usage.
// Rendered images are binary blobs, so entries are stored raw with a
// fixed-size expiry header rather than wrapped in an envelope that
// would inflate them. Writes go through a temp file and rename so a
// crashed write never leaves a truncated entry behind.
type FileCache struct {
	dir string
}

// entryHeader is the fixed-size prefix of every cache file: a magic
// byte, a version byte, and the expiry as big-endian unix nanoseconds
// (zero means no expiry).
const (
	entryMagic   = 0xC4
	entryVersion = 1
	headerSize   = 2 + 8
)

// NewFileCache creates a file-based cache in the given directory.
// The directory will be created if it doesn't exist.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

// Get implements Cache.
func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	data, expired := decodeEntry(raw)
	if data == nil || expired {
		// Corrupt or stale - drop and treat as miss.
		_ = os.Remove(path)
		return nil, false, nil
	}
	return data, true, nil
}

// Set implements Cache.
func (c *FileCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	// ttl of zero means no expiry; a negative ttl writes an already
	// expired entry.
	var expiresAt time.Time
	if ttl != 0 {
		expiresAt = time.Now().Add(ttl)
	}

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(encodeHeader(expiresAt)); err == nil {
		_, err = tmp.Write(data)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Delete implements Cache.
func (c *FileCache) Delete(_ context.Context, key string) error {
	err := os.Remove(c.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Prune walks the cache directory and removes entries that have
// expired or cannot be decoded. It returns the number of files
// removed.
func (c *FileCache) Prune(ctx context.Context) (int, error) {
	removed := 0
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		data, expired := decodeEntry(raw)
		if data != nil && !expired {
			return nil
		}
		if os.Remove(path) == nil {
			removed++
		}
		return nil
	})
	return removed, err
}

// Close does nothing for file cache.
func (c *FileCache) Close() error {
	return nil
}

// encodeHeader builds the entry prefix for the given expiry.
func encodeHeader(expiresAt time.Time) []byte {
	h := make([]byte, headerSize)
	h[0] = entryMagic
	h[1] = entryVersion
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(h[2:], uint64(expiresAt.UnixNano()))
	}
	return h
}

// decodeEntry splits a cache file into payload and expiry state.
// A nil payload means the entry is corrupt.
func decodeEntry(raw []byte) (data []byte, expired bool) {
	if len(raw) < headerSize || raw[0] != entryMagic || raw[1] != entryVersion {
		return nil, false
	}
	if ns := binary.BigEndian.Uint64(raw[2:]); ns != 0 && time.Now().UnixNano() > int64(ns) {
		return raw[headerSize:], true
	}
	return raw[headerSize:], false
}

// path converts a cache key to a file path.
// Uses a simple hash-based directory structure to avoid too many files
// in one dir.
func (c *FileCache) path(key string) string {
	hash := Hash([]byte(key))
	// Use first 2 chars as subdirectory for distribution
	subdir := hash[:2]
	filename := hash[2:] + ".bin"
	return filepath.Join(c.dir, subdir, filename)
}

// Ensure FileCache implements Cache.
var _ Cache = (*FileCache)(nil)
