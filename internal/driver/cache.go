package driver

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"tracec/internal/meta"
)

// SnapshotExt marks msgpack catalog snapshots.
const SnapshotExt = ".mp"

// Digest is the SHA-256 of a catalog document.
type Digest [32]byte

// SnapshotCache keeps msgpack snapshots of decoded catalogs keyed by the
// digest of their YAML source, so repeated checks skip YAML decoding and
// validation. Thread-safe for concurrent access.
type SnapshotCache struct {
	mu  sync.RWMutex
	dir string

	hits   atomic.Int64
	misses atomic.Int64
}

// OpenSnapshotCache opens dir, creating it if needed. An empty dir selects
// $XDG_CACHE_HOME/<app> (or ~/.cache/<app>).
func OpenSnapshotCache(dir, app string) (*SnapshotCache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, app)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SnapshotCache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *SnapshotCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *SnapshotCache) pathFor(key Digest) string {
	// подкаталог "catalogs", чтобы кэш было легко чистить
	return filepath.Join(c.dir, "catalogs", hex.EncodeToString(key[:])+SnapshotExt)
}

// Get returns the cached catalog for key. A missing or stale snapshot is a
// miss, not an error.
func (c *SnapshotCache) Get(key Digest) (*meta.Catalog, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	cat, err := meta.LoadSnapshot(c.pathFor(key))
	switch {
	case err == nil:
		c.hits.Add(1)
		return cat, true, nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, meta.ErrSnapshotSchema):
		c.misses.Add(1)
		return nil, false, nil
	default:
		c.misses.Add(1)
		return nil, false, err
	}
}

// Put stores cat under key, replacing the file atomically.
func (c *SnapshotCache) Put(key Digest, cat *meta.Catalog) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return meta.SaveSnapshot(c.pathFor(key), cat)
}

// Stats reports hits and misses since the cache was opened.
func (c *SnapshotCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// DropAll removes every snapshot.
func (c *SnapshotCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// переименуем и удалим, чтобы параллельный Get не увидел половину каталога
	root := filepath.Join(c.dir, "catalogs")
	old := root + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(root, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}

// LoadCatalog reads the YAML catalog at path, going through the cache
// when one is set.
func (c *SnapshotCache) LoadCatalog(path string) (*meta.Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from config or flags
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	// готовый снапшот (tracec meta snapshot) кэшировать незачем
	if filepath.Ext(path) == SnapshotExt {
		cat, err := meta.ReadSnapshot(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return cat, nil
	}
	key := Digest(sha256.Sum256(data))
	if cat, ok, err := c.Get(key); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	} else if ok {
		return cat, nil
	}
	cat, err := meta.DecodeCatalog(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Put(key, cat); err != nil {
		return nil, fmt.Errorf("failed to cache %s: %w", path, err)
	}
	return cat, nil
}
