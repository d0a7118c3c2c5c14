package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tracec/internal/meta"
)

const cacheCatalog = `
funcs:
  - name: vfs_read
    return: long
    params:
      - {name: count, type: "unsigned long"}
`

func TestSnapshotCacheRoundTrip(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	cache, err := OpenSnapshotCache("", "tracec-test")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "kernel.yaml")
	if err := os.WriteFile(path, []byte(cacheCatalog), 0o600); err != nil {
		t.Fatal(err)
	}

	for range 2 {
		cat, err := cache.LoadCatalog(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		fn, err := cat.Func("vfs_read")
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if len(fn.Params) != 1 || fn.Params[0].Name != "count" {
			t.Fatalf("params = %+v", fn.Params)
		}
	}
	if hits, misses := cache.Stats(); hits != 1 || misses != 1 {
		t.Fatalf("hits=%d misses=%d", hits, misses)
	}

	if err := cache.DropAll(); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.LoadCatalog(path); err != nil {
		t.Fatal(err)
	}
	if _, misses := cache.Stats(); misses != 2 {
		t.Fatalf("dropped snapshot still served, misses=%d", misses)
	}
}

func TestNilCacheDecodesDirectly(t *testing.T) {
	var cache *SnapshotCache
	path := filepath.Join(t.TempDir(), "kernel.yaml")
	if err := os.WriteFile(path, []byte(cacheCatalog), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.LoadCatalog(path); err != nil {
		t.Fatal(err)
	}
	if hits, misses := cache.Stats(); hits != 0 || misses != 0 {
		t.Fatalf("nil cache counted lookups")
	}
}

func TestLoadCatalogAcceptsSnapshot(t *testing.T) {
	cat, err := meta.DecodeCatalog(strings.NewReader(cacheCatalog))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "kernel"+SnapshotExt)
	if err := meta.SaveSnapshot(path, cat); err != nil {
		t.Fatal(err)
	}
	var cache *SnapshotCache
	got, err := cache.LoadCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := got.Func("vfs_read"); err != nil {
		t.Fatal(err)
	}
}
