// Package config loads tracec.toml.
//
//	[limits]
//	max_strlen = 1024
//	max_iterations = 64
//
//	[unstable]
//	map_decl = true
//
//	[metadata]
//	catalogs = ["kernel.yaml"]
//
// Relative metadata paths are resolved against the directory of the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
)

// FileName is the name looked up by Find.
const FileName = "tracec.toml"

// Limits mirror sema.Limits plus the diagnostic cap of the driver.
type Limits struct {
	MaxStrlen      uint32 `toml:"max_strlen"`
	MaxIterations  int    `toml:"max_iterations"`
	MaxMapKeys     uint64 `toml:"max_map_keys"`
	MaxDiagnostics int    `toml:"max_diagnostics"`
}

// Features are the kernel capabilities assumed present.
type Features struct {
	ForEachMapElem      bool `toml:"for_each_map_elem"`
	MapLookupPercpuElem bool `toml:"map_lookup_percpu_elem"`
	GetFuncIP           bool `toml:"get_func_ip"`
}

type Unstable struct {
	MapDecl bool `toml:"map_decl"`
}

// Metadata names where type information comes from.
type Metadata struct {
	// BTF is a vmlinux-style BTF file; "kernel" means the running kernel.
	BTF      string   `toml:"btf"`
	Catalogs []string `toml:"catalogs"`
	// Cache is a directory for msgpack snapshots of loaded catalogs.
	Cache string `toml:"cache"`
}

type Output struct {
	// Color is auto, on or off.
	Color string `toml:"color"`
	// Format is pretty, short or json.
	Format string `toml:"format"`
}

// Config is the decoded file. Path is empty for the defaults.
type Config struct {
	Path     string   `toml:"-"`
	Limits   Limits   `toml:"limits"`
	Features Features `toml:"features"`
	Unstable Unstable `toml:"unstable"`
	Metadata Metadata `toml:"metadata"`
	Output   Output   `toml:"output"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		Limits: Limits{
			MaxStrlen:      1024,
			MaxIterations:  64,
			MaxMapKeys:     4096,
			MaxDiagnostics: 100,
		},
		Features: Features{ForEachMapElem: true, MapLookupPercpuElem: true, GetFuncIP: true},
		Output:   Output{Color: "auto", Format: "pretty"},
	}
}

// Find walks up from startDir to locate tracec.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes path on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	// ключи, которых нет в файле, сохраняют значения Default()
	cfg.Path = path
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Discover loads the nearest tracec.toml above startDir, or the defaults.
func Discover(startDir string) (*Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) resolvePaths() {
	if c.Path == "" {
		return
	}
	base := filepath.Dir(c.Path)
	abs := func(p string) string {
		if p == "" || p == "kernel" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, filepath.FromSlash(p))
	}
	c.Metadata.BTF = abs(c.Metadata.BTF)
	c.Metadata.Cache = abs(c.Metadata.Cache)
	for i, p := range c.Metadata.Catalogs {
		c.Metadata.Catalogs[i] = abs(p)
	}
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var err error
	if c.Limits.MaxStrlen == 0 {
		err = multierr.Append(err, errors.New("limits.max_strlen must be positive"))
	}
	if c.Limits.MaxIterations < 1 {
		err = multierr.Append(err, fmt.Errorf("limits.max_iterations must be at least 1, got %d", c.Limits.MaxIterations))
	}
	if c.Limits.MaxMapKeys == 0 {
		err = multierr.Append(err, errors.New("limits.max_map_keys must be positive"))
	}
	if c.Limits.MaxDiagnostics < 0 {
		err = multierr.Append(err, fmt.Errorf("limits.max_diagnostics must not be negative, got %d", c.Limits.MaxDiagnostics))
	}
	switch c.Output.Color {
	case "auto", "on", "off":
	default:
		err = multierr.Append(err, fmt.Errorf("output.color must be auto, on or off, got %q", c.Output.Color))
	}
	switch c.Output.Format {
	case "pretty", "short", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("output.format must be pretty, short or json, got %q", c.Output.Format))
	}
	return err
}
