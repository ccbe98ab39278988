package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/wsforth/wsc/internal/lower"
)

// projectConfig is the shape of an optional `.wsc.toml` file (SPEC_FULL.md
// §A.1), searched for in the current directory only -- this toolchain
// compiles single files, not a project tree, so there is no walk-upward
// search like a build-tool manifest would need.
//
// Grounded on vovakirdan-surge's project_manifest.go: a toml-tagged struct
// decoded with BurntSushi/toml, with every field optional and a zero value
// meaning "use the built-in default".
type projectConfig struct {
	MemLimit uint64 `toml:"mem-limit"`
	Trace    bool   `toml:"trace"`
	DivMode  string `toml:"div-mode"` // "floor" (default) or "trunc"
	CacheDir string `toml:"cache-dir"`
}

const defaultCacheDir = ".wsc-cache"

func defaultConfig() projectConfig {
	return projectConfig{CacheDir: defaultCacheDir}
}

// loadConfig reads `.wsc.toml` from the current directory if present. A
// missing file is not an error -- it just means every setting falls back to
// its default, overridable purely by CLI flags.
func loadConfig() (projectConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(".wsc.toml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, err
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = defaultCacheDir
	}
	return cfg, nil
}

// divMode resolves the config's div-mode string to a lower.DivMode,
// defaulting to DivFloor for an empty or unrecognized value.
func (c projectConfig) divMode() lower.DivMode {
	if c.DivMode == "trunc" {
		return lower.DivTrunc
	}
	return lower.DivFloor
}

func (c projectConfig) cacheDir() string {
	if c.CacheDir == "" {
		return defaultCacheDir
	}
	return filepath.Clean(c.CacheDir)
}
