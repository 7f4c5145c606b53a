// Package config assembles the Config record that drives one run of the
// core pipeline from an optional on-disk TOML defaults file merged with
// explicit CLI flags (flags always win).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the merged configuration record consumed by the
// orchestrator. It corresponds exactly to spec.md §6's recognized
// options, plus the journal settings described in SPEC_FULL.md §4.7.
type Config struct {
	Roots    []string
	NoFsck   bool
	FsckOnly bool
	NoLock   bool
	DryRun   bool
	Verbose  bool

	JournalEnabled bool
	JournalPath    string
}

// fileDefaults mirrors the on-disk TOML shape documented in
// SPEC_FULL.md §4.6. Its zero value (every field false/empty) is used
// when no defaults file exists, which is not an error.
type fileDefaults struct {
	NoFsck  bool `toml:"no_fsck"`
	NoLock  bool `toml:"no_lock"`
	Verbose bool `toml:"verbose"`

	Journal struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"journal"`
}

// Flags carries the CLI-supplied values plus an explicit record of which
// fields the user actually set, so a file default of true is never
// silently clobbered by a flag's Go zero value.
type Flags struct {
	Roots    []string
	NoFsck   bool
	FsckOnly bool
	NoLock   bool
	DryRun   bool
	Verbose  bool

	JournalEnabled bool
	JournalPath    string

	// Set records which of the boolean/string fields above were
	// explicitly provided on the command line (e.g. via cobra's
	// Flags().Changed). Any field not present here falls back to the
	// file default, not to false/"".
	Set map[string]bool
}

func (f Flags) isSet(name string) bool {
	return f.Set != nil && f.Set[name]
}

// DefaultConfigPath returns the conventional location of the TOML
// defaults file: $XDG_CONFIG_HOME/git-share-obj/config.toml, falling
// back to ~/.config/git-share-obj/config.toml.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "git-share-obj", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "git-share-obj", "config.toml")
}

// Load reads the TOML defaults file at path (if non-empty and present)
// and merges explicit flags over it. A missing file is treated
// identically to an empty one; malformed TOML is reported as an error,
// the same "input error" class as a bad root path, before any
// repository is touched.
func Load(explicit Flags, path string) (Config, error) {
	var fd fileDefaults
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// no defaults file: fd stays zero-valued
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if _, err := toml.Decode(string(data), &fd); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg := Config{
		Roots:          explicit.Roots,
		NoFsck:         mergeBool(explicit.isSet("no_fsck"), explicit.NoFsck, fd.NoFsck),
		FsckOnly:       explicit.FsckOnly,
		NoLock:         mergeBool(explicit.isSet("no_lock"), explicit.NoLock, fd.NoLock),
		DryRun:         explicit.DryRun,
		Verbose:        mergeBool(explicit.isSet("verbose"), explicit.Verbose, fd.Verbose),
		JournalEnabled: mergeBool(explicit.isSet("journal"), explicit.JournalEnabled, fd.Journal.Enabled),
		JournalPath:    explicit.JournalPath,
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = fd.Journal.Path
	}

	return cfg, nil
}

func mergeBool(explicitlySet, explicitValue, fileDefault bool) bool {
	if explicitlySet {
		return explicitValue
	}
	return fileDefault
}

// Validate checks the mutual-exclusion rule from spec.md §6:
// fsck_only and dry_run cannot both be set.
func (c Config) Validate() error {
	if c.FsckOnly && c.DryRun {
		return fmt.Errorf("fsck_only and dry_run are mutually exclusive")
	}
	return nil
}
