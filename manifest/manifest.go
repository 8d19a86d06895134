// Package manifest handles weir.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a weir.toml project configuration.
type Manifest struct {
	Pipeline Pipeline `toml:"pipeline"`
	Resume   Resume   `toml:"resume"`
	Scope    Scope    `toml:"scope"`

	// Dir is the directory containing the weir.toml file (set at load time).
	Dir string `toml:"-"`
}

// Pipeline contains pipeline metadata.
type Pipeline struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Resume configures checkpoint output and the attempt ledger.
type Resume struct {
	CheckpointDir string `toml:"checkpoint-dir"`
	Ledger        string `toml:"ledger"`
}

// Scope configures default scope behavior for task attempts.
type Scope struct {
	DeferUndefined bool   `toml:"defer-undefined"`
	Environment    string `toml:"environment"`
}

// Load parses a weir.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "weir.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Resume.CheckpointDir == "" {
		m.Resume.CheckpointDir = filepath.Join(".weir", "checkpoints")
	}
	if m.Resume.Ledger == "" {
		m.Resume.Ledger = filepath.Join(".weir", "attempts.db")
	}
	if m.Scope.Environment == "" {
		m.Scope.Environment = "memory"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a weir.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "weir.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// CheckpointDirPath returns the absolute path of the checkpoint directory.
func (m *Manifest) CheckpointDirPath() string {
	if filepath.IsAbs(m.Resume.CheckpointDir) {
		return m.Resume.CheckpointDir
	}
	return filepath.Join(m.Dir, m.Resume.CheckpointDir)
}

// LedgerPath returns the absolute path of the attempt ledger database.
func (m *Manifest) LedgerPath() string {
	if filepath.IsAbs(m.Resume.Ledger) {
		return m.Resume.Ledger
	}
	return filepath.Join(m.Dir, m.Resume.Ledger)
}
