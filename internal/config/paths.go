package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".quill"

// Paths holds resolved filesystem paths for Quill data.
type Paths struct {
	Base   string // ~/.quill
	Config string // ~/.quill/config.yaml
	Data   string // ~/.quill/data
	Logs   string // ~/.quill/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If QUILL_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("QUILL_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// DatabasePath resolves the sqlite file path from config, defaulting to
// the standard data directory.
func (p Paths) DatabasePath(cfg StorageConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(p.Data, "quill.db")
}
