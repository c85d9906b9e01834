package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// ExpandPath expands a leading ~ and $VAR references in a file path.
// A path whose home directory cannot be resolved is returned with only
// environment variables expanded.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	return os.ExpandEnv(path)
}

// DefaultDir returns $HOME/.config/mediaagg, or "" when no home directory is known.
func DefaultDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mediaagg")
}
