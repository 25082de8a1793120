package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckExisting returns an error when dir already holds a hark.yml.
func CheckExisting(dir string) error {
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("project already initialized\n\nFound existing: %s\n\nUse 'hark init --force' to overwrite it", path)
	}
	return nil
}
