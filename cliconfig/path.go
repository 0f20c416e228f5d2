package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
)

// NormalizeFilePath expands environment variables and a leading "~" and
// returns the absolute path.
func NormalizeFilePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	expanded := os.ExpandEnv(path)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
	}

	return filepath.Abs(expanded)
}
