package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths, NUL bytes and any path that climbs
// out of its starting directory with "..". Absolute paths are allowed so
// deployments can keep state on a mounted volume.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains NUL byte")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}
	return nil
}

// ValidateFilePaths validates every non-empty path in paths, naming the
// offending field in the error.
func ValidateFilePaths(paths map[string]string) error {
	for field, p := range paths {
		if p == "" {
			continue
		}
		if err := ValidateFilePath(p); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}
