package materialize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/gphotosync/internal/errors"
)

// folderPath returns root/folder after checking that the result stays
// directly under root and that the folder is not a symlink.
func folderPath(root, folder string) (string, error) {
	if root == "" {
		return "", errors.NewInvalidConfig("destination root is not set")
	}
	if containsTraversal(folder) {
		return "", errors.NewInternal(fmt.Errorf("folder %q contains directory traversal", folder))
	}

	absRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", errors.NewInvalidConfig(fmt.Sprintf("invalid destination root: %v", err))
	}
	dir := filepath.Join(absRoot, folder)
	if filepath.Dir(dir) != absRoot {
		return "", errors.NewInternal(fmt.Errorf("folder %q escapes the destination root", folder))
	}

	if info, err := os.Lstat(dir); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", errors.NewInternal(fmt.Errorf("folder %q must not be a symlink", dir))
	}
	return dir, nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Also check for forward slashes on all platforms (album titles are user input)
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}

// SanitizeForFilename sanitizes a string for safe use as a folder or file
// name. Album titles and original file names both pass through it.
func SanitizeForFilename(s string) string {
	// Replace path separators with dashes
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")

	// Replace ".." sequences (could be embedded)
	s = strings.ReplaceAll(s, "..", "-")

	// Remove null bytes and other control characters
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	s = result.String()

	// Collapse multiple dashes
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}

	s = strings.TrimSpace(strings.Trim(s, "-"))

	if s == "" {
		s = "unnamed"
	}
	return s
}
