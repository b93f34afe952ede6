// Package pathutil converts between the absolute paths used as file
// identities and the root-relative paths used for matching and display.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to relative based on a root directory.
// Falls back to the original path if conversion fails or path is already relative.
//
// Examples:
//   - ToRelative("/srv/app/resources/views/home.blade.php", "/srv/app") → "resources/views/home.blade.php"
//   - ToRelative("/other/location/file.php", "/srv/app") → "/other/location/file.php" (outside root)
//   - ToRelative("routes/web.php", "/srv/app") → "routes/web.php" (already relative)
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}

	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		// Different volumes on Windows
		return absPath
	}

	// Outside the root the absolute path is clearer
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return absPath
	}

	return relPath
}

// ToSlashRelative is ToRelative with forward slashes, the form glob
// patterns are written in.
func ToSlashRelative(absPath, rootDir string) string {
	return filepath.ToSlash(ToRelative(absPath, rootDir))
}
