package security

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// EnsureWithin resolves path (relative paths are taken relative to root) with
// all symbolic links followed and fails with a path_escape error unless the
// result stays inside root. The resolved path is returned.
func EnsureWithin(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve skill root %s", root)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve skill root %s", root)
	}

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(realRoot, candidate)
	}
	candidate = filepath.Clean(candidate)

	// A lexical escape is rejected before anything is resolved on disk.
	if !isUnder(candidate, realRoot) && !isUnder(candidate, absRoot) {
		return "", pathEscape(path, root)
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", path)
	}
	if !isUnder(resolved, realRoot) {
		return "", pathEscape(path, root)
	}
	return resolved, nil
}

// ValidateManifestFile confirms that the manifest at path is a regular file
// whose resolved location is inside root. It runs before the manifest is
// parsed.
func ValidateManifestFile(root, path string) error {
	resolved, err := EnsureWithin(root, path)
	if err != nil {
		return err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return errors.Wrapf(err, "failed to stat manifest %s", path)
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf("manifest %s is not a regular file", path)
	}
	return nil
}

// isUnder returns true if child is equal to or a descendant of parent.
func isUnder(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, strings.TrimSuffix(parent, string(filepath.Separator))+string(filepath.Separator))
}
