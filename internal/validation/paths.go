// Package validation maps object keys to safe local file paths.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnsafeKey is returned for keys that cannot be written below the output directory.
var ErrUnsafeKey = errors.New("object key escapes the output directory")

// DisplayKey turns a possibly percent-encoded key into its logical form.
// Keys that are not valid escapes are returned unchanged.
func DisplayKey(key string) string {
	if decoded, err := url.PathUnescape(key); err == nil {
		return decoded
	}
	return key
}

// ValidateFilename validates a single file name (not a path) taken from an
// object key before it is used with filepath.Join.
//
// Returns an error if the filename:
//   - Is empty, "." or ".."
//   - Contains path separators (/ or \)
//   - Contains null bytes
func ValidateFilename(filename string) error {
	switch filename {
	case "":
		return fmt.Errorf("filename cannot be empty")
	case ".", "..":
		return fmt.Errorf("filename cannot be %q", filename)
	}
	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("filename contains null byte: %q", filename)
	}
	if strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("filename cannot contain path separators: %s", filename)
	}
	return nil
}

// ValidatePathInDirectory checks that p, resolved against baseDir, stays
// within baseDir.
func ValidatePathInDirectory(p string, baseDir string) error {
	if p == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	base, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}

	resolved := filepath.Clean(p)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", p, baseDir)
	}
	return nil
}

// LocalPathForKey maps key below dir, keeping its folder structure. Keys
// with a leading slash or with empty, "." or ".." segments are rejected, so
// distinct keys never share a local path.
func LocalPathForKey(dir, key string) (string, error) {
	rel := DisplayKey(key)
	if rel == "" || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnsafeKey, key)
	}
	for _, part := range strings.Split(rel, "/") {
		switch part {
		case "", ".", "..":
			return "", fmt.Errorf("%w: %q has a %q segment", ErrUnsafeKey, key, part)
		}
		if err := ValidateFilename(part); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsafeKey, err)
		}
	}

	local := filepath.Join(dir, filepath.FromSlash(rel))
	if err := ValidatePathInDirectory(local, dir); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafeKey, err)
	}
	return local, nil
}

// OutputName is the default local file name for key: its last segment.
func OutputName(key string) string {
	name := path.Base(DisplayKey(key))
	if ValidateFilename(name) != nil {
		return "download"
	}
	return name
}
