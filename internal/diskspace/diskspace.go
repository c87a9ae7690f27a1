// Package diskspace checks free space before a downloaded object is
// written to disk.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// SafetyMargin is applied to the required size: 5% for filesystem overhead.
const SafetyMargin = 1.05

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space for %s: need %s, have %s available",
		e.Path, humanize.IBytes(uint64(e.RequiredBytes)), humanize.IBytes(uint64(e.AvailableBytes)))
}

// CheckAvailableSpace returns an *InsufficientSpaceError when the
// filesystem holding targetPath has less than requiredBytes*safetyMargin
// free. targetPath need not exist, but its directory must. When free space
// cannot be determined the check passes and the write fails naturally.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	available, ok := availableBytes(filepath.Dir(targetPath))
	if !ok {
		return nil
	}

	required := int64(float64(requiredBytes) * safetyMargin)
	if available < required {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  required,
			AvailableBytes: available,
		}
	}
	return nil
}

// GetAvailableSpace returns the free bytes on the filesystem holding path,
// or 0 if unknown.
func GetAvailableSpace(path string) int64 {
	available, _ := availableBytes(filepath.Dir(path))
	return available
}

// IsInsufficientSpaceError checks if err is or wraps an InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var ise *InsufficientSpaceError
	return errors.As(err, &ise)
}
