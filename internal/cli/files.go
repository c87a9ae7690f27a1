package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rescale/s3fetch/internal/cloud/download"
	"github.com/rescale/s3fetch/internal/cloud/storage"
	"github.com/rescale/s3fetch/internal/diskspace"
	"github.com/rescale/s3fetch/internal/sigv4"
)

// writeFileAtomic writes data to a temporary file next to dest and renames
// it into place, so an interrupted download never leaves a partial file.
func writeFileAtomic(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := diskspace.CheckAvailableSpace(dest, int64(len(data)), diskspace.SafetyMargin); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.s3fetch")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	return nil
}

// fetchObject downloads loc with the session's current credentials. When
// temporary credentials were rejected as expired it refreshes them once
// and tries again.
func fetchObject(ctx context.Context, s *session, dl *download.Downloader, loc sigv4.Locator, onProgress download.ProgressFunc) (*download.Result, error) {
	creds, err := s.creds.Get(ctx)
	if err != nil {
		return nil, err
	}

	result, err := dl.Download(ctx, creds, loc, onProgress)
	if err == nil || creds.SessionToken == "" {
		return result, err
	}
	if kind, ok := storage.KindOf(err); !ok || kind != storage.KindExpired {
		return result, err
	}

	s.logger.Info().Str("key", loc.Key).Msg("Session credentials expired, refreshing")
	s.creds.ForceRefresh()
	if creds, err = s.creds.Get(ctx); err != nil {
		return nil, err
	}
	return dl.Download(ctx, creds, loc, onProgress)
}
