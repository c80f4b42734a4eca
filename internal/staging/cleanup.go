package staging

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/store"
)

// Episodes loads the episode owning a scratch directory.
type Episodes interface {
	GetEpisode(ctx context.Context, id string) (*media.Episode, error)
}

// SweepResult lists the directories removed by a sweep.
type SweepResult struct {
	Removed []string
	Bytes   int64
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// EpisodesDir is the scratch root holding one directory per episode.
func EpisodesDir(stagingDir string) string {
	return filepath.Join(stagingDir, "episodes")
}

// SweepEpisodes removes scratch directories under stagingDir/episodes whose
// episode no longer exists, and those older than maxAge whose episode is not
// queued or processing. A non-positive maxAge removes orphans only.
func SweepEpisodes(ctx context.Context, stagingDir string, maxAge time.Duration, episodes Episodes, logger *slog.Logger) SweepResult {
	var result SweepResult
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}
	root := EpisodesDir(stagingDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		reason, err := sweepReason(ctx, entry, episodes, maxAge, cutoff)
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			continue
		}
		if reason == "" {
			continue
		}
		size, _ := dirSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			if logger != nil {
				logging.WarnWithContext(logger, "failed to remove episode scratch directory", "staging_cleanup_failed",
					logging.String("path", dir),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, dir)
		result.Bytes += size
		if logger != nil {
			logger.Info("removed episode scratch directory",
				logging.String("path", dir),
				logging.String("reason", reason),
				logging.Int64("bytes", size),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}
	return result
}

func sweepReason(ctx context.Context, entry os.DirEntry, episodes Episodes, maxAge time.Duration, cutoff time.Time) (string, error) {
	ep, err := episodes.GetEpisode(ctx, entry.Name())
	if errors.Is(err, store.ErrNotFound) {
		return "orphaned", nil
	}
	if err != nil {
		return "", err
	}
	if maxAge <= 0 || ep.Status == media.StatusQueued || ep.Status == media.StatusProcessing {
		return "", nil
	}
	info, err := entry.Info()
	if err != nil {
		return "", err
	}
	if info.ModTime().Before(cutoff) {
		return "stale", nil
	}
	return "", nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, infoErr := d.Info(); infoErr == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size, err
}
