// Package workspace prepares the gateway's working tree before launch.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// EnsureDirs creates each directory (with parents) if absent. Creation is
// idempotent: pre-existing directories are not an error. Filesystem denial
// is fatal to the bootstrap and propagates.
func EnsureDirs(paths ...string) error {
	for _, p := range paths {
		if err := os.MkdirAll(p, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", p, err)
		}
	}
	return nil
}

// PruneTemp removes entries under tempDir whose modification time is older
// than ttl. A previous run that died mid-session leaves HLS directories
// and snapshots behind; the gateway prunes these while running, this
// covers the window before it starts. Best-effort: per-entry failures are
// logged and skipped, a missing tempDir is a no-op. Returns the number of
// entries removed.
func PruneTemp(tempDir string, ttl time.Duration, logger *zap.Logger) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read temp dir %s: %w", tempDir, err)
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to prune stale temp entry",
				zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("pruned stale temp entries",
			zap.String("dir", tempDir), zap.Int("removed", removed))
	}
	return removed, nil
}
