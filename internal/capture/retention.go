package capture

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// CleanupResult reports what a retention pass removed.
type CleanupResult struct {
	Removed    int
	FreedBytes int64
}

// CleanupOld deletes capture files in dir last modified before cutoff.
// Files that cannot be removed are logged and skipped.
func CleanupOld(dir string, cutoff time.Time) (CleanupResult, error) {
	var res CleanupResult
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("failed to remove old capture")
			continue
		}
		res.Removed++
		res.FreedBytes += info.Size()
	}
	return res, nil
}
