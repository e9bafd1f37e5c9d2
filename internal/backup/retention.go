package backup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

var archiveNamePattern = regexp.MustCompile(`^backup-\d{4}-\d{2}-\d{2}\.zip$`)

// ValidArchiveName reports whether name is a well-formed archive filename.
// The download path uses it to reject anything that is not a plain dated
// archive name.
func ValidArchiveName(name string) bool {
	return archiveNamePattern.MatchString(name)
}

// Archive describes one stored archive file.
type Archive struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// ListArchives returns the archives in dir, newest first.
func ListArchives(dir string) ([]Archive, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	archives := []Archive{}
	for _, entry := range entries {
		if entry.IsDir() || !ValidArchiveName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		archives = append(archives, Archive{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].ModTime.After(archives[j].ModTime)
	})
	return archives, nil
}

// Sweep deletes the oldest archives beyond keep, ordered by modification
// time. This is pure disk housekeeping, independent of archive contents;
// files that do not look like archives are never touched.
func Sweep(dir string, keep int) error {
	archives, err := ListArchives(dir)
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	if len(archives) <= keep {
		return nil
	}

	for _, old := range archives[keep:] {
		path := filepath.Join(dir, old.Name)
		if err := os.Remove(path); err != nil {
			slog.Warn("retention sweep could not remove archive", "archive", old.Name, "error", err)
			continue
		}
		slog.Info("retention sweep removed archive", "archive", old.Name)
	}
	return nil
}
