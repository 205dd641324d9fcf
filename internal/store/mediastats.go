package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MediaStat summarizes the downloaded files of one keyword directory
type MediaStat struct {
	Keyword string
	Images  int
	Videos  int
	Other   int
	Bytes   int64
}

// Files returns the total file count.
func (m MediaStat) Files() int { return m.Images + m.Videos + m.Other }

// MediaStats reports per-keyword counts under the media directory. A missing
// directory yields no stats.
func MediaStats(dir string) ([]MediaStat, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read media dir: %w", err)
	}

	var stats []MediaStat
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		stat := MediaStat{Keyword: entry.Name()}
		err := filepath.WalkDir(filepath.Join(dir, entry.Name()), func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			stat.Bytes += info.Size()
			switch {
			case strings.HasPrefix(d.Name(), "image_"):
				stat.Images++
			case strings.HasPrefix(d.Name(), "video_"):
				stat.Videos++
			default:
				stat.Other++
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", entry.Name(), err)
		}
		stats = append(stats, stat)
	}
	return stats, nil
}
