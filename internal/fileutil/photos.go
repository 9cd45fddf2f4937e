package fileutil

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ── Photo organizer ────────────────────────────────────────
// Sorts a dump of photos and videos into <root>/YYYY/MM/ by capture
// date. EXIF DateTimeOriginal wins; files without usable EXIF fall back
// to their modification time. Source directories emptied by the moves
// are pruned afterwards.

var mediaExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".heic": true, ".tif": true, ".tiff": true,
	".mp4": true, ".mov": true, ".avi": true, ".m4v": true, ".3gp": true,
}

// OrganizeResult summarizes one photo-sorting run.
type OrganizeResult struct {
	Moved      int
	Skipped    int
	PrunedDirs int
}

// OrganizePhotos moves every media file under root into root/YYYY/MM/
// and prunes directories left empty.
func OrganizePhotos(root string, logger *slog.Logger) (*OrganizeResult, error) {
	root = filepath.Clean(root)
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("root: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if mediaExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	res := &OrganizeResult{}
	for _, path := range files {
		taken := captureTime(path)
		destDir := filepath.Join(root, taken.Format("2006"), taken.Format("01"))
		dest := filepath.Join(destDir, filepath.Base(path))
		if dest == path {
			res.Skipped++
			continue
		}
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return res, fmt.Errorf("creating %s: %w", destDir, err)
		}
		if _, err := os.Stat(dest); err == nil {
			logger.Warn("destination exists, skipping", slog.String("file", path))
			res.Skipped++
			continue
		}
		if err := os.Rename(path, dest); err != nil {
			logger.Warn("move failed",
				slog.String("file", path), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		res.Moved++
	}

	pruned, err := pruneEmptyDirs(root)
	if err != nil {
		return res, err
	}
	res.PrunedDirs = pruned

	logger.Info("photos organized",
		slog.Int("moved", res.Moved),
		slog.Int("skipped", res.Skipped),
		slog.Int("pruned_dirs", res.PrunedDirs))
	return res, nil
}

// captureTime reads EXIF DateTimeOriginal, falling back to mtime.
func captureTime(path string) time.Time {
	if t, err := exifTime(path); err == nil {
		return t
	}
	fi, err := os.Stat(path)
	if err != nil {
		return time.Now()
	}
	return fi.ModTime()
}

func exifTime(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, err
	}
	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, err
	}
	s, err := tag.StringVal()
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation("2006:01:02 15:04:05", s, time.Local)
}

// pruneEmptyDirs removes directories under root left empty after moves,
// deepest first so nested empties collapse. The root itself stays.
func pruneEmptyDirs(root string) (int, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	pruned := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		if len(entries) == 0 {
			if err := os.Remove(dir); err == nil {
				pruned++
			}
		}
	}
	return pruned, nil
}
