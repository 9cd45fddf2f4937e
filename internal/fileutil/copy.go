// Package fileutil implements the bulk file operations: recursive copy
// with progress reporting and EXIF-based photo sorting.
package fileutil

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
)

// CopyResult summarizes one bulk copy run.
type CopyResult struct {
	Copied     int
	Failed     []string
	TotalBytes int64
}

// CopyTree copies every regular file under src into dst, preserving the
// relative layout and modification times. It walks once up front to count
// files and bytes, then copies with a progress bar. Individual file
// failures are collected, not fatal.
func CopyTree(src, dst string, logger *slog.Logger) (*CopyResult, error) {
	src = filepath.Clean(src)
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", src)
	}

	// Dry-run pass: count what we are about to move.
	var files []string
	var totalBytes int64
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, path)
		totalBytes += fi.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", src, err)
	}

	logger.Info("copy starting",
		slog.Int("files", len(files)),
		slog.String("total", HumanSize(totalBytes)),
		slog.String("src", src),
		slog.String("dst", dst))

	bar := progressbar.NewOptions64(totalBytes,
		progressbar.OptionSetDescription("copying"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	res := &CopyResult{TotalBytes: totalBytes}
	for _, path := range files {
		rel, err := filepath.Rel(src, path)
		if err != nil {
			res.Failed = append(res.Failed, path)
			continue
		}
		target := filepath.Join(dst, rel)
		if err := copyFile(path, target, bar); err != nil {
			logger.Warn("copy failed",
				slog.String("file", path), slog.String("error", err.Error()))
			res.Failed = append(res.Failed, path)
			continue
		}
		res.Copied++
	}
	_ = bar.Finish()

	logger.Info("copy done",
		slog.Int("copied", res.Copied),
		slog.Int("failed", len(res.Failed)))
	return res, nil
}

// copyFile copies src to dst, creating parent directories and carrying
// the source's modification time over.
func copyFile(src, dst string, bar *progressbar.ProgressBar) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	var w io.Writer = out
	if bar != nil {
		w = io.MultiWriter(out, bar)
	}
	if _, err := io.Copy(w, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dst, fi.ModTime(), fi.ModTime())
}

// HumanSize renders a byte count with a binary-unit suffix.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
