// Package fileutil writes output files with tmp+mv semantics and removes what
// interrupted sorts leave behind.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eunmann/tablesort/pkg/logging"
)

const (
	// SpillDirPrefix starts the name of every spill directory created by
	// extsort.DiskFactory.
	SpillDirPrefix = "tablesort-"

	// tmpPrefix keeps the final name's extension visible, so writers that
	// look at the suffix (".gz") behave the same for the temp file.
	tmpPrefix = ".tmp-"
)

// Exists returns true if the file exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// TmpPath returns the temporary path WriteTmpThenMove uses for outPath.
func TmpPath(tmpDir, outPath string) string {
	return filepath.Join(tmpDir, tmpPrefix+filepath.Base(outPath))
}

// WriteTmpThenMove writes to a temporary file then atomically moves it to the final path.
// The writeFunc receives the temporary path and should write the complete file.
// tmpDir should be on the same file system as outPath.
func WriteTmpThenMove(tmpDir, outPath string, writeFunc func(tmpPath string) error) error {
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("create tmp dir: %w", err)
	}
	tmpPath := TmpPath(tmpDir, outPath)

	if err := writeFunc(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := syncFile(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	err = f.Sync()
	f.Close()
	return err
}

// CleanupTmpFiles removes the temporary files WriteTmpThenMove left in dir
// (not recursive) and returns how many were removed.
func CleanupTmpFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	var removed int
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		logging.L().Debug().Int("files_removed", removed).Str("dir", dir).Msg("cleaned up tmp files")
	}
	return removed, nil
}

// CleanupSpillDirs removes spill directories under parent that were last
// modified before olderThan ago. A running sort touches its directory on
// every spill, so olderThan must exceed the longest gap between spills.
func CleanupSpillDirs(parent string, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", parent, err)
	}

	cutoff := time.Now().Add(-olderThan)
	var removed int
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), SpillDirPrefix) {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(parent, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logging.L().Info().Int("dirs_removed", removed).Str("dir", parent).Msg("cleaned up spill directories")
	}
	return removed, errors.Join(errs...)
}
