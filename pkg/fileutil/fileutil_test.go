package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExists(t *testing.T) {
	tmpDir := t.TempDir()

	if Exists(filepath.Join(tmpDir, "nonexistent")) {
		t.Error("Exists returned true for non-existent file")
	}

	path := filepath.Join(tmpDir, "exists.txt")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !Exists(path) {
		t.Error("Exists returned false for existing file")
	}
}

func TestWriteTmpThenMove(t *testing.T) {
	outDir := t.TempDir()
	outPath := filepath.Join(outDir, "nested", "sorted.csv.gz")

	var seen string
	content := []byte("a,b\n1,2\n")
	err := WriteTmpThenMove(outDir, outPath, func(tmpPath string) error {
		seen = tmpPath
		if Exists(outPath) {
			t.Error("output exists before the move")
		}
		return os.WriteFile(tmpPath, content, 0o644)
	})
	if err != nil {
		t.Fatalf("WriteTmpThenMove failed: %v", err)
	}

	if filepath.Ext(seen) != ".gz" {
		t.Errorf("tmp path %q lost the output extension", seen)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Content mismatch: got %q, want %q", got, content)
	}
	if Exists(seen) {
		t.Error("Tmp file still exists after successful write")
	}
}

func TestWriteTmpThenMoveError(t *testing.T) {
	outDir := t.TempDir()
	outPath := filepath.Join(outDir, "output.csv")

	err := WriteTmpThenMove(outDir, outPath, func(tmpPath string) error {
		if err := os.WriteFile(tmpPath, []byte("partial"), 0o644); err != nil {
			return err
		}
		return os.ErrPermission
	})
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("error = %v, want os.ErrPermission", err)
	}
	if Exists(TmpPath(outDir, outPath)) {
		t.Error("Tmp file exists after failed write")
	}
	if Exists(outPath) {
		t.Error("Output file exists after failed write")
	}
}

func TestCleanupTmpFiles(t *testing.T) {
	dir := t.TempDir()
	leftover := TmpPath(dir, "out.csv")
	regular := filepath.Join(dir, "out.csv")
	nested := filepath.Join(dir, "sub", ".tmp-other.csv")

	if err := os.MkdirAll(filepath.Dir(nested), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{leftover, regular, nested} {
		if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := CleanupTmpFiles(dir)
	if err != nil {
		t.Fatalf("CleanupTmpFiles failed: %v", err)
	}
	if n != 1 || Exists(leftover) {
		t.Errorf("removed %d files, leftover exists: %v", n, Exists(leftover))
	}
	if !Exists(regular) || !Exists(nested) {
		t.Error("CleanupTmpFiles removed files it does not own")
	}

	if _, err := CleanupTmpFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestCleanupSpillDirs(t *testing.T) {
	parent := t.TempDir()
	old := filepath.Join(parent, SpillDirPrefix+"old")
	fresh := filepath.Join(parent, SpillDirPrefix+"fresh")
	other := filepath.Join(parent, "unrelated")

	for _, dir := range []string{old, fresh, other} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "chunk_000001.run"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	for _, dir := range []string{old, other} {
		if err := os.Chtimes(dir, past, past); err != nil {
			t.Fatal(err)
		}
	}

	n, err := CleanupSpillDirs(parent, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupSpillDirs failed: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d directories, want 1", n)
	}
	if Exists(old) {
		t.Error("old spill directory still exists")
	}
	if !Exists(fresh) || !Exists(other) {
		t.Error("CleanupSpillDirs removed a directory it should keep")
	}
}
