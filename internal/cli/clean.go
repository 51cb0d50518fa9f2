package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eunmann/tablesort/pkg/fileutil"
	"github.com/eunmann/tablesort/pkg/logging"
)

// runClean removes spill directories and partial outputs left by sorts that
// were killed before they could clean up.
func runClean(_ context.Context, args []string) error {
	var (
		tmp       string
		outDir    string
		olderThan time.Duration
		verbose   bool
	)
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&tmp, "tmp", os.TempDir(), "directory holding spill directories")
	fs.StringVar(&outDir, "out-dir", "", "also remove partial outputs in this directory")
	fs.DurationVar(&olderThan, "older-than", 24*time.Hour, "only remove spill directories idle this long")
	fs.BoolVar(&verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	logging.Init(verbose, false)

	dirs, err := fileutil.CleanupSpillDirs(tmp, olderThan)
	if err != nil {
		return fmt.Errorf("clean %s: %w", tmp, err)
	}
	files := 0
	if outDir != "" {
		if files, err = fileutil.CleanupTmpFiles(outDir); err != nil {
			return fmt.Errorf("clean %s: %w", outDir, err)
		}
	}
	fmt.Fprintf(stdout, "removed %d spill directories and %d partial outputs\n", dirs, files)
	return nil
}
