// Package cli implements the tablesort command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Version is set at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

const usage = `usage: tablesort <command> [options]
commands:
  sort     sort a CSV or parquet table
  gen      write a synthetic table
  clean    remove leftovers of interrupted sorts
  version  print the version`

// stdout and stderr are replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Run executes the CLI with the given arguments.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "sort":
		return runSort(ctx, args[1:])
	case "gen":
		return runGen(ctx, args[1:])
	case "clean":
		return runClean(ctx, args[1:])
	case "version":
		fmt.Fprintf(stdout, "tablesort %s\n", Version)
		return nil
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
}
