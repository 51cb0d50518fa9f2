package extsort

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/eunmann/tablesort/pkg/fileutil"
	"github.com/eunmann/tablesort/pkg/table"
)

// DiskConfig configures a DiskFactory.
type DiskConfig struct {
	// TempDir is the parent of the factory's private directory.
	// If empty, os.TempDir() is used.
	TempDir string

	// BufferSize is the read/write buffer per run file.
	// Default: 1MB.
	BufferSize int

	// Compress enables zstd compression of run file bodies.
	Compress bool

	// CompressionLevel applies when Compress is set.
	// Default: CompressionFastest.
	CompressionLevel CompressionLevel
}

// DefaultDiskConfig returns defaults for spilling to the system temp dir.
func DefaultDiskConfig() DiskConfig {
	return DiskConfig{
		BufferSize:       defaultRunBufferSize,
		Compress:         true,
		CompressionLevel: CompressionFastest,
	}
}

// DiskFactory spills chunks to run files in a private temp directory.
type DiskFactory struct {
	config DiskConfig
	dir    string
	id     string
	seq    atomic.Int64
	live   atomic.Int64
	closed atomic.Bool
}

// NewDiskFactory creates the factory's directory "tablesort-<uuid>" under
// cfg.TempDir. Close removes it.
func NewDiskFactory(cfg DiskConfig) (*DiskFactory, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultRunBufferSize
	}
	if cfg.CompressionLevel == 0 {
		cfg.CompressionLevel = CompressionFastest
	}
	parent := cfg.TempDir
	if parent == "" {
		parent = os.TempDir()
	}

	id := uuid.NewString()
	dir := filepath.Join(parent, fileutil.SpillDirPrefix+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spill directory: %w", err)
	}
	return &DiskFactory{config: cfg, dir: dir, id: id}, nil
}

// Dir returns the directory holding the run files.
func (f *DiskFactory) Dir() string {
	return f.dir
}

// ID returns the factory's unique id, also used in its directory name.
func (f *DiskFactory) ID() string {
	return f.id
}

// Live returns the number of run files created and not yet released.
func (f *DiskFactory) Live() int64 {
	return f.live.Load()
}

// CreateChunk implements ContainerFactory.
func (f *DiskFactory) CreateChunk(*table.Schema) (ChunkWriter, error) {
	if f.closed.Load() {
		return nil, errors.New("disk factory is closed")
	}
	path := filepath.Join(f.dir, fmt.Sprintf("chunk_%06d.run", f.seq.Add(1)))
	w, err := createRunFile(path, runFileOptions{
		BufferSize: f.config.BufferSize,
		Compress:   f.config.Compress,
		Level:      f.config.CompressionLevel,
	})
	if err != nil {
		return nil, err
	}
	f.live.Add(1)
	return &diskWriter{factory: f, w: w}, nil
}

// Close removes the spill directory and anything left in it.
func (f *DiskFactory) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	if err := os.RemoveAll(f.dir); err != nil {
		return fmt.Errorf("remove spill directory: %w", err)
	}
	return nil
}

type diskWriter struct {
	factory *DiskFactory
	w       *runFileWriter
	done    bool
}

func (d *diskWriter) Append(row *table.Row) error {
	return d.w.Write(row)
}

func (d *diskWriter) Seal() (Chunk, error) {
	if d.done {
		return nil, errors.New("chunk already sealed")
	}
	d.done = true
	if err := d.w.Close(); err != nil {
		d.w.Abort()
		d.factory.live.Add(-1)
		return nil, fmt.Errorf("seal %s: %w", d.w.path, err)
	}
	return &diskChunk{factory: d.factory, path: d.w.path, count: int64(d.w.count)}, nil
}

func (d *diskWriter) Discard() error {
	if d.done {
		return nil
	}
	d.done = true
	d.factory.live.Add(-1)
	return d.w.Abort()
}

type diskChunk struct {
	factory  *DiskFactory
	path     string
	count    int64
	released bool
}

func (c *diskChunk) Iterator() (RowIterator, error) {
	if c.released {
		return nil, errChunkReleased
	}
	return openRunFile(c.path, c.factory.config.BufferSize)
}

func (c *diskChunk) Len() int64 {
	return c.count
}

func (c *diskChunk) Release() error {
	if c.released {
		return nil
	}
	c.released = true
	c.factory.live.Add(-1)
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove run file: %w", err)
	}
	return nil
}
