package extsort

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/eunmann/tablesort/pkg/table"
)

// Run file format:
//
// Header (32 bytes, little endian):
//   Magic:            4 bytes  (0x54535254 = "TSRT")
//   Version:          4 bytes  (1)
//   Flags:            4 bytes  (bit 0: compressed, bits 1-3: compression type)
//   Count:            8 bytes  (number of rows)
//   UncompressedSize: 8 bytes  (encoded body size before compression)
//   Reserved:         4 bytes
//
// Body: a stream of CBOR encoded table.Row values, zstd compressed when the
// compressed flag is set.

const (
	runFileMagic   = 0x54535254 // "TSRT"
	runFileVersion = 1
	runFileHeader  = 32

	defaultRunBufferSize = 1 << 20
)

// runFileWriter writes one sorted chunk to disk.
type runFileWriter struct {
	file       *os.File
	compressor *zstd.Encoder
	writer     *bufio.Writer
	enc        *rowEncoder
	count      uint64
	flags      uint32
	path       string
	closed     bool
}

type runFileOptions struct {
	BufferSize int
	Compress   bool
	Level      CompressionLevel
}

func createRunFile(path string, opts runFileOptions) (*runFileWriter, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultRunBufferSize
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create run file: %w", err)
	}

	// Count and size are patched in on close.
	var flags uint32
	if opts.Compress {
		flags = compressionFlags(compressionTypeZstd)
	}
	header := make([]byte, runFileHeader)
	binary.LittleEndian.PutUint32(header[0:4], runFileMagic)
	binary.LittleEndian.PutUint32(header[4:8], runFileVersion)
	binary.LittleEndian.PutUint32(header[8:12], flags)
	if _, err := f.Write(header); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write header: %w", err)
	}

	w := &runFileWriter{file: f, path: path, flags: flags}
	var body io.Writer = f
	if opts.Compress {
		enc, err := newCompressor(f, opts.Level)
		if err != nil {
			f.Close()
			os.Remove(path)
			return nil, err
		}
		w.compressor = enc
		body = enc
	}
	w.writer = bufio.NewWriterSize(body, opts.BufferSize)
	w.enc = newRowEncoder(w.writer)
	return w, nil
}

func (w *runFileWriter) Write(row *table.Row) error {
	if w.closed {
		return errors.New("write to closed run file")
	}
	if err := w.enc.Encode(row); err != nil {
		return err
	}
	w.count++
	return nil
}

// Close flushes the body and patches the header.
func (w *runFileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Flush(); err != nil {
		w.abortFile()
		return fmt.Errorf("flush buffer: %w", err)
	}
	if w.compressor != nil {
		if err := w.compressor.Close(); err != nil {
			w.file.Close()
			return fmt.Errorf("close compressor: %w", err)
		}
	}

	var update [16]byte
	binary.LittleEndian.PutUint64(update[0:8], w.count)
	binary.LittleEndian.PutUint64(update[8:16], w.enc.BytesWritten())
	if _, err := w.file.WriteAt(update[:], 12); err != nil {
		w.file.Close()
		return fmt.Errorf("update header: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// Abort closes and removes a partially written file.
func (w *runFileWriter) Abort() error {
	if !w.closed {
		w.closed = true
		w.abortFile()
	}
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove run file: %w", err)
	}
	return nil
}

func (w *runFileWriter) abortFile() {
	if w.compressor != nil {
		w.compressor.Close()
	}
	w.file.Close()
}

// runFileHeaderInfo is the decoded header of a run file.
type runFileHeaderInfo struct {
	Count            uint64
	UncompressedSize uint64
	Compressed       bool
}

func parseRunFileHeader(header []byte) (runFileHeaderInfo, error) {
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != runFileMagic {
		return runFileHeaderInfo{}, fmt.Errorf("%w: invalid magic %x", ErrCorruptRunFile, magic)
	}
	if version := binary.LittleEndian.Uint32(header[4:8]); version != runFileVersion {
		return runFileHeaderInfo{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptRunFile, version)
	}
	flags := binary.LittleEndian.Uint32(header[8:12])
	info := runFileHeaderInfo{
		Count:            binary.LittleEndian.Uint64(header[12:20]),
		UncompressedSize: binary.LittleEndian.Uint64(header[20:28]),
		Compressed:       flags&flagCompressed != 0,
	}
	if info.Compressed {
		if ct := (flags & flagCompressionMask) >> 1; ct != compressionTypeZstd {
			return runFileHeaderInfo{}, fmt.Errorf("%w: unsupported compression type %d", ErrCorruptRunFile, ct)
		}
	}
	return info, nil
}

// runFileReader streams rows back from a run file.
type runFileReader struct {
	file         *os.File
	decompressor *zstd.Decoder
	dec          *rowDecoder
	count        uint64
	read         uint64
	path         string
	closed       bool
}

func openRunFile(path string, bufferSize int) (*runFileReader, error) {
	if bufferSize <= 0 {
		bufferSize = defaultRunBufferSize
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run file: %w", err)
	}

	header := make([]byte, runFileHeader)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read header: %w", ErrCorruptRunFile, err)
	}
	info, err := parseRunFileHeader(header)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	r := &runFileReader{file: f, count: info.Count, path: path}
	var body io.Reader = f
	if info.Compressed {
		d, err := newDecompressor(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.decompressor = d
		body = d
	}
	r.dec = newRowDecoder(bufio.NewReaderSize(body, bufferSize))
	return r, nil
}

// Next returns the next row, or io.EOF after Count rows.
func (r *runFileReader) Next() (*table.Row, error) {
	if r.closed {
		return nil, errors.New("read from closed run file")
	}
	if r.read >= r.count {
		return nil, io.EOF
	}
	row, err := r.dec.Decode()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read row %d of %s: %w", r.read, r.path, err)
	}
	r.read++
	return row, nil
}

func (r *runFileReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.decompressor != nil {
		r.decompressor.Close()
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close run file: %w", err)
	}
	return nil
}
