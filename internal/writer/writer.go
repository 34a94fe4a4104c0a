// Package writer provides the file-level plumbing for writing HDF5 files:
// space allocation, positioned writes and the chunk filter pipeline.
package writer

import (
	"errors"
	"fmt"
	"os"
)

// ErrClosed is returned by operations on a closed FileWriter.
var ErrClosed = errors.New("writer is closed")

// CreateMode specifies the file creation behavior.
type CreateMode int

const (
	// ModeTruncate creates a new file, truncating if it exists.
	ModeTruncate CreateMode = iota

	// ModeExclusive creates a new file and fails if it exists.
	ModeExclusive
)

// FileWriter wraps an os.File with end-of-file space allocation.
//
// Thread-safety: Not thread-safe. Caller must synchronize access.
type FileWriter struct {
	file      *os.File
	allocator *Allocator
}

// NewFileWriter creates the file and starts allocating at initialOffset,
// leaving room for the superblock which is written last.
func NewFileWriter(filename string, mode CreateMode, initialOffset uint64) (*FileWriter, error) {
	var osFile *os.File
	var err error

	switch mode {
	case ModeTruncate:
		osFile, err = os.Create(filename)
	case ModeExclusive:
		osFile, err = os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	default:
		return nil, fmt.Errorf("invalid create mode: %d", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &FileWriter{
		file:      osFile,
		allocator: NewAllocator(initialOffset),
	}, nil
}

// Allocate reserves size bytes at the end of the file.
func (w *FileWriter) Allocate(size uint64) (uint64, error) {
	if w.file == nil {
		return 0, ErrClosed
	}
	return w.allocator.Allocate(size)
}

// WriteAt writes data at offset. Implements io.WriterAt.
func (w *FileWriter) WriteAt(data []byte, offset int64) (int, error) {
	if w.file == nil {
		return 0, ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := w.file.WriteAt(data, offset)
	if err != nil {
		return n, fmt.Errorf("write at address %d failed: %w", offset, err)
	}
	if n != len(data) {
		return n, fmt.Errorf("incomplete write at address %d: wrote %d of %d bytes", offset, n, len(data))
	}
	return n, nil
}

// WriteAtAddress writes data at a uint64 file address.
func (w *FileWriter) WriteAtAddress(data []byte, addr uint64) error {
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.WriterAt interface
	_, err := w.WriteAt(data, int64(addr))
	return err
}

// AllocateAndWrite reserves len(data) bytes and writes data there.
func (w *FileWriter) AllocateAndWrite(data []byte) (uint64, error) {
	addr, err := w.Allocate(uint64(len(data)))
	if err != nil {
		return 0, err
	}
	if err := w.WriteAtAddress(data, addr); err != nil {
		return 0, err
	}
	return addr, nil
}

// ReadAt reads back previously written bytes. Implements io.ReaderAt.
func (w *FileWriter) ReadAt(buf []byte, offset int64) (int, error) {
	if w.file == nil {
		return 0, ErrClosed
	}
	return w.file.ReadAt(buf, offset)
}

// EndOfFile returns the address the next allocation would use.
func (w *FileWriter) EndOfFile() uint64 {
	return w.allocator.EndOfFile()
}

// Allocator returns the space allocator.
func (w *FileWriter) Allocator() *Allocator {
	return w.allocator
}

// Flush commits written data to stable storage.
func (w *FileWriter) Flush() error {
	if w.file == nil {
		return ErrClosed
	}
	return w.file.Sync()
}

// Close closes the underlying file. It does not flush. Closing twice is a
// no-op.
func (w *FileWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
