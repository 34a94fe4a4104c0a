package hdf5

import (
	"fmt"
	"os"
	"strings"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/structures"
	"github.com/scigolib/dsconv/internal/utils"
)

// File is an HDF5 file opened for reading.
type File struct {
	osFile *os.File
	path   string
	sb     *core.Superblock
	root   *Group

	heaps map[uint64]*structures.GlobalHeapCollection
}

// Open opens an HDF5 file for reading and loads its root group.
// Open failures of the underlying file are returned unwrapped so callers can
// inspect them with errors.Is(err, fs.ErrNotExist).
func Open(path string) (*File, error) {
	osFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	sb, err := core.ReadSuperblock(osFile)
	if err != nil {
		_ = osFile.Close()
		return nil, utils.WrapError(path, err)
	}

	f := &File{
		osFile: osFile,
		path:   path,
		sb:     sb,
		heaps:  make(map[uint64]*structures.GlobalHeapCollection),
	}

	root, err := f.openGroup("/", sb.RootGroup)
	if err != nil {
		_ = osFile.Close()
		return nil, utils.WrapError(path+": root group", err)
	}
	f.root = root
	return f, nil
}

// Close releases the file handle. Closing twice is a no-op.
func (f *File) Close() error {
	if f.osFile == nil {
		return nil
	}
	err := f.osFile.Close()
	f.osFile = nil
	return err
}

// Path returns the path the file was opened with.
func (f *File) Path() string {
	return f.path
}

// SuperblockVersion returns the superblock format version.
func (f *File) SuperblockVersion() uint8 {
	return f.sb.Version
}

// Root returns the root group.
func (f *File) Root() *Group {
	return f.root
}

// Group opens the group at a slash-separated path relative to the root.
func (f *File) Group(path string) (*Group, error) {
	return f.root.Group(path)
}

// Dataset opens the dataset at a slash-separated path relative to the root.
func (f *File) Dataset(path string) (*Dataset, error) {
	return f.root.Dataset(path)
}

func (f *File) readHeader(addr uint64) (*core.ObjectHeader, error) {
	if f.osFile == nil {
		return nil, ErrClosed
	}
	return core.ReadObjectHeader(f.osFile, addr, f.sb)
}

// globalHeap returns the collection at addr, loading it on first use.
func (f *File) globalHeap(addr uint64) (*structures.GlobalHeapCollection, error) {
	if c, ok := f.heaps[addr]; ok {
		return c, nil
	}
	if f.osFile == nil {
		return nil, ErrClosed
	}
	c, err := structures.LoadGlobalHeapCollection(f.osFile, addr, f.sb)
	if err != nil {
		return nil, err
	}
	f.heaps[addr] = c
	return c, nil
}

// joinPath joins a parent group path and a child name.
func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// splitPath splits a relative or absolute path into its non-empty parts.
func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

func notFound(path string) error {
	return fmt.Errorf("%s: %w", path, ErrNotFound)
}
