// Package hdf5 is a small hierarchical container store on top of the HDF5
// file format. It reads the files h5py and the HDF5 library produce for
// scattering volumes and writes new files that both can read.
//
// Reading:
//
//	f, err := hdf5.Open("volume.h5")
//	if err != nil { ... }
//	defer f.Close()
//	ds, err := f.Dataset("scattering/data/data")
//	values, err := ds.ReadFloat64s()
//
// Writing builds the tree in memory and serializes it on Close:
//
//	w, err := hdf5.Create("out.h5", hdf5.CreateTruncate)
//	root := w.Root()
//	_ = root.WriteAttribute("format", "Yell 1.0")
//	_, _ = root.CreateDataset("data", values, hdf5.WithShape(4, 4, 2))
//	err = w.Close()
package hdf5

import "errors"

var (
	// ErrNotFound is returned when a group, dataset or attribute does not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported is returned for valid HDF5 features this package does
	// not implement, such as dense link storage.
	ErrUnsupported = errors.New("unsupported HDF5 feature")

	// ErrTypeMismatch is returned when an object or value has a different
	// kind than requested.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrExists is returned when creating a member under a name that is
	// already taken.
	ErrExists = errors.New("already exists")

	// ErrClosed is returned when using a closed file or writer.
	ErrClosed = errors.New("file is closed")
)
