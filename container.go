package dsconv

import (
	"errors"

	"github.com/hashicorp/go-multierror"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/hdf5"
)

// attrReader is implemented by hdf5 groups and datasets.
type attrReader interface {
	Path() string
	Attr(name string) (*hdf5.Attribute, error)
}

// attrWriter is implemented by hdf5 group and dataset writers.
type attrWriter interface {
	WriteAttribute(name string, v interface{}) error
}

func openSource(path string) (*hdf5.File, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	return f, nil
}

// closeSource closes f and folds a close failure into *err.
func closeSource(f *hdf5.File, err *error) {
	if cerr := f.Close(); cerr != nil {
		*err = appendError(*err, &IOError{Op: "close", Path: f.Path(), Err: cerr})
	}
}

func createDest(path string) (*hdf5.Writer, error) {
	w, err := hdf5.Create(path, hdf5.CreateTruncate)
	if err != nil {
		return nil, &IOError{Op: "create", Path: path, Err: err}
	}
	return w, nil
}

// volumeOptions returns the dataset options the volume is written with.
func volumeOptions(v *Volume, o *options) []hdf5.DatasetOption {
	dims := v.Shape.dims()
	opts := []hdf5.DatasetOption{hdf5.WithShape(dims...)}
	if o.deflate == 0 || v.Shape.Len() == 0 {
		return opts
	}
	chunks := append([]uint64{1}, dims[1:]...)
	return append(opts, hdf5.WithChunks(chunks...), hdf5.WithShuffle(), hdf5.WithDeflate(o.deflate))
}

// closeDest serializes and closes w, folding a failure into *err.
func closeDest(w *hdf5.Writer, path string, err *error) {
	if cerr := w.Close(); cerr != nil {
		*err = appendError(*err, &IOError{Op: "close", Path: path, Err: cerr})
	}
}

func appendError(err, next error) error {
	if err == nil {
		return next
	}
	return multierror.Append(err, next)
}

// readError turns a lookup failure for key into a *MissingKeyError and any
// other container failure into an *IOError.
func readError(path, key string, err error) error {
	if errors.Is(err, hdf5.ErrNotFound) {
		return &MissingKeyError{Path: key}
	}
	return &IOError{Op: "read " + key, Path: path, Err: err}
}

func writeError(path, key string, err error) error {
	return &IOError{Op: "write " + key, Path: path, Err: err}
}

// readVolume reads a rank-3 numeric dataset, recording its element type.
func readVolume(f *hdf5.File, key string) (*Volume, error) {
	ds, err := f.Dataset(key)
	if err != nil {
		return nil, readError(f.Path(), key, err)
	}
	dims := ds.Shape()
	if len(dims) != 3 {
		return nil, &ShapeError{Key: key + " rank", Want: 3, Got: len(dims)}
	}

	v := &Volume{}
	dt := ds.Datatype()
	if p, ok := integerPrecision(dt.Size, dt.Signed); ok && dt.Class == core.ClassFixedPoint {
		v.Precision = p
		err = readIntegers(ds, v)
	} else {
		if dt.Class == core.ClassFloat && dt.Size == 4 {
			v.Precision = Float32
		}
		v.Data, err = ds.ReadFloat64s()
	}
	if err != nil {
		return nil, readError(f.Path(), key, err)
	}
	for i, d := range dims {
		v.Shape[i] = int(d) //nolint:gosec // G115: extents are bounded by the data read above
	}
	return v, nil
}

// readIntegers fills Data and keeps the exact integers alongside.
func readIntegers(ds *hdf5.Dataset, v *Volume) error {
	if v.Precision >= Uint8 {
		uints, err := ds.ReadUint64s()
		if err != nil {
			return err
		}
		v.Data = make([]float64, len(uints))
		for i, u := range uints {
			v.Data[i] = float64(u)
		}
		v.exact = uints
		return nil
	}
	ints, err := ds.ReadInt64s()
	if err != nil {
		return err
	}
	v.Data = make([]float64, len(ints))
	for i, n := range ints {
		v.Data[i] = float64(n)
	}
	v.exact = ints
	return nil
}

// readFloats reads a numeric dataset of any shape as a flat slice.
func readFloats(f *hdf5.File, key string) ([]float64, error) {
	ds, err := f.Dataset(key)
	if err != nil {
		return nil, readError(f.Path(), key, err)
	}
	values, err := ds.ReadFloat64s()
	if err != nil {
		return nil, readError(f.Path(), key, err)
	}
	return values, nil
}

// readVector reads a numeric dataset that must hold exactly n values.
func readVector(f *hdf5.File, key string, n int) ([]float64, error) {
	values, err := readFloats(f, key)
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, &ShapeError{Key: key, Want: n, Got: len(values)}
	}
	return values, nil
}

// attrString returns a string attribute and whether it exists. A value of
// another type is an error.
func attrString(o attrReader, name string) (string, bool, error) {
	a, err := o.Attr(name)
	if errors.Is(err, hdf5.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	s, err := a.AsString()
	return s, err == nil, err
}

// unusable reports errors that make an optional attribute count as absent.
func unusable(err error) bool {
	return errors.Is(err, hdf5.ErrTypeMismatch) || errors.Is(err, hdf5.ErrUnsupported)
}

// optString is attrString for attributes nothing depends on: a value that
// is not a string, or cannot be decoded, reads as absent.
func optString(o attrReader, name string) (string, bool, error) {
	s, ok, err := attrString(o, name)
	if unusable(err) {
		return "", false, nil
	}
	return s, ok, err
}

func optStrings(o attrReader, name string) ([]string, error) {
	a, err := o.Attr(name)
	if errors.Is(err, hdf5.ErrNotFound) || unusable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s, err := a.AsStrings()
	if unusable(err) {
		return nil, nil
	}
	return s, err
}

func optInt64(o attrReader, name string) (int64, error) {
	a, err := o.Attr(name)
	if errors.Is(err, hdf5.ErrNotFound) || unusable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := a.AsInt64()
	if unusable(err) {
		return 0, nil
	}
	return n, err
}
