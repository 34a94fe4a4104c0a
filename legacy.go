package dsconv

import (
	"github.com/scigolib/dsconv/internal/hdf5"
)

// Legacy dataset names.
const (
	keyData        = "data"
	keyLowerLimits = "lower_limits"
	keyStepSizes   = "step_sizes"
	keyUnitCell    = "unit_cell"
	keyFormat      = "format"
	keyIsDirect    = "is_direct"
)

// LegacyFile is the content of a "Yell 1.0" file.
//
// Format and IsDirect are written by WriteLegacy but are not required when
// reading; HasIsDirect tells whether the source carried is_direct.
type LegacyFile struct {
	Volume      *Volume
	Limits      Limits
	UnitCell    UnitCell
	Format      string
	IsDirect    bool
	HasIsDirect bool
}

// ReadLegacy loads data, lower_limits, step_sizes and unit_cell from a
// legacy file, plus format and is_direct when present.
func ReadLegacy(path string) (lf *LegacyFile, err error) {
	f, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer closeSource(f, &err)

	lf = &LegacyFile{}
	if lf.Volume, err = readVolume(f, keyData); err != nil {
		return nil, err
	}

	lower, err := readVector(f, keyLowerLimits, 3)
	if err != nil {
		return nil, err
	}
	step, err := readVector(f, keyStepSizes, 3)
	if err != nil {
		return nil, err
	}
	cell, err := readVector(f, keyUnitCell, 6)
	if err != nil {
		return nil, err
	}
	copy(lf.Limits.Lower[:], lower)
	copy(lf.Limits.Step[:], step)
	copy(lf.UnitCell[:], cell)

	if err := lf.readTags(f); err != nil {
		return nil, err
	}
	return lf, nil
}

// readTags picks up the optional format and is_direct datasets. Values of
// an unexpected type are ignored.
func (lf *LegacyFile) readTags(f *hdf5.File) error {
	root := f.Root()
	if root.Has(keyFormat) {
		v, err := readValue(f, keyFormat)
		if err != nil {
			return err
		}
		lf.Format, _ = v.(string)
	}
	if root.Has(keyIsDirect) {
		v, err := readValue(f, keyIsDirect)
		if err != nil {
			return err
		}
		lf.IsDirect, lf.HasIsDirect = v.(bool)
	}
	return nil
}

func readValue(f *hdf5.File, key string) (interface{}, error) {
	ds, err := f.Dataset(key)
	if err != nil {
		return nil, readError(f.Path(), key, err)
	}
	v, err := ds.Read()
	if err != nil {
		return nil, readError(f.Path(), key, err)
	}
	return v, nil
}

// WriteLegacy writes a legacy file, replacing any existing file. format is
// always written as "Yell 1.0", whatever lf.Format holds. Only
// WithCompression affects the result.
func WriteLegacy(path string, lf *LegacyFile, opts ...Option) (err error) {
	o := newOptions(opts)
	if err := lf.Volume.validate(keyData); err != nil {
		return err
	}

	w, err := createDest(path)
	if err != nil {
		return err
	}
	defer closeDest(w, path, &err)

	root := w.Root()
	datasets := []struct {
		key   string
		value interface{}
		opts  []hdf5.DatasetOption
	}{
		{keyData, lf.Volume.values(), volumeOptions(lf.Volume, o)},
		{keyLowerLimits, lf.Limits.Lower[:], nil},
		{keyStepSizes, lf.Limits.Step[:], nil},
		{keyUnitCell, lf.UnitCell[:], nil},
		{keyFormat, hdf5.FixedString(FormatYell), nil},
		{keyIsDirect, lf.IsDirect, nil},
	}
	for _, d := range datasets {
		if _, err := root.CreateDataset(d.key, d.value, d.opts...); err != nil {
			return writeError(path, d.key, err)
		}
	}
	return nil
}
