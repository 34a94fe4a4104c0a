package dsconv

import (
	"fmt"

	"github.com/scigolib/dsconv/internal/hdf5"
)

// Paths of the "Disorder scattering 1.0" layout.
const (
	entryName    = "scattering"
	dataName     = "data"
	dataGroup    = entryName + "/" + dataName
	attrSpace    = "space"
	nxEntryClass = "NXentry"
	nxDataClass  = "NXdata"
)

// DiffuseScattering is the content of a "Disorder scattering 1.0" file.
// Empty Radiation and Space are written as x-ray and reciprocal.
type DiffuseScattering struct {
	Volume    *Volume
	Axes      Axes
	UnitCell  UnitCell
	Radiation Radiation
	Space     Space
}

type namedValue struct {
	name  string
	value interface{}
}

func writeAttrs(g attrWriter, attrs []namedValue) error {
	for _, a := range attrs {
		if err := g.WriteAttribute(a.name, a.value); err != nil {
			return fmt.Errorf("attribute %s: %w", a.name, err)
		}
	}
	return nil
}

// rootAttrs are the attributes of the file's root group.
type rootAttrs struct {
	Format  string
	Default string
}

func (a rootAttrs) write(g attrWriter) error {
	return writeAttrs(g, []namedValue{
		{"format", a.Format},
		{"default", a.Default},
	})
}

func (a *rootAttrs) read(g attrReader) error {
	var err error
	if a.Format, _, err = optString(g, "format"); err != nil {
		return err
	}
	a.Default, _, err = optString(g, "default")
	return err
}

// entryAttrs are the attributes of the NXentry group.
type entryAttrs struct {
	NXClass string
	Default string
}

func (a entryAttrs) write(g attrWriter) error {
	return writeAttrs(g, []namedValue{
		{"NX_class", a.NXClass},
		{"default", a.Default},
	})
}

func (a *entryAttrs) read(g attrReader) error {
	var err error
	if a.NXClass, _, err = optString(g, "NX_class"); err != nil {
		return err
	}
	a.Default, _, err = optString(g, "default")
	return err
}

// dataAttrs are the attributes of the NXdata group.
type dataAttrs struct {
	NXClass   string
	Signal    string
	Axes      []string
	HIndices  int64
	KIndices  int64
	LIndices  int64
	Radiation Radiation
	Space     Space

	// HasSpace is set by read when the space attribute exists.
	HasSpace bool
}

func newDataAttrs(radiation Radiation, space Space) dataAttrs {
	if radiation == "" {
		radiation = RadiationXRay
	}
	if space == "" {
		space = SpaceReciprocal
	}
	return dataAttrs{
		NXClass:   nxDataClass,
		Signal:    dataName,
		Axes:      axisNames[:],
		HIndices:  0,
		KIndices:  1,
		LIndices:  2,
		Radiation: radiation,
		Space:     space,
	}
}

func (a dataAttrs) write(g attrWriter) error {
	return writeAttrs(g, []namedValue{
		{"NX_class", a.NXClass},
		{"signal", a.Signal},
		{"axes", a.Axes},
		{"h_indices", a.HIndices},
		{"k_indices", a.KIndices},
		{"l_indices", a.LIndices},
		{"radiation", string(a.Radiation)},
		{attrSpace, string(a.Space)},
	})
}

func (a *dataAttrs) read(g attrReader) error {
	var err error
	if a.NXClass, _, err = optString(g, "NX_class"); err != nil {
		return err
	}
	if a.Signal, _, err = optString(g, "signal"); err != nil {
		return err
	}
	if a.Axes, err = optStrings(g, "axes"); err != nil {
		return err
	}
	for _, idx := range []struct {
		name string
		dst  *int64
	}{
		{"h_indices", &a.HIndices},
		{"k_indices", &a.KIndices},
		{"l_indices", &a.LIndices},
	} {
		if *idx.dst, err = optInt64(g, idx.name); err != nil {
			return err
		}
	}

	return a.readTags(g)
}

// readTags reads only radiation and space, the attributes conversion needs.
// A radiation of an unexpected type is ignored; space must be a string.
func (a *dataAttrs) readTags(g attrReader) error {
	radiation, _, err := optString(g, "radiation")
	if err != nil {
		return err
	}
	a.Radiation = Radiation(radiation)

	space, ok, err := attrString(g, attrSpace)
	if err != nil {
		return err
	}
	a.Space, a.HasSpace = Space(space), ok
	return nil
}

// WriteDiffuseScattering writes ds in the "Disorder scattering 1.0" layout,
// replacing any existing file. Each axis must have as many coordinates as
// the volume has along it. Only WithCompression affects the result.
func WriteDiffuseScattering(path string, ds *DiffuseScattering, opts ...Option) (err error) {
	o := newOptions(opts)
	if err := ds.validate(); err != nil {
		return err
	}

	w, err := createDest(path)
	if err != nil {
		return err
	}
	defer closeDest(w, path, &err)

	root := w.Root()
	if err := (rootAttrs{Format: FormatDisorder, Default: entryName}).write(root); err != nil {
		return writeError(path, "/", err)
	}

	entry, err := root.CreateGroup(entryName)
	if err != nil {
		return writeError(path, entryName, err)
	}
	if err := (entryAttrs{NXClass: nxEntryClass, Default: dataName}).write(entry); err != nil {
		return writeError(path, entryName, err)
	}

	data, err := entry.CreateGroup(dataName)
	if err != nil {
		return writeError(path, dataGroup, err)
	}
	if err := newDataAttrs(ds.Radiation, ds.Space).write(data); err != nil {
		return writeError(path, dataGroup, err)
	}

	datasets := []struct {
		name  string
		value interface{}
		opts  []hdf5.DatasetOption
	}{
		{"h", ds.Axes.H, nil},
		{"k", ds.Axes.K, nil},
		{"l", ds.Axes.L, nil},
		{keyData, ds.Volume.values(), volumeOptions(ds.Volume, o)},
		{keyUnitCell, ds.UnitCell[:], nil},
	}
	for _, d := range datasets {
		if _, err := data.CreateDataset(d.name, d.value, d.opts...); err != nil {
			return writeError(path, dataGroup+"/"+d.name, err)
		}
	}
	return nil
}

func (ds *DiffuseScattering) validate() error {
	if ds.Volume == nil {
		return &ShapeError{Key: keyData, Want: 3, Got: 0}
	}
	if err := ds.Volume.validate(keyData); err != nil {
		return err
	}
	for i, name := range axisNames {
		if n := len(ds.Axes.axis(i)); n != ds.Volume.Shape[i] {
			return &ShapeError{Key: name, Want: ds.Volume.Shape[i], Got: n}
		}
	}
	return nil
}

// ReadDiffuseScattering loads the volume, the h, k and l coordinates, the
// unit cell and the radiation and space tags of a "Disorder scattering 1.0"
// file. The space attribute is required.
func ReadDiffuseScattering(path string) (ds *DiffuseScattering, err error) {
	f, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer closeSource(f, &err)

	ds, attrs, err := readScattering(f)
	if err != nil {
		return nil, err
	}
	if !attrs.HasSpace {
		return nil, &MissingKeyError{Path: dataGroup + "@" + attrSpace}
	}
	return ds, nil
}

// readScattering loads the arrays and the radiation and space tags without
// insisting on the space attribute. Other NXdata attributes are not read.
func readScattering(f *hdf5.File) (*DiffuseScattering, *dataAttrs, error) {
	g, err := f.Group(dataGroup)
	if err != nil {
		return nil, nil, readError(f.Path(), dataGroup, err)
	}
	attrs := &dataAttrs{}
	if err := attrs.readTags(g); err != nil {
		return nil, nil, readError(f.Path(), dataGroup, err)
	}

	ds := &DiffuseScattering{Radiation: attrs.Radiation, Space: attrs.Space}
	if ds.Volume, err = readVolume(f, dataGroup+"/"+keyData); err != nil {
		return nil, nil, err
	}
	for i, name := range axisNames {
		values, err := readFloats(f, dataGroup+"/"+name)
		if err != nil {
			return nil, nil, err
		}
		ds.Axes.setAxis(i, values)
	}
	cell, err := readVector(f, dataGroup+"/"+keyUnitCell, 6)
	if err != nil {
		return nil, nil, err
	}
	copy(ds.UnitCell[:], cell)
	return ds, attrs, nil
}
