package dsconv

import (
	"bytes"
	"io/fs"
	"math"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/hdf5"
)

func testVolume(shape Shape) *Volume {
	data := make([]float64, shape.Len())
	for i := range data {
		data[i] = float64(i%17) * 1.5
	}
	return &Volume{Shape: shape, Data: data}
}

func writeTestLegacy(t *testing.T, dir string, lf *LegacyFile) string {
	t.Helper()
	path := filepath.Join(dir, "legacy.h5")
	require.NoError(t, WriteLegacy(path, lf))
	return path
}

func TestRoundTrip_LegacyNewLegacy(t *testing.T) {
	dir := t.TempDir()
	src := &LegacyFile{
		Volume:   testVolume(Shape{4, 5, 3}),
		Limits:   Limits{Lower: [3]float64{-2, -2.5, 0}, Step: [3]float64{1, 0.5, 0.25}},
		UnitCell: UnitCell{5.4, 5.4, 7.1, 90, 90, 120},
	}
	legacy := writeTestLegacy(t, dir, src)
	nexus := filepath.Join(dir, "new.nxs")
	back := filepath.Join(dir, "back.h5")

	require.NoError(t, LegacyToNew(legacy, nexus))
	require.NoError(t, NewToLegacy(nexus, back))

	got, err := ReadLegacy(back)
	require.NoError(t, err)
	require.Equal(t, src.Volume.Shape, got.Volume.Shape)
	require.Equal(t, src.Volume.Data, got.Volume.Data)
	require.Equal(t, src.UnitCell, got.UnitCell)
	require.Equal(t, src.Limits, got.Limits)
	require.Equal(t, FormatYell, got.Format)
	require.True(t, got.HasIsDirect)
	require.False(t, got.IsDirect)
}

func TestLegacyToNew_Layout(t *testing.T) {
	dir := t.TempDir()
	legacy := writeTestLegacy(t, dir, &LegacyFile{
		Volume:   testVolume(Shape{4, 4, 2}),
		Limits:   Limits{Step: [3]float64{0.5, 0.5, 1.0}},
		UnitCell: UnitCell{1, 1, 1, 90, 90, 90},
	})
	nexus := filepath.Join(dir, "new.nxs")
	require.NoError(t, LegacyToNew(legacy, nexus, WithRadiation(RadiationNeutron)))

	f, err := hdf5.Open(nexus)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var root rootAttrs
	require.NoError(t, root.read(f.Root()))
	require.Equal(t, rootAttrs{Format: FormatDisorder, Default: "scattering"}, root)

	entry, err := f.Group("scattering")
	require.NoError(t, err)
	var ea entryAttrs
	require.NoError(t, ea.read(entry))
	require.Equal(t, entryAttrs{NXClass: "NXentry", Default: "data"}, ea)

	data, err := f.Group("scattering/data")
	require.NoError(t, err)
	require.Equal(t, []string{"h", "k", "l", "data", "unit_cell"}, data.Names())
	var da dataAttrs
	require.NoError(t, da.read(data))
	want := newDataAttrs(RadiationNeutron, SpaceReciprocal)
	want.HasSpace = true
	require.Equal(t, want, da)

	ds, err := f.Dataset("scattering/data/data")
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 4, 2}, ds.Shape())

	h, err := f.Dataset("scattering/data/h")
	require.NoError(t, err)
	values, err := h.ReadFloat64s()
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0.5, 1.0, 1.5}, values)
}

func TestShapePreservation_Float32(t *testing.T) {
	dir := t.TempDir()
	vol := testVolume(Shape{3, 2, 6})
	vol.Precision = Float32
	legacy := writeTestLegacy(t, dir, &LegacyFile{Volume: vol, Limits: Limits{Step: [3]float64{1, 1, 1}}})

	nexus := filepath.Join(dir, "new.nxs")
	require.NoError(t, LegacyToNew(legacy, nexus))
	ds, err := ReadDiffuseScattering(nexus)
	require.NoError(t, err)
	require.Equal(t, Shape{3, 2, 6}, ds.Volume.Shape)
	require.Equal(t, Float32, ds.Volume.Precision)
	require.Equal(t, vol.Data, ds.Volume.Data)

	back := filepath.Join(dir, "back.h5")
	require.NoError(t, NewToLegacy(nexus, back))
	lf, err := ReadLegacy(back)
	require.NoError(t, err)
	require.Equal(t, Shape{3, 2, 6}, lf.Volume.Shape)
	require.Equal(t, Float32, lf.Volume.Precision)
}

func TestConvert_Compression(t *testing.T) {
	dir := t.TempDir()
	vol := testVolume(Shape{6, 5, 4})
	vol.Precision = Float32
	legacy := filepath.Join(dir, "legacy.h5")
	require.NoError(t, WriteLegacy(legacy, &LegacyFile{
		Volume:   vol,
		Limits:   Limits{Step: [3]float64{1, 1, 1}},
		UnitCell: UnitCell{1, 1, 1, 90, 90, 90},
	}, WithCompression(9)))

	nexus := filepath.Join(dir, "new.nxs")
	back := filepath.Join(dir, "back.h5")
	require.NoError(t, LegacyToNew(legacy, nexus, WithCompression(4)))
	require.NoError(t, NewToLegacy(nexus, back))

	layouts := map[string]core.LayoutClass{
		legacy: core.LayoutChunked,
		nexus:  core.LayoutChunked,
		back:   core.LayoutContiguous,
	}
	for path, want := range layouts {
		f, err := hdf5.Open(path)
		require.NoError(t, err)
		key := "data"
		if path == nexus {
			key = "scattering/data/data"
		}
		d, err := f.Dataset(key)
		require.NoError(t, err)
		require.Equal(t, want, d.Layout(), path)
		require.NoError(t, f.Close())
	}

	got, err := ReadLegacy(back)
	require.NoError(t, err)
	require.Equal(t, Float32, got.Volume.Precision)
	require.Equal(t, vol.Data, got.Volume.Data)
}

// writeIntegerLegacy writes a legacy file whose data dataset has the Go
// element type of data.
func writeIntegerLegacy(t *testing.T, path string, data interface{}, shape ...uint64) {
	t.Helper()
	w, err := hdf5.Create(path, hdf5.CreateTruncate)
	require.NoError(t, err)
	root := w.Root()
	_, err = root.CreateDataset("data", data, hdf5.WithShape(shape...))
	require.NoError(t, err)
	for name, v := range map[string]interface{}{
		"lower_limits": []float64{0, 0, 0},
		"step_sizes":   []float64{1, 1, 1},
		"unit_cell":    []float64{1, 1, 1, 90, 90, 90},
	} {
		_, err = root.CreateDataset(name, v)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestConvert_IntegerVolumes(t *testing.T) {
	tests := []struct {
		name      string
		data      interface{}
		precision Precision
		size      uint32
		signed    bool
	}{
		{"int32", []int32{-7, 0, 1, math.MaxInt32, math.MinInt32, 42, 3, -1}, Int32, 4, true},
		{"uint64", []uint64{0, 1, 1<<63 + 1, math.MaxUint64, 1 << 53, 1<<53 + 1, 5, 6}, Uint64, 8, false},
		{"uint8", []uint8{0, 255, 1, 2, 3, 4, 5, 6}, Uint8, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			legacy := filepath.Join(dir, "legacy.h5")
			nexus := filepath.Join(dir, "new.nxs")
			back := filepath.Join(dir, "back.h5")
			writeIntegerLegacy(t, legacy, tt.data, 2, 2, 2)

			require.NoError(t, LegacyToNew(legacy, nexus, WithCompression(3)))
			require.NoError(t, NewToLegacy(nexus, back))

			for path, key := range map[string]string{nexus: "scattering/data/data", back: "data"} {
				f, err := hdf5.Open(path)
				require.NoError(t, err)
				d, err := f.Dataset(key)
				require.NoError(t, err)
				dt := d.Datatype()
				require.Equal(t, core.ClassFixedPoint, dt.Class, path)
				require.Equal(t, tt.size, dt.Size, path)
				require.Equal(t, tt.signed, dt.Signed, path)

				var got interface{}
				if tt.signed {
					ints, err := d.ReadInt64s()
					require.NoError(t, err)
					got = ints
				} else {
					uints, err := d.ReadUint64s()
					require.NoError(t, err)
					got = uints
				}
				require.Equal(t, widen(tt.data), got, path)
				require.NoError(t, f.Close())
			}

			lf, err := ReadLegacy(back)
			require.NoError(t, err)
			require.Equal(t, tt.precision, lf.Volume.Precision)
		})
	}
}

// widen converts an integer slice to []int64 or []uint64.
func widen(data interface{}) interface{} {
	switch x := data.(type) {
	case []int32:
		out := make([]int64, len(x))
		for i, v := range x {
			out[i] = int64(v)
		}
		return out
	case []uint8:
		out := make([]uint64, len(x))
		for i, v := range x {
			out[i] = uint64(v)
		}
		return out
	}
	return data
}

func TestVolume_IntegerValues(t *testing.T) {
	v := &Volume{Shape: Shape{1, 1, 5}, Data: []float64{-3, 2.6, 300, math.NaN(), 7}, Precision: Uint8}
	require.Equal(t, []uint8{0, 3, 255, 0, 7}, v.values())

	v.Precision = Int16
	v.Data = []float64{-40000, -2.5, 40000, 1, 0}
	require.Equal(t, []int16{math.MinInt16, -3, math.MaxInt16, 1, 0}, v.values())

	// Exact integers are kept only where Data still matches them.
	v.Precision = Int64
	v.exact = []int64{math.MaxInt64, 5}
	v.Data = []float64{float64(math.MaxInt64), 6}
	require.Equal(t, []int64{math.MaxInt64, 6}, v.values())

	require.Equal(t, "uint32", Uint32.String())
	require.Equal(t, "float32", Float32.String())
}

func TestNewToLegacy_SpaceFlag(t *testing.T) {
	tests := []struct {
		space    Space
		isDirect bool
	}{
		{SpaceReciprocal, false},
		{SpaceDirect, true},
		{"scattering density", true},
		{"Reciprocal", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.space), func(t *testing.T) {
			dir := t.TempDir()
			nexus := filepath.Join(dir, "new.nxs")
			require.NoError(t, WriteDiffuseScattering(nexus, &DiffuseScattering{
				Volume: testVolume(Shape{2, 2, 2}),
				Axes:   ForwardAxes(Limits{Step: [3]float64{1, 1, 1}}, Shape{2, 2, 2}),
				Space:  tt.space,
			}))

			back := filepath.Join(dir, "back.h5")
			require.NoError(t, NewToLegacy(nexus, back))
			lf, err := ReadLegacy(back)
			require.NoError(t, err)
			require.Equal(t, tt.isDirect, lf.IsDirect)
		})
	}
}

// writeNexusWithout writes a new-format file by hand, leaving out the named
// dataset or, for "@space", the space attribute.
func writeNexusWithout(t *testing.T, path, omit string) {
	t.Helper()
	w, err := hdf5.Create(path, hdf5.CreateTruncate)
	require.NoError(t, err)
	root := w.Root()
	require.NoError(t, root.WriteAttribute("format", "Disorder scattering 2.0"))
	entry, err := root.CreateGroup("scattering")
	require.NoError(t, err)
	data, err := entry.CreateGroup("data")
	require.NoError(t, err)
	if omit != "@space" {
		require.NoError(t, data.WriteAttribute("space", "reciprocal"))
	}

	vol := testVolume(Shape{2, 3, 2})
	datasets := map[string]interface{}{
		"h":         []float64{0, 1},
		"k":         []float64{0, 1, 2},
		"l":         []float64{5, 7},
		"unit_cell": []float64{1, 2, 3, 90, 90, 90},
	}
	for _, name := range []string{"h", "k", "l", "unit_cell"} {
		if name != omit {
			_, err = data.CreateDataset(name, datasets[name])
			require.NoError(t, err)
		}
	}
	if omit != "data" {
		_, err = data.CreateDataset("data", vol.Data, hdf5.WithShape(2, 3, 2))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestNewToLegacy_MissingSpace(t *testing.T) {
	dir := t.TempDir()
	nexus := filepath.Join(dir, "new.nxs")
	writeNexusWithout(t, nexus, "@space")

	err := NewToLegacy(nexus, filepath.Join(dir, "out.h5"))
	require.ErrorIs(t, err, ErrMissingKey)
	var missing *MissingKeyError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "scattering/data@space", missing.Path)
}

func TestNewToLegacy_IgnoresOptionalAttributeTypes(t *testing.T) {
	dir := t.TempDir()
	nexus := filepath.Join(dir, "new.nxs")

	w, err := hdf5.Create(nexus, hdf5.CreateTruncate)
	require.NoError(t, err)
	entry, err := w.Root().CreateGroup("scattering")
	require.NoError(t, err)
	data, err := entry.CreateGroup("data")
	require.NoError(t, err)
	for name, v := range map[string]interface{}{
		"NX_class":  int64(7),
		"signal":    []float64{1, 2},
		"axes":      2.5,
		"h_indices": 0.0,
		"k_indices": "one",
		"radiation": []int64{1},
		"space":     "direct",
	} {
		require.NoError(t, data.WriteAttribute(name, v))
	}
	for name, v := range map[string]interface{}{
		"h":         []float64{0, 1},
		"k":         []float64{0, 1, 2},
		"l":         []float64{5, 7},
		"unit_cell": []float64{1, 2, 3, 90, 90, 90},
	} {
		_, err = data.CreateDataset(name, v)
		require.NoError(t, err)
	}
	_, err = data.CreateDataset("data", testVolume(Shape{2, 3, 2}).Data, hdf5.WithShape(2, 3, 2))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	back := filepath.Join(dir, "back.h5")
	require.NoError(t, NewToLegacy(nexus, back))
	lf, err := ReadLegacy(back)
	require.NoError(t, err)
	require.True(t, lf.IsDirect)
	require.Equal(t, [3]float64{0, 0, 5}, lf.Limits.Lower)

	ds, err := ReadDiffuseScattering(nexus)
	require.NoError(t, err)
	require.Equal(t, Radiation(""), ds.Radiation)
	require.Equal(t, SpaceDirect, ds.Space)
}

func TestNewToLegacy_SpaceNotString(t *testing.T) {
	dir := t.TempDir()
	nexus := filepath.Join(dir, "new.nxs")

	w, err := hdf5.Create(nexus, hdf5.CreateTruncate)
	require.NoError(t, err)
	entry, err := w.Root().CreateGroup("scattering")
	require.NoError(t, err)
	data, err := entry.CreateGroup("data")
	require.NoError(t, err)
	require.NoError(t, data.WriteAttribute("space", 1.0))
	require.NoError(t, w.Close())

	err = NewToLegacy(nexus, filepath.Join(dir, "out.h5"))
	require.ErrorIs(t, err, hdf5.ErrTypeMismatch)
}

func TestNewToLegacy_MissingDatasets(t *testing.T) {
	for _, name := range []string{"data", "h", "k", "l", "unit_cell"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			nexus := filepath.Join(dir, "new.nxs")
			writeNexusWithout(t, nexus, name)

			err := NewToLegacy(nexus, filepath.Join(dir, "out.h5"))
			var missing *MissingKeyError
			require.ErrorAs(t, err, &missing)
			require.Equal(t, "scattering/data/"+name, missing.Path)
		})
	}
}

func TestNewToLegacy_FormatLiteral(t *testing.T) {
	dir := t.TempDir()
	nexus := filepath.Join(dir, "new.nxs")
	writeNexusWithout(t, nexus, "")

	back := filepath.Join(dir, "back.h5")
	require.NoError(t, NewToLegacy(nexus, back))

	lf, err := ReadLegacy(back)
	require.NoError(t, err)
	require.Equal(t, FormatYell, lf.Format)
	require.Equal(t, [3]float64{0, 0, 5}, lf.Limits.Lower)
	require.Equal(t, [3]float64{1, 1, 2}, lf.Limits.Step)

	f, err := hdf5.Open(back)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	ds, err := f.Dataset("format")
	require.NoError(t, err)
	require.Equal(t, "|S8", ds.Datatype().String())
	ds, err = f.Dataset("is_direct")
	require.NoError(t, err)
	require.Equal(t, "bool", ds.Datatype().String())
}

func TestNewToLegacy_StrictAxes(t *testing.T) {
	dir := t.TempDir()
	nexus := filepath.Join(dir, "new.nxs")
	axes := ForwardAxes(Limits{Step: [3]float64{1, 1, 1}}, Shape{4, 2, 2})
	axes.H[3] = 10
	require.NoError(t, WriteDiffuseScattering(nexus, &DiffuseScattering{
		Volume: testVolume(Shape{4, 2, 2}),
		Axes:   axes,
	}))

	err := NewToLegacy(nexus, filepath.Join(dir, "strict.h5"), WithStrictAxes(1e-9))
	require.ErrorIs(t, err, ErrNonUniformAxis)

	// Default mode summarizes the axis by its first two samples.
	back := filepath.Join(dir, "lenient.h5")
	require.NoError(t, NewToLegacy(nexus, back))
	lf, err := ReadLegacy(back)
	require.NoError(t, err)
	require.Equal(t, [3]float64{1, 1, 1}, lf.Limits.Step)
}

func TestNewToLegacy_ShortAxis(t *testing.T) {
	dir := t.TempDir()
	nexus := filepath.Join(dir, "new.nxs")
	require.NoError(t, WriteDiffuseScattering(nexus, &DiffuseScattering{
		Volume: testVolume(Shape{3, 1, 2}),
		Axes:   ForwardAxes(Limits{Step: [3]float64{1, 1, 1}}, Shape{3, 1, 2}),
	}))

	err := NewToLegacy(nexus, filepath.Join(dir, "out.h5"))
	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	require.Equal(t, "k", shapeErr.Key)
}

func TestLegacyToNew_Failures(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing source", func(t *testing.T) {
		err := LegacyToNew(filepath.Join(dir, "nope.h5"), filepath.Join(dir, "out.nxs"))
		var ioErr *IOError
		require.ErrorAs(t, err, &ioErr)
		require.Equal(t, "open", ioErr.Op)
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	write := func(t *testing.T, name string, build func(root *hdf5.GroupWriter)) string {
		path := filepath.Join(dir, name)
		w, err := hdf5.Create(path, hdf5.CreateTruncate)
		require.NoError(t, err)
		build(w.Root())
		require.NoError(t, w.Close())
		return path
	}

	t.Run("missing step_sizes", func(t *testing.T) {
		src := write(t, "nostep.h5", func(root *hdf5.GroupWriter) {
			_, _ = root.CreateDataset("data", make([]float64, 8), hdf5.WithShape(2, 2, 2))
			_, _ = root.CreateDataset("lower_limits", []float64{0, 0, 0})
			_, _ = root.CreateDataset("unit_cell", []float64{1, 1, 1, 90, 90, 90})
		})
		err := LegacyToNew(src, filepath.Join(dir, "out.nxs"))
		var missing *MissingKeyError
		require.ErrorAs(t, err, &missing)
		require.Equal(t, "step_sizes", missing.Path)
	})

	t.Run("short lower_limits", func(t *testing.T) {
		src := write(t, "short.h5", func(root *hdf5.GroupWriter) {
			_, _ = root.CreateDataset("data", make([]float64, 8), hdf5.WithShape(2, 2, 2))
			_, _ = root.CreateDataset("lower_limits", []float64{0, 0})
			_, _ = root.CreateDataset("step_sizes", []float64{1, 1, 1})
			_, _ = root.CreateDataset("unit_cell", []float64{1, 1, 1, 90, 90, 90})
		})
		err := LegacyToNew(src, filepath.Join(dir, "out.nxs"))
		var shapeErr *ShapeError
		require.ErrorAs(t, err, &shapeErr)
		require.Equal(t, ShapeError{Key: "lower_limits", Want: 3, Got: 2}, *shapeErr)
	})

	t.Run("2-D data", func(t *testing.T) {
		src := write(t, "flat.h5", func(root *hdf5.GroupWriter) {
			_, _ = root.CreateDataset("data", make([]float64, 6), hdf5.WithShape(2, 3))
			_, _ = root.CreateDataset("lower_limits", []float64{0, 0, 0})
			_, _ = root.CreateDataset("step_sizes", []float64{1, 1, 1})
			_, _ = root.CreateDataset("unit_cell", []float64{1, 1, 1, 90, 90, 90})
		})
		err := LegacyToNew(src, filepath.Join(dir, "out.nxs"))
		require.ErrorIs(t, err, ErrShape)
	})
}

func TestWriteDiffuseScattering_AxisLengthMismatch(t *testing.T) {
	err := WriteDiffuseScattering(filepath.Join(t.TempDir(), "bad.nxs"), &DiffuseScattering{
		Volume: testVolume(Shape{2, 2, 2}),
		Axes:   Axes{H: []float64{0, 1}, K: []float64{0, 1, 2}, L: []float64{0, 1}},
	})
	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	require.Equal(t, "k", shapeErr.Key)
}

func TestConvert_LogsAtDebug(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	dir := t.TempDir()
	legacy := writeTestLegacy(t, dir, &LegacyFile{
		Volume: testVolume(Shape{2, 2, 2}),
		Limits: Limits{Step: [3]float64{1, 1, 1}},
	})
	require.NoError(t, LegacyToNew(legacy, filepath.Join(dir, "new.nxs"), WithLogger(log)))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, logrus.DebugLevel, entry.Level)
	require.Equal(t, legacy, entry.Data["src"])
	require.Equal(t, Shape{2, 2, 2}, entry.Data["shape"])
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	nexus := filepath.Join(dir, "new.nxs")
	require.NoError(t, WriteDiffuseScattering(nexus, &DiffuseScattering{
		Volume:   testVolume(Shape{4, 4, 2}),
		Axes:     ForwardAxes(Limits{Step: [3]float64{0.5, 0.5, 1}}, Shape{4, 4, 2}),
		UnitCell: UnitCell{3, 4, 5, 90, 90, 90},
	}))

	var out bytes.Buffer
	ds, err := Inspect(nexus, &out)
	require.NoError(t, err)
	require.Equal(t, SpaceReciprocal, ds.Space)
	require.Equal(t, UnitCell{3, 4, 5, 90, 90, 90}, ds.UnitCell)

	report := out.String()
	require.Contains(t, report, "Disorder scattering 1.0")
	require.Contains(t, report, "NXdata")
	require.Contains(t, report, "[h, k, l]")
	require.Contains(t, report, "shape (4, 4, 2)")
	require.Contains(t, report, "H indices : 4 values, 0 to 1.5")
	require.Contains(t, report, "L indices : 2 values, 0 to 1")
}

func TestInspect_ToleratesMissingSpace(t *testing.T) {
	nexus := filepath.Join(t.TempDir(), "new.nxs")
	writeNexusWithout(t, nexus, "@space")

	var out bytes.Buffer
	ds, err := Inspect(nexus, &out)
	require.NoError(t, err)
	require.Empty(t, ds.Space)
	require.Contains(t, out.String(), "space     : (missing)")

	_, err = ReadDiffuseScattering(nexus)
	require.ErrorIs(t, err, ErrMissingKey)
}
