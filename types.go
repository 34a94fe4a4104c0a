package dsconv

import (
	"fmt"
	"math"
)

// Format tags written to the files. They identify the layout; nothing reads
// them back to choose a code path.
const (
	FormatYell     = "Yell 1.0"
	FormatDisorder = "Disorder scattering 1.0"
)

// Shape is the extent of a volume along h, k and l.
type Shape [3]int

// Len returns the number of elements in a volume of this shape.
func (s Shape) Len() int {
	return s[0] * s[1] * s[2]
}

func (s Shape) dims() []uint64 {
	//nolint:gosec // G115: shapes come from validated, non-negative extents
	return []uint64{uint64(s[0]), uint64(s[1]), uint64(s[2])}
}

// Precision is the element type the intensities were stored with. Writers
// store the volume with the same type.
type Precision int

const (
	// Float64 is IEEE double precision, the default.
	Float64 Precision = iota
	// Float32 is IEEE single precision.
	Float32

	// Integer precisions keep the width and signedness of the source.
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
)

var precisionNames = [...]string{
	Float64: "float64",
	Float32: "float32",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
}

func (p Precision) String() string {
	if p < 0 || int(p) >= len(precisionNames) {
		return fmt.Sprintf("Precision(%d)", int(p))
	}
	return precisionNames[p]
}

// integerPrecision returns the precision of a size-byte integer.
func integerPrecision(size uint32, signed bool) (Precision, bool) {
	var p Precision
	switch size {
	case 1:
		p = Int8
	case 2:
		p = Int16
	case 4:
		p = Int32
	case 8:
		p = Int64
	default:
		return Float64, false
	}
	if !signed {
		p += Uint8 - Int8
	}
	return p, true
}

// Volume is a 3-D intensity array in row-major order, axes ordered h, k, l.
//
// Data is always float64. For integer precisions, values are rounded and
// clamped to the range of the type when written; values read from an
// integer volume and left unchanged are written back exactly, even beyond
// 2^53.
type Volume struct {
	Shape     Shape
	Data      []float64
	Precision Precision

	// exact holds the integers an integer volume was read from, []int64 or
	// []uint64, indexed like Data.
	exact interface{}
}

// NewVolume returns a float64 volume after checking that data fills shape.
func NewVolume(shape Shape, data []float64) (*Volume, error) {
	v := &Volume{Shape: shape, Data: data}
	if err := v.validate("data"); err != nil {
		return nil, err
	}
	return v, nil
}

// At returns the intensity at index (h, k, l).
func (v *Volume) At(h, k, l int) float64 {
	return v.Data[(h*v.Shape[1]+k)*v.Shape[2]+l]
}

func (v *Volume) validate(key string) error {
	for _, n := range v.Shape {
		if n < 0 {
			return fmt.Errorf("volume %q has negative extent %v: %w", key, v.Shape, ErrShape)
		}
	}
	if len(v.Data) != v.Shape.Len() {
		return &ShapeError{Key: key, Want: v.Shape.Len(), Got: len(v.Data)}
	}
	return nil
}

// values returns the data in the volume's stored precision.
func (v *Volume) values() interface{} {
	switch v.Precision {
	case Float32:
		out := make([]float32, len(v.Data))
		for i, x := range v.Data {
			out[i] = float32(x)
		}
		return out
	case Int8:
		return signedValues[int8](v, math.MinInt8, math.MaxInt8)
	case Int16:
		return signedValues[int16](v, math.MinInt16, math.MaxInt16)
	case Int32:
		return signedValues[int32](v, math.MinInt32, math.MaxInt32)
	case Int64:
		return signedValues[int64](v, math.MinInt64, math.MaxInt64)
	case Uint8:
		return unsignedValues[uint8](v, math.MaxUint8)
	case Uint16:
		return unsignedValues[uint16](v, math.MaxUint16)
	case Uint32:
		return unsignedValues[uint32](v, math.MaxUint32)
	case Uint64:
		return unsignedValues[uint64](v, math.MaxUint64)
	}
	return v.Data
}

func signedValues[T int8 | int16 | int32 | int64](v *Volume, lo, hi int64) []T {
	exact, _ := v.exact.([]int64)
	out := make([]T, len(v.Data))
	for i, x := range v.Data {
		if i < len(exact) && float64(exact[i]) == x && exact[i] >= lo && exact[i] <= hi {
			out[i] = T(exact[i])
			continue
		}
		switch {
		case math.IsNaN(x):
		case x <= float64(lo):
			out[i] = T(lo)
		case x >= float64(hi):
			out[i] = T(hi)
		default:
			out[i] = T(math.Round(x))
		}
	}
	return out
}

func unsignedValues[T uint8 | uint16 | uint32 | uint64](v *Volume, hi uint64) []T {
	exact, _ := v.exact.([]uint64)
	out := make([]T, len(v.Data))
	for i, x := range v.Data {
		if i < len(exact) && float64(exact[i]) == x && exact[i] <= hi {
			out[i] = T(exact[i])
			continue
		}
		switch {
		case math.IsNaN(x) || x <= 0:
		case x >= float64(hi):
			out[i] = T(hi)
		default:
			out[i] = T(math.Round(x))
		}
	}
	return out
}

// Axes holds the coordinate of every index along h, k and l.
type Axes struct {
	H []float64
	K []float64
	L []float64
}

// axisNames are the coordinate dataset names, in axis order.
var axisNames = [3]string{"h", "k", "l"}

func (a *Axes) axis(i int) []float64 {
	switch i {
	case 0:
		return a.H
	case 1:
		return a.K
	default:
		return a.L
	}
}

func (a *Axes) setAxis(i int, values []float64) {
	switch i {
	case 0:
		a.H = values
	case 1:
		a.K = values
	default:
		a.L = values
	}
}

// Limits is the compact form of evenly spaced axes: the first coordinate
// and the spacing along each axis.
type Limits struct {
	Lower [3]float64
	Step  [3]float64
}

// UnitCell holds the lattice parameters a, b, c, alpha, beta and gamma.
// It is copied between formats without interpretation.
type UnitCell [6]float64

// Space tells whether a volume is in reciprocal or direct (PDF) space.
type Space string

// Known spaces.
const (
	SpaceReciprocal Space = "reciprocal"
	SpaceDirect     Space = "direct"
)

// IsDirect reports whether the space is anything other than reciprocal.
// Unknown values count as direct.
func (s Space) IsDirect() bool {
	return s != SpaceReciprocal
}

// Radiation names the probe the data was measured or calculated for. It is
// stored as metadata only.
type Radiation string

// Known radiation kinds.
const (
	RadiationXRay     Radiation = "x-ray"
	RadiationNeutron  Radiation = "neutron"
	RadiationElectron Radiation = "electron"
)
