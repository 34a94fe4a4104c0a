package hdf5

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/structures"
	"github.com/scigolib/dsconv/internal/utils"
)

// FixedString is written as a fixed-length, null-padded ASCII string, the
// type numpy calls "|S<n>". Plain Go strings are written as variable-length
// UTF-8 strings.
type FixedString string

// encoded is a value ready to be stored: its type, its shape (nil for a
// scalar) and its raw element bytes. heapRefs lists offsets in raw where the
// global heap collection address must be patched in once it is known.
type encoded struct {
	dtype    *core.Datatype
	dims     []uint64
	raw      []byte
	heapRefs []int
}

// vlenSize is the on-disk size of one variable-length element with 8-byte
// offsets: length, collection address, object index.
const vlenSize = 4 + 8 + 4

// encodeValue converts a supported Go value. Integer slices keep their
// width and signedness. Variable-length strings are
// added to heap.
func encodeValue(v interface{}, heap *structures.GlobalHeapWriter) (*encoded, error) {
	switch x := v.(type) {
	case float64:
		return encodeFloat64s([]float64{x}, nil), nil
	case []float64:
		return encodeFloat64s(x, dims1(len(x))), nil
	case float32:
		return encodeFloat32s([]float32{x}, nil), nil
	case []float32:
		return encodeFloat32s(x, dims1(len(x))), nil
	case int:
		return encodeIntegers([]int64{int64(x)}, 8, true, nil), nil
	case int64:
		return encodeIntegers([]int64{x}, 8, true, nil), nil
	case []int:
		return encodeIntegers(x, 8, true, dims1(len(x))), nil
	case []int8:
		return encodeIntegers(x, 1, true, dims1(len(x))), nil
	case []int16:
		return encodeIntegers(x, 2, true, dims1(len(x))), nil
	case []int32:
		return encodeIntegers(x, 4, true, dims1(len(x))), nil
	case []int64:
		return encodeIntegers(x, 8, true, dims1(len(x))), nil
	case []uint8:
		return encodeIntegers(x, 1, false, dims1(len(x))), nil
	case []uint16:
		return encodeIntegers(x, 2, false, dims1(len(x))), nil
	case []uint32:
		return encodeIntegers(x, 4, false, dims1(len(x))), nil
	case []uint64:
		return encodeIntegers(x, 8, false, dims1(len(x))), nil
	case string:
		return encodeVarLenStrings([]string{x}, nil, heap)
	case []string:
		return encodeVarLenStrings(x, dims1(len(x)), heap)
	case FixedString:
		return encodeFixedString(string(x)), nil
	case bool:
		return encodeBools([]bool{x}, nil), nil
	case []bool:
		return encodeBools(x, dims1(len(x))), nil
	}
	return nil, fmt.Errorf("%w: cannot store %T", ErrUnsupported, v)
}

func dims1(n int) []uint64 {
	return []uint64{uint64(n)}
}

func encodeFloat64s(vals []float64, dims []uint64) *encoded {
	raw := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	return &encoded{dtype: core.NewFloat64(), dims: dims, raw: raw}
}

func encodeFloat32s(vals []float32, dims []uint64) *encoded {
	raw := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return &encoded{dtype: core.NewFloat32(), dims: dims, raw: raw}
}

type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// encodeIntegers stores little-endian integers of size bytes. Values are
// truncated to size, so callers pick a size their values fit.
func encodeIntegers[T integer](vals []T, size int, signed bool, dims []uint64) *encoded {
	raw := make([]byte, size*len(vals))
	for i, v := range vals {
		//nolint:gosec // G115: two's complement bit pattern is stored as is
		utils.EncodeUint(raw[size*i:], uint64(v), size)
	}
	//nolint:gosec // G115: size is 1, 2, 4 or 8
	dt := core.NewUint(uint32(size))
	if signed {
		dt = core.NewInt(uint32(size)) //nolint:gosec // G115: as above
	}
	return &encoded{dtype: dt, dims: dims, raw: raw}
}

func encodeFixedString(s string) *encoded {
	// A zero-sized string type is invalid; h5py stores b"" as |S1.
	n := max(len(s), 1)
	raw := make([]byte, n)
	copy(raw, s)
	//nolint:gosec // G115: attribute strings are short
	return &encoded{dtype: core.NewFixedString(uint32(n)), raw: raw}
}

func encodeVarLenStrings(vals []string, dims []uint64, heap *structures.GlobalHeapWriter) (*encoded, error) {
	enc := &encoded{dtype: core.NewVarLenString(), dims: dims, raw: make([]byte, vlenSize*len(vals))}
	for i, s := range vals {
		if s == "" {
			// Zero length with an undefined collection reads back as "".
			continue
		}
		idx, err := heap.Add([]byte(s))
		if err != nil {
			return nil, err
		}
		b := enc.raw[vlenSize*i:]
		utils.EncodeUint(b, uint64(len(s)), 4)
		utils.EncodeUint(b[12:], uint64(idx), 4)
		enc.heapRefs = append(enc.heapRefs, vlenSize*i+4)
	}
	return enc, nil
}

func encodeBools(vals []bool, dims []uint64) *encoded {
	raw := make([]byte, len(vals))
	for i, v := range vals {
		if v {
			raw[i] = 1
		}
	}
	return &encoded{dtype: core.NewBool(), dims: dims, raw: raw}
}

// patchHeap writes the collection address into every heap reference.
func (e *encoded) patchHeap(addr uint64) {
	for _, off := range e.heapRefs {
		utils.EncodeUint(e.raw[off:], addr, 8)
	}
}
