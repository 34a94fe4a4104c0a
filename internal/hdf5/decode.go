package hdf5

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/utils"
)

// decode converts raw element bytes to Go values. Scalar dataspaces yield a
// single value, everything else a slice.
func (f *File) decode(dt *core.Datatype, ds *core.Dataspace, raw []byte) (interface{}, error) {
	count, err := ds.ElementCount()
	if err != nil {
		return nil, err
	}
	n := int(count)

	switch {
	case dt.Class == core.ClassFloat:
		v, err := decodeFloats(dt, raw, n)
		if err != nil || !ds.IsScalar() {
			return v, err
		}
		return v[0], nil

	case dt.Class == core.ClassFixedPoint:
		v, err := decodeInts(dt, raw, n)
		if err != nil || !ds.IsScalar() {
			return v, err
		}
		return v[0], nil

	case dt.Class == core.ClassString:
		v := decodeFixedStrings(dt, raw, n)
		if !ds.IsScalar() {
			return v, nil
		}
		return v[0], nil

	case dt.Class == core.ClassVarLen && dt.VarLenString:
		v, err := f.decodeVarLenStrings(dt, raw, n)
		if err != nil || !ds.IsScalar() {
			return v, err
		}
		return v[0], nil

	case dt.IsBool():
		v, err := decodeBools(dt, raw, n)
		if err != nil || !ds.IsScalar() {
			return v, err
		}
		return v[0], nil

	case dt.Class == core.ClassEnum:
		v, err := decodeEnumNames(dt, raw, n)
		if err != nil || !ds.IsScalar() {
			return v, err
		}
		return v[0], nil
	}

	return nil, fmt.Errorf("%w: datatype %s", ErrUnsupported, dt)
}

func byteOrder(dt *core.Datatype) binary.ByteOrder {
	if dt.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func checkLen(dt *core.Datatype, raw []byte, n int) error {
	if need := n * int(dt.Size); len(raw) < need {
		return fmt.Errorf("%d elements of %s need %d bytes, have %d", n, dt, need, len(raw))
	}
	return nil
}

// decodeFloats decodes IEEE single and double precision values.
func decodeFloats(dt *core.Datatype, raw []byte, n int) ([]float64, error) {
	if err := checkLen(dt, raw, n); err != nil {
		return nil, err
	}
	order := byteOrder(dt)
	out := make([]float64, n)
	switch dt.Size {
	case 8:
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(raw[8*i:]))
		}
	case 4:
		for i := range out {
			out[i] = float64(math.Float32frombits(order.Uint32(raw[4*i:])))
		}
	default:
		return nil, fmt.Errorf("%w: %d-byte float", ErrUnsupported, dt.Size)
	}
	return out, nil
}

// decodeUints returns the bit patterns of 1, 2, 4 or 8 byte integers,
// zero-extended.
func decodeUints(dt *core.Datatype, raw []byte, n int) ([]uint64, error) {
	if err := checkLen(dt, raw, n); err != nil {
		return nil, err
	}
	size := int(dt.Size)
	if size != 1 && size != 2 && size != 4 && size != 8 {
		return nil, fmt.Errorf("%w: %d-byte integer", ErrUnsupported, size)
	}

	order := byteOrder(dt)
	out := make([]uint64, n)
	for i := range out {
		b := raw[i*size : (i+1)*size]
		switch size {
		case 1:
			out[i] = uint64(b[0])
		case 2:
			out[i] = uint64(order.Uint16(b))
		case 4:
			out[i] = uint64(order.Uint32(b))
		case 8:
			out[i] = order.Uint64(b)
		}
	}
	return out, nil
}

// decodeInts decodes signed and unsigned integers as int64. Unsigned 64-bit
// values above MaxInt64 wrap; use decodeUints to keep them.
func decodeInts(dt *core.Datatype, raw []byte, n int) ([]int64, error) {
	us, err := decodeUints(dt, raw, n)
	if err != nil {
		return nil, err
	}
	out := make([]int64, n)
	shift := uint(64 - 8*dt.Size)
	for i, u := range us {
		if dt.Signed {
			//nolint:gosec // G115: sign extension through two's complement is intended
			out[i] = int64(u<<shift) >> shift
		} else {
			//nolint:gosec // G115: documented wrap above MaxInt64
			out[i] = int64(u)
		}
	}
	return out, nil
}

func decodeFixedStrings(dt *core.Datatype, raw []byte, n int) []string {
	size := int(dt.Size)
	out := make([]string, n)
	for i := range out {
		if (i+1)*size > len(raw) {
			break
		}
		out[i] = trimString(raw[i*size:(i+1)*size], dt.StringPad)
	}
	return out
}

func trimString(b []byte, pad uint8) string {
	switch pad {
	case core.PadNullTerm:
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
	case core.PadSpacePad:
		b = bytes.TrimRight(b, " ")
	default:
		b = bytes.TrimRight(b, "\x00")
	}
	return string(b)
}

// decodeVarLenStrings resolves variable-length strings: each element is a
// length (4), a global heap collection address (O) and an object index (4).
func (f *File) decodeVarLenStrings(dt *core.Datatype, raw []byte, n int) ([]string, error) {
	o := int(f.sb.OffsetSize)
	elem := 4 + o + 4
	if len(raw) < n*elem {
		return nil, fmt.Errorf("variable-length data truncated: need %d bytes, have %d", n*elem, len(raw))
	}

	out := make([]string, n)
	for i := range out {
		b := raw[i*elem:]
		length, _ := utils.DecodeUint(b, 4)
		addr, _ := utils.DecodeAddress(b[4:], o)
		idx, _ := utils.DecodeUint(b[4+o:], 4)
		if length == 0 || addr == 0 || addr == utils.UndefinedAddress {
			continue
		}

		heap, err := f.globalHeap(addr)
		if err != nil {
			return nil, err
		}
		//nolint:gosec // G115: object indices are 16-bit in the collection
		obj, err := heap.Object(uint16(idx))
		if err != nil {
			return nil, err
		}
		if uint64(len(obj)) > length {
			obj = obj[:length]
		}
		out[i] = trimString(obj, dt.StringPad)
	}
	return out, nil
}

func decodeBools(dt *core.Datatype, raw []byte, n int) ([]bool, error) {
	ints, err := decodeInts(dt.Base, raw, n)
	if err != nil {
		return nil, err
	}
	trueVal, err := decodeInts(dt.Base, dt.Members[1].Value, 1)
	if err != nil {
		return nil, err
	}
	out := make([]bool, n)
	for i, v := range ints {
		out[i] = v == trueVal[0]
	}
	return out, nil
}

func decodeEnumNames(dt *core.Datatype, raw []byte, n int) ([]string, error) {
	if err := checkLen(dt, raw, n); err != nil {
		return nil, err
	}
	size := int(dt.Size)
	out := make([]string, n)
	for i := range out {
		v := raw[i*size : (i+1)*size]
		for _, m := range dt.Members {
			if bytes.Equal(m.Value, v) {
				out[i] = m.Name
				break
			}
		}
	}
	return out, nil
}
