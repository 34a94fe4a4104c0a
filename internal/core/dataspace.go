package core

import (
	"errors"
	"fmt"

	"github.com/scigolib/dsconv/internal/utils"
)

// Dataspace describes the shape of a dataset or attribute.
// A scalar dataspace has no dimensions; a null dataspace holds no elements.
type Dataspace struct {
	Version uint8
	Dims    []uint64
	MaxDims []uint64
	Null    bool
}

// IsScalar reports whether the dataspace holds exactly one element without
// dimensions.
func (ds *Dataspace) IsScalar() bool {
	return !ds.Null && len(ds.Dims) == 0
}

// ElementCount returns the number of elements the dataspace describes.
func (ds *Dataspace) ElementCount() (uint64, error) {
	if ds.Null {
		return 0, nil
	}
	return utils.ElementCount(ds.Dims)
}

// ParseDataspace parses a dataspace message, versions 1 and 2.
//
// Version 1: version, rank, flags, reserved(5), dims, [maxdims].
// Version 2: version, rank, flags, type, dims, [maxdims].
func ParseDataspace(data []byte, sb *Superblock) (*Dataspace, error) {
	if len(data) < 4 {
		return nil, errors.New("dataspace message too short")
	}

	ds := &Dataspace{Version: data[0]}
	rank := int(data[1])
	flags := data[2]

	var pos int
	switch ds.Version {
	case 1:
		pos = 8
	case 2:
		pos = 4
		ds.Null = data[3] == 2
	default:
		return nil, fmt.Errorf("unsupported dataspace version: %d", ds.Version)
	}

	l := int(sb.LengthSize)
	need := pos + rank*l
	if flags&0x01 != 0 {
		need += rank * l
	}
	if len(data) < need {
		return nil, fmt.Errorf("dataspace message truncated: rank %d needs %d bytes, have %d", rank, need, len(data))
	}

	ds.Dims = make([]uint64, rank)
	for i := range ds.Dims {
		ds.Dims[i], _ = utils.DecodeUint(data[pos:], l)
		pos += l
	}
	if flags&0x01 != 0 {
		ds.MaxDims = make([]uint64, rank)
		for i := range ds.MaxDims {
			ds.MaxDims[i], _ = utils.DecodeAddress(data[pos:], l)
			pos += l
		}
	}
	return ds, nil
}

// EncodeDataspace encodes a version 2 dataspace message with 8-byte lengths.
// An empty dims slice yields a scalar dataspace. Maximum dimensions are not
// stored, so the extent is fixed.
func EncodeDataspace(dims []uint64) []byte {
	buf := make([]byte, 4+8*len(dims))
	buf[0] = 2
	//nolint:gosec // G115: rank is bounded to 32 by callers
	buf[1] = uint8(len(dims))
	buf[2] = 0
	if len(dims) > 0 {
		buf[3] = 1 // simple
	}
	for i, d := range dims {
		utils.EncodeUint(buf[4+8*i:], d, 8)
	}
	return buf
}
