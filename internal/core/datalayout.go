package core

import (
	"errors"
	"fmt"

	"github.com/scigolib/dsconv/internal/utils"
)

// LayoutClass is the storage layout of a dataset's raw data.
type LayoutClass uint8

// Layout classes.
const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

// String implements fmt.Stringer.
func (c LayoutClass) String() string {
	switch c {
	case LayoutCompact:
		return "compact"
	case LayoutContiguous:
		return "contiguous"
	case LayoutChunked:
		return "chunked"
	case LayoutVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("layout(%d)", uint8(c))
	}
}

// DataLayout is a decoded data layout message.
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	// Contiguous storage. Size is zero for versions 1 and 2, where the
	// caller derives it from the dataspace.
	Address uint64
	Size    uint64

	// Compact storage.
	CompactData []byte

	// Chunked storage indexed by a version 1 B-tree. ChunkDims excludes the
	// trailing element-size dimension.
	BTreeAddress     uint64
	ChunkDims        []uint64
	ChunkElementSize uint32
}

// ParseDataLayout decodes layout message versions 1 to 4. Version 4 chunked
// layouts use index structures other than the v1 B-tree and are rejected.
func ParseDataLayout(data []byte, sb *Superblock) (*DataLayout, error) {
	if len(data) < 2 {
		return nil, errors.New("data layout message too short")
	}
	dl := &DataLayout{Version: data[0]}
	switch dl.Version {
	case 1, 2:
		return dl, dl.parseV1(data, sb)
	case 3, 4:
		return dl, dl.parseV3(data, sb)
	default:
		return nil, fmt.Errorf("unsupported data layout version: %d", dl.Version)
	}
}

// parseV1 handles version, dimensionality, class, reserved(5), [address],
// dims(4 each), [compact size(4) + data].
func (dl *DataLayout) parseV1(data []byte, sb *Superblock) error {
	if len(data) < 8 {
		return errors.New("data layout v1 truncated")
	}
	ndims := int(data[1])
	dl.Class = LayoutClass(data[2])
	pos := 8
	o := int(sb.OffsetSize)

	if dl.Class != LayoutCompact {
		if len(data) < pos+o {
			return errors.New("data layout v1 address truncated")
		}
		dl.Address, _ = utils.DecodeAddress(data[pos:], o)
		pos += o
	}
	if len(data) < pos+4*ndims {
		return errors.New("data layout v1 dimensions truncated")
	}
	dims := make([]uint64, ndims)
	for i := range dims {
		dims[i], _ = utils.DecodeUint(data[pos:], 4)
		pos += 4
	}

	switch dl.Class {
	case LayoutCompact:
		if len(data) < pos+4 {
			return errors.New("data layout v1 compact size truncated")
		}
		n, _ := utils.DecodeUint(data[pos:], 4)
		pos += 4
		if len(data) < pos+int(n) {
			return errors.New("data layout v1 compact data truncated")
		}
		dl.CompactData = data[pos : pos+int(n)]
	case LayoutChunked:
		dl.BTreeAddress = dl.Address
		dl.Address = utils.UndefinedAddress
		if ndims > 0 {
			dl.ChunkDims = dims[:ndims-1]
			//nolint:gosec // G115: read from a 4-byte field
			dl.ChunkElementSize = uint32(dims[ndims-1])
		}
	}
	return nil
}

// parseV3 handles the class-specific encodings shared by versions 3 and 4.
func (dl *DataLayout) parseV3(data []byte, sb *Superblock) error {
	dl.Class = LayoutClass(data[1])
	body := data[2:]
	o, l := int(sb.OffsetSize), int(sb.LengthSize)

	switch dl.Class {
	case LayoutCompact:
		if len(body) < 2 {
			return errors.New("compact layout truncated")
		}
		n, _ := utils.DecodeUint(body, 2)
		if len(body) < 2+int(n) {
			return errors.New("compact layout data truncated")
		}
		dl.CompactData = body[2 : 2+int(n)]

	case LayoutContiguous:
		if len(body) < o+l {
			return errors.New("contiguous layout truncated")
		}
		dl.Address, _ = utils.DecodeAddress(body, o)
		dl.Size, _ = utils.DecodeUint(body[o:], l)

	case LayoutChunked:
		if dl.Version == 4 {
			return fmt.Errorf("%w: version 4 chunk index", ErrUnsupportedLayout)
		}
		if len(body) < 1+o {
			return errors.New("chunked layout truncated")
		}
		ndims := int(body[0])
		dl.BTreeAddress, _ = utils.DecodeAddress(body[1:], o)
		pos := 1 + o
		if ndims < 1 || len(body) < pos+4*ndims {
			return errors.New("chunked layout dimensions truncated")
		}
		dl.ChunkDims = make([]uint64, ndims-1)
		for i := range dl.ChunkDims {
			dl.ChunkDims[i], _ = utils.DecodeUint(body[pos:], 4)
			pos += 4
		}
		es, _ := utils.DecodeUint(body[pos:], 4)
		//nolint:gosec // G115: read from a 4-byte field
		dl.ChunkElementSize = uint32(es)

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedLayout, dl.Class)
	}
	return nil
}

// ErrUnsupportedLayout is returned for layouts this package cannot read.
var ErrUnsupportedLayout = errors.New("unsupported data layout")

// EncodeContiguousLayout encodes a version 3 contiguous layout message.
func EncodeContiguousLayout(addr, size uint64) []byte {
	buf := make([]byte, 2+8+8)
	buf[0] = 3
	buf[1] = byte(LayoutContiguous)
	utils.EncodeUint(buf[2:], addr, 8)
	utils.EncodeUint(buf[10:], size, 8)
	return buf
}

// EncodeCompactLayout encodes a version 3 compact layout message holding raw
// inline.
func EncodeCompactLayout(raw []byte) []byte {
	buf := make([]byte, 4+len(raw))
	buf[0] = 3
	buf[1] = byte(LayoutCompact)
	utils.EncodeUint(buf[2:], uint64(len(raw)), 2)
	copy(buf[4:], raw)
	return buf
}

// EncodeChunkedLayout encodes a version 3 chunked layout message indexed by
// the v1 B-tree at btreeAddr. The element size is stored as a trailing
// chunk dimension.
func EncodeChunkedLayout(btreeAddr uint64, chunkDims []uint64, elemSize uint32) []byte {
	rank := len(chunkDims) + 1
	buf := make([]byte, 3+8+4*rank)
	buf[0] = 3
	buf[1] = byte(LayoutChunked)
	//nolint:gosec // G115: dataset rank is at most 32
	buf[2] = uint8(rank)
	utils.EncodeUint(buf[3:], btreeAddr, 8)
	pos := 11
	for _, d := range chunkDims {
		utils.EncodeUint(buf[pos:], d, 4)
		pos += 4
	}
	utils.EncodeUint(buf[pos:], uint64(elemSize), 4)
	return buf
}
