package structures

import (
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/utils"
)

// GlobalHeapMinSize is the smallest collection the HDF5 library allocates;
// it reads this many bytes before looking at the stored size.
const GlobalHeapMinSize = 4096

// globalHeapObjectHeader is index(2) + reference count(2) + reserved(4) +
// size(8), for 8-byte lengths.
const globalHeapObjectHeader = 16

// GlobalHeapCollection holds the objects of one "GCOL" collection keyed by
// object index.
type GlobalHeapCollection struct {
	Address uint64
	Objects map[uint16][]byte
}

// LoadGlobalHeapCollection reads the collection at address.
//
// Format: "GCOL", version 1, reserved(3), collection size (L), then objects
// of index(2) refcount(2) reserved(4) size(L) data padded to 8 bytes. Object
// index 0 is the free space and ends the walk.
func LoadGlobalHeapCollection(r io.ReaderAt, address uint64, sb *core.Superblock) (*GlobalHeapCollection, error) {
	l := int(sb.LengthSize)
	header, err := utils.ReadAt(r, sb.Abs(address), 8+l)
	if err != nil {
		return nil, utils.WrapError("global heap header read failed", err)
	}
	if string(header[0:4]) != "GCOL" {
		return nil, errors.New("invalid global heap signature")
	}
	if header[4] != 1 {
		return nil, fmt.Errorf("unsupported global heap version: %d", header[4])
	}
	size, _ := utils.DecodeUint(header[8:], l)
	if size < uint64(8+l) {
		return nil, fmt.Errorf("global heap collection size %d too small", size)
	}

	data, err := utils.ReadAt(r, sb.Abs(address), int(size))
	if err != nil {
		return nil, utils.WrapError("global heap collection read failed", err)
	}

	coll := &GlobalHeapCollection{Address: address, Objects: make(map[uint16][]byte)}
	objHeader := 8 + l
	pos := 8 + l
	for pos+objHeader <= len(data) {
		idx, _ := utils.DecodeUint(data[pos:], 2)
		if idx == 0 {
			break
		}
		n, _ := utils.DecodeUint(data[pos+8:], l)
		start := pos + objHeader
		if uint64(start)+n > uint64(len(data)) {
			return nil, fmt.Errorf("global heap object %d overruns collection", idx)
		}
		//nolint:gosec // G115: read from a 2-byte field
		coll.Objects[uint16(idx)] = data[start : start+int(n)]
		pos = start + int((n+7)&^7)
	}
	return coll, nil
}

// Object returns the object with the given index.
func (c *GlobalHeapCollection) Object(index uint16) ([]byte, error) {
	obj, ok := c.Objects[index]
	if !ok {
		return nil, fmt.Errorf("global heap object %d not found in collection 0x%x", index, c.Address)
	}
	return obj, nil
}

// GlobalHeapWriter accumulates objects for a single collection. Indices
// start at 1.
type GlobalHeapWriter struct {
	objects [][]byte
}

// Add appends an object and returns its index.
func (g *GlobalHeapWriter) Add(data []byte) (uint16, error) {
	if len(g.objects) >= 0xFFFF {
		return 0, errors.New("global heap collection full")
	}
	g.objects = append(g.objects, data)
	//nolint:gosec // G115: bounded by the check above
	return uint16(len(g.objects)), nil
}

// Len returns the number of objects added.
func (g *GlobalHeapWriter) Len() int {
	return len(g.objects)
}

// Size returns the encoded collection size, never below GlobalHeapMinSize.
func (g *GlobalHeapWriter) Size() uint64 {
	used := uint64(16)
	for _, obj := range g.objects {
		used += globalHeapObjectHeader + alignTo8(uint64(len(obj)))
	}
	// Room for the free-space object header.
	used += globalHeapObjectHeader
	if used < GlobalHeapMinSize {
		return GlobalHeapMinSize
	}
	return used
}

// Encode serializes the collection. The trailing free-space object's size
// covers its own header, as the HDF5 library expects.
func (g *GlobalHeapWriter) Encode() []byte {
	size := g.Size()
	buf := make([]byte, size)
	copy(buf, "GCOL")
	buf[4] = 1
	utils.EncodeUint(buf[8:], size, 8)

	pos := 16
	for i, obj := range g.objects {
		utils.EncodeUint(buf[pos:], uint64(i+1), 2)
		utils.EncodeUint(buf[pos+2:], 1, 2)
		utils.EncodeUint(buf[pos+8:], uint64(len(obj)), 8)
		copy(buf[pos+globalHeapObjectHeader:], obj)
		pos += globalHeapObjectHeader + int(alignTo8(uint64(len(obj))))
	}

	// Free space: index 0, size of everything that remains.
	utils.EncodeUint(buf[pos+8:], size-uint64(pos), 8)
	return buf
}

func alignTo8(n uint64) uint64 {
	return (n + 7) &^ 7
}
