// Package structures reads and writes the HDF5 file structures that sit
// outside object headers: B-trees, symbol table nodes, local heaps and
// global heap collections.
package structures

import (
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/utils"
)

// LocalHeap holds the data segment of a local heap. Old-style groups keep
// their link names in it.
//
// Format:
//
//	"HEAP", version 0, reserved(3), data segment size (L),
//	free list head offset (L), data segment address (O)
type LocalHeap struct {
	Data []byte
}

// LoadLocalHeap reads the local heap at address.
func LoadLocalHeap(r io.ReaderAt, address uint64, sb *core.Superblock) (*LocalHeap, error) {
	o, l := int(sb.OffsetSize), int(sb.LengthSize)
	header, err := utils.ReadAt(r, sb.Abs(address), 8+2*l+o)
	if err != nil {
		return nil, utils.WrapError("local heap header read failed", err)
	}
	if string(header[0:4]) != "HEAP" {
		return nil, errors.New("invalid local heap signature")
	}
	if header[4] != 0 {
		return nil, fmt.Errorf("unsupported local heap version: %d", header[4])
	}

	size, _ := utils.DecodeUint(header[8:], l)
	dataAddr, _ := utils.DecodeAddress(header[8+2*l:], o)

	data, err := utils.ReadAt(r, sb.Abs(dataAddr), int(size))
	if err != nil {
		return nil, utils.WrapError("local heap data read failed", err)
	}
	return &LocalHeap{Data: data}, nil
}

// GetString returns the null-terminated string at offset in the data segment.
func (h *LocalHeap) GetString(offset uint64) (string, error) {
	if offset >= uint64(len(h.Data)) {
		return "", errors.New("offset beyond heap data")
	}
	end := offset
	for end < uint64(len(h.Data)) && h.Data[end] != 0 {
		end++
	}
	if end >= uint64(len(h.Data)) {
		return "", errors.New("string not null-terminated")
	}
	return string(h.Data[offset:end]), nil
}
