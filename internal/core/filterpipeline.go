package core

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/dsconv/internal/utils"
)

// FilterID identifies a filter in the pipeline.
type FilterID uint16

// Predefined filters.
const (
	FilterDeflate     FilterID = 1
	FilterShuffle     FilterID = 2
	FilterFletcher32  FilterID = 3
	FilterSZIP        FilterID = 4
	FilterNBit        FilterID = 5
	FilterScaleOffset FilterID = 6
)

// Filter is one entry of a filter pipeline message.
type Filter struct {
	ID         FilterID
	Name       string
	Flags      uint16
	ClientData []uint32
}

// FilterPipeline is the ordered list of filters applied when writing chunks.
type FilterPipeline struct {
	Version uint8
	Filters []Filter
}

// ParseFilterPipeline decodes filter pipeline messages, versions 1 and 2.
func ParseFilterPipeline(data []byte) (*FilterPipeline, error) {
	if len(data) < 2 {
		return nil, errors.New("filter pipeline message too short")
	}
	fp := &FilterPipeline{Version: data[0]}
	n := int(data[1])

	pos := 2
	switch fp.Version {
	case 1:
		pos = 8
	case 2:
	default:
		return nil, fmt.Errorf("unsupported filter pipeline version: %d", fp.Version)
	}

	u16 := func() (uint16, error) {
		if pos+2 > len(data) {
			return 0, errors.New("filter pipeline truncated")
		}
		v, _ := utils.DecodeUint(data[pos:], 2)
		pos += 2
		//nolint:gosec // G115: read from a 2-byte field
		return uint16(v), nil
	}

	for i := 0; i < n; i++ {
		id, err := u16()
		if err != nil {
			return nil, err
		}
		f := Filter{ID: FilterID(id)}

		var nameLen uint16
		if fp.Version == 1 || id >= 256 {
			if nameLen, err = u16(); err != nil {
				return nil, err
			}
		}
		if f.Flags, err = u16(); err != nil {
			return nil, err
		}
		nvalues, err := u16()
		if err != nil {
			return nil, err
		}

		if nameLen > 0 {
			size := int(nameLen)
			if fp.Version == 1 {
				size = align8(size)
			}
			if pos+size > len(data) {
				return nil, errors.New("filter name truncated")
			}
			f.Name = string(bytes.TrimRight(data[pos:pos+int(nameLen)], "\x00"))
			pos += size
		}

		if pos+4*int(nvalues) > len(data) {
			return nil, errors.New("filter client data truncated")
		}
		f.ClientData = make([]uint32, nvalues)
		for j := range f.ClientData {
			v, _ := utils.DecodeUint(data[pos:], 4)
			//nolint:gosec // G115: read from a 4-byte field
			f.ClientData[j] = uint32(v)
			pos += 4
		}
		if fp.Version == 1 && nvalues%2 == 1 {
			pos += 4
		}

		fp.Filters = append(fp.Filters, f)
	}
	return fp, nil
}

// Decode reverses the pipeline on one chunk. Filters run in reverse order;
// a set bit i in mask means filter i was skipped for this chunk.
func (fp *FilterPipeline) Decode(chunk []byte, mask uint32) ([]byte, error) {
	data := chunk
	for i := len(fp.Filters) - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			continue
		}
		f := fp.Filters[i]
		var err error
		switch f.ID {
		case FilterDeflate:
			data, err = inflate(data)
		case FilterShuffle:
			data, err = unshuffle(data, f.ClientData)
		case FilterFletcher32:
			if len(data) < 4 {
				return nil, errors.New("chunk too short for fletcher32 checksum")
			}
			data = data[:len(data)-4]
		default:
			err = fmt.Errorf("unsupported filter %d (%s)", f.ID, f.Name)
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// inflate decompresses zlib-framed deflate data.
func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib reader creation failed: %w", err)
	}
	defer func() { _ = zr.Close() }()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("zlib decompression failed: %w", err)
	}
	return out, nil
}

// unshuffle turns [all byte0][all byte1]... back into interleaved elements.
// A trailing remainder shorter than one element is left in place.
func unshuffle(data []byte, clientData []uint32) ([]byte, error) {
	if len(clientData) == 0 {
		return nil, errors.New("shuffle filter missing element size")
	}
	size := int(clientData[0])
	if size <= 1 {
		return data, nil
	}

	n := len(data) / size
	out := make([]byte, len(data))
	for b := 0; b < size; b++ {
		for e := 0; e < n; e++ {
			out[e*size+b] = data[b*n+e]
		}
	}
	copy(out[n*size:], data[n*size:])
	return out, nil
}
