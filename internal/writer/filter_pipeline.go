package writer

import (
	"bytes"
	"compress/zlib"
	"fmt"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/utils"
)

// Filter transforms chunk data before it is stored.
type Filter interface {
	ID() core.FilterID
	Apply(data []byte) ([]byte, error)
	// Encode returns the filter flags and client data stored in the
	// pipeline message.
	Encode() (flags uint16, clientData []uint32)
}

// FilterPipeline applies filters in order when writing chunks.
type FilterPipeline struct {
	filters []Filter
}

// NewFilterPipeline creates a pipeline of the given filters.
func NewFilterPipeline(filters ...Filter) *FilterPipeline {
	return &FilterPipeline{filters: filters}
}

// IsEmpty reports whether the pipeline has no filters.
func (fp *FilterPipeline) IsEmpty() bool {
	return len(fp.filters) == 0
}

// Apply runs every filter over data in order.
func (fp *FilterPipeline) Apply(data []byte) ([]byte, error) {
	out := data
	for _, f := range fp.filters {
		var err error
		if out, err = f.Apply(out); err != nil {
			return nil, fmt.Errorf("filter %d failed: %w", f.ID(), err)
		}
	}
	return out, nil
}

// EncodePipelineMessage encodes a version 2 filter pipeline message.
// Predefined filters store no name.
func (fp *FilterPipeline) EncodePipelineMessage() []byte {
	//nolint:gosec // G115: a pipeline holds at most a handful of filters
	buf := []byte{2, uint8(len(fp.filters))}
	for _, f := range fp.filters {
		flags, cd := f.Encode()
		entry := make([]byte, 6+4*len(cd))
		utils.EncodeUint(entry, uint64(f.ID()), 2)
		utils.EncodeUint(entry[2:], uint64(flags), 2)
		utils.EncodeUint(entry[4:], uint64(len(cd)), 2)
		for i, v := range cd {
			utils.EncodeUint(entry[6+4*i:], uint64(v), 4)
		}
		buf = append(buf, entry...)
	}
	return buf
}

// filterOptional marks a filter the library may skip for a chunk.
const filterOptional = 0x0001

// DeflateFilter compresses chunks with zlib-framed deflate.
type DeflateFilter struct {
	level int
}

// NewDeflateFilter creates a deflate filter. Levels outside 1-9 become 6.
func NewDeflateFilter(level int) *DeflateFilter {
	if level < 1 || level > 9 {
		level = 6
	}
	return &DeflateFilter{level: level}
}

// ID implements Filter.
func (f *DeflateFilter) ID() core.FilterID { return core.FilterDeflate }

// Apply implements Filter.
func (f *DeflateFilter) Apply(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, f.level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer creation failed: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("zlib compression failed: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib close failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode implements Filter.
func (f *DeflateFilter) Encode() (uint16, []uint32) {
	//nolint:gosec // G115: level is 1-9
	return filterOptional, []uint32{uint32(f.level)}
}

// ShuffleFilter groups the n-th byte of every element together, which makes
// floating-point data compress better.
type ShuffleFilter struct {
	elementSize uint32
}

// NewShuffleFilter creates a shuffle filter for elements of elementSize
// bytes.
func NewShuffleFilter(elementSize uint32) *ShuffleFilter {
	return &ShuffleFilter{elementSize: elementSize}
}

// ID implements Filter.
func (f *ShuffleFilter) ID() core.FilterID { return core.FilterShuffle }

// Apply implements Filter.
func (f *ShuffleFilter) Apply(data []byte) ([]byte, error) {
	size := int(f.elementSize)
	if size <= 1 {
		return data, nil
	}
	n := len(data) / size
	out := make([]byte, len(data))
	for e := 0; e < n; e++ {
		for b := 0; b < size; b++ {
			out[b*n+e] = data[e*size+b]
		}
	}
	copy(out[n*size:], data[n*size:])
	return out, nil
}

// Encode implements Filter.
func (f *ShuffleFilter) Encode() (uint16, []uint32) {
	return filterOptional, []uint32{f.elementSize}
}
