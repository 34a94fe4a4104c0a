package hdf5

import (
	"errors"
	"fmt"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/structures"
	"github.com/scigolib/dsconv/internal/utils"
)

// Dataset is an HDF5 dataset opened for reading.
type Dataset struct {
	object
	space   *core.Dataspace
	dtype   *core.Datatype
	layout  *core.DataLayout
	filters *core.FilterPipeline
}

func (f *File) openDataset(path string, addr uint64) (*Dataset, error) {
	oh, err := f.readHeader(addr)
	if err != nil {
		return nil, err
	}
	if oh.Type() != core.ObjectTypeDataset {
		return nil, fmt.Errorf("%s is a group, not a dataset: %w", path, ErrTypeMismatch)
	}

	d := &Dataset{object: object{file: f, path: path, header: oh}}
	if err := d.parseMessages(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func (d *Dataset) parseMessages() error {
	sb := d.file.sb

	msg := d.header.Find(core.MsgDataspace)
	if msg == nil {
		return errors.New("missing dataspace message")
	}
	space, err := core.ParseDataspace(msg.Data, sb)
	if err != nil {
		return err
	}

	if msg = d.header.Find(core.MsgDatatype); msg == nil {
		return errors.New("missing datatype message")
	}
	dtype, _, err := core.ParseDatatype(msg.Data)
	if err != nil {
		return err
	}

	layout, err := core.ParseDataLayout(d.header.Find(core.MsgDataLayout).Data, sb)
	if err != nil {
		return err
	}

	if msg = d.header.Find(core.MsgFilterPipeline); msg != nil {
		if d.filters, err = core.ParseFilterPipeline(msg.Data); err != nil {
			return err
		}
	}

	d.space, d.dtype, d.layout = space, dtype, layout
	return nil
}

// Shape returns the current dimensions. A scalar dataset has no dimensions.
func (d *Dataset) Shape() []uint64 {
	return d.space.Dims
}

// Datatype returns the element type.
func (d *Dataset) Datatype() *core.Datatype {
	return d.dtype
}

// Layout returns the storage layout class.
func (d *Dataset) Layout() core.LayoutClass {
	return d.layout.Class
}

// ReadRaw returns the dataset's elements as stored, in row-major order.
// Unallocated storage reads as zeros, the default fill value.
func (d *Dataset) ReadRaw() ([]byte, error) {
	count, err := d.space.ElementCount()
	if err != nil {
		return nil, err
	}
	size, err := utils.SafeMultiply(count, uint64(d.dtype.Size))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	if d.file.osFile == nil {
		return nil, ErrClosed
	}

	switch d.layout.Class {
	case core.LayoutCompact:
		if uint64(len(d.layout.CompactData)) < size {
			return nil, fmt.Errorf("%s: compact data holds %d bytes, need %d", d.path, len(d.layout.CompactData), size)
		}
		return d.layout.CompactData[:size], nil

	case core.LayoutContiguous:
		if d.layout.Address == utils.UndefinedAddress {
			return make([]byte, size), nil
		}
		buf, err := utils.ReadAt(d.file.osFile, d.file.sb.Abs(d.layout.Address), int(size))
		if err != nil {
			return nil, utils.WrapError(d.path+": contiguous data", err)
		}
		return buf, nil

	case core.LayoutChunked:
		return d.readChunked(size)
	}
	return nil, fmt.Errorf("%s: %w: %s layout", d.path, ErrUnsupported, d.layout.Class)
}

func (d *Dataset) readChunked(size uint64) ([]byte, error) {
	rank := len(d.space.Dims)
	if len(d.layout.ChunkDims) != rank {
		return nil, fmt.Errorf("%s: chunk rank %d does not match dataset rank %d", d.path, len(d.layout.ChunkDims), rank)
	}

	records, err := structures.ReadChunkIndex(d.file.osFile, d.layout.BTreeAddress, d.file.sb, rank)
	if err != nil {
		return nil, utils.WrapError(d.path+": chunk index", err)
	}

	out := make([]byte, size)
	elem := int(d.dtype.Size)
	chunkBytes := elem
	for _, c := range d.layout.ChunkDims {
		chunkBytes *= int(c)
	}

	for _, rec := range records {
		if err := d.readChunk(out, rec, chunkBytes, elem); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// readChunk reads one stored chunk into a pooled buffer, reverses its
// filters and copies it into place in out.
func (d *Dataset) readChunk(out []byte, rec structures.ChunkRecord, chunkBytes, elem int) error {
	stored, err := utils.ReadPooled(d.file.osFile, d.file.sb.Abs(rec.Address), int(rec.Size))
	if err != nil {
		return utils.WrapError(d.path+": chunk", err)
	}
	defer utils.ReleaseBuffer(stored)

	data := stored
	if d.filters != nil {
		if data, err = d.filters.Decode(stored, rec.FilterMask); err != nil {
			return fmt.Errorf("%s: chunk at %v: %w", d.path, rec.Offsets, err)
		}
	}
	if len(data) < chunkBytes {
		return fmt.Errorf("%s: chunk at %v holds %d bytes, need %d", d.path, rec.Offsets, len(data), chunkBytes)
	}
	copyChunk(out, data, d.space.Dims, d.layout.ChunkDims, rec.Offsets, elem)
	return nil
}

// ReadFloat64s reads a numeric dataset converted to float64.
func (d *Dataset) ReadFloat64s() ([]float64, error) {
	raw, err := d.ReadRaw()
	if err != nil {
		return nil, err
	}
	count, _ := d.space.ElementCount()

	switch {
	case d.dtype.Class == core.ClassFloat:
		return decodeFloats(d.dtype, raw, int(count))
	case d.dtype.Class == core.ClassFixedPoint && d.dtype.Signed:
		ints, err := decodeInts(d.dtype, raw, int(count))
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(ints))
		for i, v := range ints {
			out[i] = float64(v)
		}
		return out, nil
	case d.dtype.Class == core.ClassFixedPoint:
		uints, err := decodeUints(d.dtype, raw, int(count))
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(uints))
		for i, v := range uints {
			out[i] = float64(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s holds %s, not numbers: %w", d.path, d.dtype, ErrTypeMismatch)
}

// ReadInt64s reads a signed integer dataset exactly.
func (d *Dataset) ReadInt64s() ([]int64, error) {
	if d.dtype.Class != core.ClassFixedPoint || !d.dtype.Signed {
		return nil, fmt.Errorf("%s holds %s, not signed integers: %w", d.path, d.dtype, ErrTypeMismatch)
	}
	raw, err := d.ReadRaw()
	if err != nil {
		return nil, err
	}
	count, _ := d.space.ElementCount()
	return decodeInts(d.dtype, raw, int(count))
}

// ReadUint64s reads an unsigned integer dataset exactly.
func (d *Dataset) ReadUint64s() ([]uint64, error) {
	if d.dtype.Class != core.ClassFixedPoint || d.dtype.Signed {
		return nil, fmt.Errorf("%s holds %s, not unsigned integers: %w", d.path, d.dtype, ErrTypeMismatch)
	}
	raw, err := d.ReadRaw()
	if err != nil {
		return nil, err
	}
	count, _ := d.space.ElementCount()
	return decodeUints(d.dtype, raw, int(count))
}

// Read decodes the dataset the same way attributes are decoded.
func (d *Dataset) Read() (interface{}, error) {
	raw, err := d.ReadRaw()
	if err != nil {
		return nil, err
	}
	v, err := d.file.decode(d.dtype, d.space, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	return v, nil
}
