package hdf5

import (
	"errors"
	"fmt"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/structures"
	"github.com/scigolib/dsconv/internal/utils"
	"github.com/scigolib/dsconv/internal/writer"
)

// CreateMode specifies what Create does when the file already exists.
type CreateMode = writer.CreateMode

const (
	// CreateTruncate overwrites an existing file.
	CreateTruncate = writer.ModeTruncate

	// CreateExclusive fails if the file exists.
	CreateExclusive = writer.ModeExclusive
)

// Writer builds a new HDF5 file. Dataset values are written as they are
// created; object headers, attributes and the superblock are written by
// Close.
//
// Thread-safety: Not thread-safe.
type Writer struct {
	fw   *writer.FileWriter
	path string
	root *GroupWriter
	heap *structures.GlobalHeapWriter

	// deferred holds dataset values that reference the global heap and are
	// written once its address is known.
	deferred []deferredData
}

type deferredData struct {
	enc  *encoded
	addr uint64
}

// Create creates the file at path. The superblock is written last, so a
// file that was never closed is not a valid HDF5 file.
func Create(path string, mode CreateMode) (*Writer, error) {
	fw, err := writer.NewFileWriter(path, mode, core.SuperblockV2Size)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		fw:   fw,
		path: path,
		heap: &structures.GlobalHeapWriter{},
	}
	w.root = &GroupWriter{w: w, path: "/", attrs: attrSet{path: "/"}}
	return w, nil
}

// Root returns the root group.
func (w *Writer) Root() *GroupWriter {
	return w.root
}

// Close serializes the tree, writes the superblock and closes the file.
// The file handle is released even when serialization fails.
func (w *Writer) Close() error {
	if w.fw == nil {
		return nil
	}
	err := w.finish()
	if cerr := w.fw.Close(); err == nil && cerr != nil {
		err = utils.WrapError(w.path+": close", cerr)
	}
	w.fw = nil
	return err
}

func (w *Writer) finish() error {
	if w.heap.Len() > 0 {
		heapAddr, err := w.fw.AllocateAndWrite(w.heap.Encode())
		if err != nil {
			return utils.WrapError("global heap write", err)
		}
		w.root.patchHeap(heapAddr)
		for _, d := range w.deferred {
			d.enc.patchHeap(heapAddr)
			if err := w.fw.WriteAtAddress(d.enc.raw, d.addr); err != nil {
				return utils.WrapError("string data write", err)
			}
		}
	}

	rootAddr, err := w.root.serialize()
	if err != nil {
		return err
	}

	sb := core.EncodeSuperblockV2(rootAddr, w.fw.EndOfFile())
	if err := w.fw.WriteAtAddress(sb, 0); err != nil {
		return utils.WrapError("superblock write", err)
	}
	if err := w.fw.Allocator().ValidateNoOverlaps(); err != nil {
		return err
	}
	return w.fw.Flush()
}

// pendingAttr is an attribute encoded at write time and serialized into
// its object's header on Close.
type pendingAttr struct {
	name string
	enc  *encoded
}

type attrSet struct {
	path  string
	attrs []pendingAttr
}

func (s *attrSet) add(w *Writer, name string, v interface{}) error {
	if w.fw == nil {
		return ErrClosed
	}
	for _, a := range s.attrs {
		if a.name == name {
			return fmt.Errorf("attribute %s@%s: %w", s.path, name, ErrExists)
		}
	}
	enc, err := encodeValue(v, w.heap)
	if err != nil {
		return fmt.Errorf("attribute %s@%s: %w", s.path, name, err)
	}
	s.attrs = append(s.attrs, pendingAttr{name: name, enc: enc})
	return nil
}

func (s *attrSet) messages() ([]*core.HeaderMessage, error) {
	msgs := make([]*core.HeaderMessage, 0, len(s.attrs))
	for _, a := range s.attrs {
		data, err := core.EncodeAttributeMessage(a.name, a.enc.dtype, a.enc.dims, a.enc.raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %s@%s: %w", s.path, a.name, err)
		}
		msgs = append(msgs, &core.HeaderMessage{Type: core.MsgAttribute, Data: data})
	}
	return msgs, nil
}

func (s *attrSet) patchHeap(addr uint64) {
	for _, a := range s.attrs {
		a.enc.patchHeap(addr)
	}
}

// member is a group or dataset that serializes to an object header.
type member interface {
	serialize() (uint64, error)
	patchHeap(addr uint64)
}

type namedMember struct {
	name string
	m    member
}

// GroupWriter is a group being built.
type GroupWriter struct {
	w       *Writer
	path    string
	attrs   attrSet
	members []namedMember
}

// Path returns the absolute path of the group.
func (g *GroupWriter) Path() string {
	return g.path
}

// WriteAttribute attaches an attribute. Supported values are float64,
// float32, int, int64, string, FixedString, bool and slices of those.
func (g *GroupWriter) WriteAttribute(name string, v interface{}) error {
	return g.attrs.add(g.w, name, v)
}

func (g *GroupWriter) claim(name string) error {
	if g.w.fw == nil {
		return ErrClosed
	}
	if name == "" || name == "." {
		return fmt.Errorf("invalid member name %q in %s", name, g.path)
	}
	for _, m := range g.members {
		if m.name == name {
			return fmt.Errorf("%s: %w", joinPath(g.path, name), ErrExists)
		}
	}
	return nil
}

// CreateGroup adds a child group.
func (g *GroupWriter) CreateGroup(name string) (*GroupWriter, error) {
	if err := g.claim(name); err != nil {
		return nil, err
	}
	path := joinPath(g.path, name)
	child := &GroupWriter{w: g.w, path: path, attrs: attrSet{path: path}}
	g.members = append(g.members, namedMember{name: name, m: child})
	return child, nil
}

func (g *GroupWriter) patchHeap(addr uint64) {
	g.attrs.patchHeap(addr)
	for _, m := range g.members {
		m.m.patchHeap(addr)
	}
}

// serialize writes the members' headers, then the group's own, and returns
// the group header address.
func (g *GroupWriter) serialize() (uint64, error) {
	msgs := []*core.HeaderMessage{
		{Type: core.MsgLinkInfo, Data: core.EncodeLinkInfo()},
		{Type: core.MsgGroupInfo, Data: core.EncodeGroupInfo()},
	}
	for _, m := range g.members {
		addr, err := m.m.serialize()
		if err != nil {
			return 0, err
		}
		data, err := core.EncodeHardLink(m.name, addr)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", joinPath(g.path, m.name), err)
		}
		msgs = append(msgs, &core.HeaderMessage{Type: core.MsgLink, Data: data})
	}

	attrMsgs, err := g.attrs.messages()
	if err != nil {
		return 0, err
	}
	return writeHeader(g.w, g.path, append(msgs, attrMsgs...))
}

func writeHeader(w *Writer, path string, msgs []*core.HeaderMessage) (uint64, error) {
	header, err := core.EncodeObjectHeaderV2(msgs)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	addr, err := w.fw.AllocateAndWrite(header)
	if err != nil {
		return 0, utils.WrapError(path+": object header write", err)
	}
	return addr, nil
}

// DatasetOption configures CreateDataset.
type DatasetOption func(*datasetConfig)

type datasetConfig struct {
	shape   []uint64
	chunks  []uint64
	deflate int
	shuffle bool
}

// WithShape stores a flat slice as a multi-dimensional array. The product
// of dims must equal the slice length.
func WithShape(dims ...uint64) DatasetOption {
	return func(c *datasetConfig) {
		c.shape = dims
	}
}

// WithChunks stores the dataset in chunks of the given dimensions.
func WithChunks(dims ...uint64) DatasetOption {
	return func(c *datasetConfig) {
		c.chunks = dims
	}
}

// WithDeflate compresses chunks with zlib at level 1-9. Requires WithChunks.
func WithDeflate(level int) DatasetOption {
	return func(c *datasetConfig) {
		c.deflate = level
	}
}

// WithShuffle byte-shuffles chunks before compression. Requires WithChunks.
func WithShuffle() DatasetOption {
	return func(c *datasetConfig) {
		c.shuffle = true
	}
}

// DatasetWriter is a dataset being built.
type DatasetWriter struct {
	w     *Writer
	path  string
	msgs  []*core.HeaderMessage
	attrs attrSet
}

// Path returns the absolute path of the dataset.
func (d *DatasetWriter) Path() string {
	return d.path
}

// WriteAttribute attaches an attribute, see GroupWriter.WriteAttribute.
func (d *DatasetWriter) WriteAttribute(name string, v interface{}) error {
	return d.attrs.add(d.w, name, v)
}

func (d *DatasetWriter) patchHeap(addr uint64) {
	d.attrs.patchHeap(addr)
}

func (d *DatasetWriter) serialize() (uint64, error) {
	attrMsgs, err := d.attrs.messages()
	if err != nil {
		return 0, err
	}
	msgs := make([]*core.HeaderMessage, 0, len(d.msgs)+len(attrMsgs))
	msgs = append(msgs, d.msgs...)
	return writeHeader(d.w, d.path, append(msgs, attrMsgs...))
}

// CreateDataset adds a dataset holding data, which may be any value
// WriteAttribute accepts. Numeric data is written immediately.
func (g *GroupWriter) CreateDataset(name string, data interface{}, opts ...DatasetOption) (*DatasetWriter, error) {
	if err := g.claim(name); err != nil {
		return nil, err
	}
	path := joinPath(g.path, name)

	cfg := &datasetConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	enc, err := encodeValue(data, g.w.heap)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.shape != nil {
		if err := reshape(enc, cfg.shape); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	dtype, err := enc.dtype.Encode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	d := &DatasetWriter{w: g.w, path: path, attrs: attrSet{path: path}}
	d.msgs = []*core.HeaderMessage{
		{Type: core.MsgDataspace, Data: core.EncodeDataspace(enc.dims)},
		{Type: core.MsgDatatype, Flags: core.MsgFlagConstant, Data: dtype},
		{Type: core.MsgFillValue, Flags: core.MsgFlagConstant, Data: core.EncodeFillValue()},
	}

	var layout []byte
	if cfg.chunks != nil {
		if len(enc.heapRefs) > 0 {
			return nil, fmt.Errorf("%s: chunked string data: %w", path, ErrUnsupported)
		}
		var pipeline []byte
		layout, pipeline, err = g.w.writeChunked(enc, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if pipeline != nil {
			d.msgs = append(d.msgs, &core.HeaderMessage{Type: core.MsgFilterPipeline, Data: pipeline})
		}
	} else {
		if cfg.deflate != 0 || cfg.shuffle {
			return nil, fmt.Errorf("%s: filters require chunked storage", path)
		}
		if layout, err = g.w.writeContiguous(enc); err != nil {
			return nil, utils.WrapError(path+": data write", err)
		}
	}
	d.msgs = append(d.msgs, &core.HeaderMessage{Type: core.MsgDataLayout, Data: layout})

	g.members = append(g.members, namedMember{name: name, m: d})
	return d, nil
}

func reshape(enc *encoded, shape []uint64) error {
	want, err := utils.ElementCount(shape)
	if err != nil {
		return err
	}
	have := uint64(1)
	if enc.dims != nil {
		have = enc.dims[0]
	}
	if want != have {
		return fmt.Errorf("shape %v holds %d elements, data has %d", shape, want, have)
	}
	enc.dims = shape
	return nil
}

// writeContiguous allocates the data block and writes it, or defers the
// write when the data references the global heap.
func (w *Writer) writeContiguous(enc *encoded) ([]byte, error) {
	size := uint64(len(enc.raw))
	if size == 0 {
		return core.EncodeContiguousLayout(utils.UndefinedAddress, 0), nil
	}
	addr, err := w.fw.Allocate(size)
	if err != nil {
		return nil, err
	}
	if len(enc.heapRefs) > 0 {
		w.deferred = append(w.deferred, deferredData{enc: enc, addr: addr})
	} else if err := w.fw.WriteAtAddress(enc.raw, addr); err != nil {
		return nil, err
	}
	return core.EncodeContiguousLayout(addr, size), nil
}

// writeChunked splits the data into chunks, filters and writes each one,
// then writes the chunk index. It returns the layout message and, when
// filters are configured, the filter pipeline message.
func (w *Writer) writeChunked(enc *encoded, cfg *datasetConfig) ([]byte, []byte, error) {
	dims, chunks := enc.dims, cfg.chunks
	if len(dims) == 0 {
		return nil, nil, errors.New("scalar datasets cannot be chunked")
	}
	if len(chunks) != len(dims) {
		return nil, nil, fmt.Errorf("chunk rank %d does not match dataset rank %d", len(chunks), len(dims))
	}
	for i, c := range chunks {
		if c == 0 || c > 0xFFFFFFFF {
			return nil, nil, fmt.Errorf("invalid chunk dimension %d at axis %d", c, i)
		}
	}

	var filters []writer.Filter
	if cfg.shuffle {
		filters = append(filters, writer.NewShuffleFilter(enc.dtype.Size))
	}
	if cfg.deflate != 0 {
		filters = append(filters, writer.NewDeflateFilter(cfg.deflate))
	}
	pipeline := writer.NewFilterPipeline(filters...)

	elem := int(enc.dtype.Size)
	var records []structures.ChunkRecord
	offsets := make([]uint64, len(dims))
	empty := false
	for _, d := range dims {
		empty = empty || d == 0
	}
	for !empty {
		chunk := extractChunk(enc.raw, dims, chunks, offsets, elem)
		stored, err := pipeline.Apply(chunk)
		if err != nil {
			return nil, nil, err
		}
		addr, err := w.fw.AllocateAndWrite(stored)
		if err != nil {
			return nil, nil, utils.WrapError("chunk write", err)
		}
		//nolint:gosec // G115: a chunk is bounded by 32-bit dimensions
		size := uint32(len(stored))
		records = append(records, structures.ChunkRecord{
			Offsets: append([]uint64(nil), offsets...),
			Size:    size,
			Address: addr,
		})

		// Advance to the next chunk in row-major order.
		i := len(dims) - 1
		for ; i >= 0; i-- {
			offsets[i] += chunks[i]
			if offsets[i] < dims[i] {
				break
			}
			offsets[i] = 0
		}
		empty = i < 0
	}

	root, err := structures.WriteChunkIndex(w.fw, w.fw.Allocator(), records, chunks)
	if err != nil {
		return nil, nil, utils.WrapError("chunk index write", err)
	}

	layout := core.EncodeChunkedLayout(root, chunks, enc.dtype.Size)
	if pipeline.IsEmpty() {
		return layout, nil, nil
	}
	return layout, pipeline.EncodePipelineMessage(), nil
}
