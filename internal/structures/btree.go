package structures

import (
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/utils"
)

// B-tree v1 node types.
const (
	BTreeTypeGroup uint8 = 0
	BTreeTypeChunk uint8 = 1
)

// ChunkBTreeK is the default half node width of chunk B-trees. A file
// without a superblock extension always uses it.
const ChunkBTreeK = 32

// maxBTreeDepth bounds recursion in malformed files.
const maxBTreeDepth = 64

// btreeNode is a decoded version 1 B-tree node: keys[i] is the left key of
// children[i], and keys has one more entry than children.
type btreeNode struct {
	nodeType uint8
	level    uint8
	keys     [][]byte
	children []uint64
}

// readBTreeNode reads a "TREE" node whose keys are keySize bytes wide.
//
// Format: "TREE", type, level, entries used (2), left sibling (O),
// right sibling (O), then key0 child0 key1 child1 ... keyN.
func readBTreeNode(r io.ReaderAt, address uint64, sb *core.Superblock, keySize int) (*btreeNode, error) {
	o := int(sb.OffsetSize)
	header, err := utils.ReadAt(r, sb.Abs(address), 8+2*o)
	if err != nil {
		return nil, utils.WrapError("B-tree node header read failed", err)
	}
	if string(header[0:4]) != "TREE" {
		return nil, fmt.Errorf("invalid B-tree signature at 0x%x", address)
	}
	used, _ := utils.DecodeUint(header[6:], 2)

	n := int(used)
	body, err := utils.ReadAt(r, sb.Abs(address)+uint64(8+2*o), (n+1)*keySize+n*o)
	if err != nil {
		return nil, utils.WrapError("B-tree node entries read failed", err)
	}

	node := &btreeNode{
		nodeType: header[4],
		level:    header[5],
		keys:     make([][]byte, n+1),
		children: make([]uint64, n),
	}
	pos := 0
	for i := 0; i < n; i++ {
		node.keys[i] = body[pos : pos+keySize]
		pos += keySize
		node.children[i], _ = utils.DecodeAddress(body[pos:], o)
		pos += o
	}
	node.keys[n] = body[pos : pos+keySize]
	return node, nil
}

// WalkGroupBTree calls fn with the address of every symbol table node
// reachable from the group B-tree at address, in key order.
func WalkGroupBTree(r io.ReaderAt, address uint64, sb *core.Superblock, fn func(snod uint64) error) error {
	return walkGroup(r, address, sb, fn, 0)
}

func walkGroup(r io.ReaderAt, address uint64, sb *core.Superblock, fn func(uint64) error, depth int) error {
	if depth > maxBTreeDepth {
		return errors.New("group B-tree too deep")
	}
	node, err := readBTreeNode(r, address, sb, int(sb.LengthSize))
	if err != nil {
		return err
	}
	if node.nodeType != BTreeTypeGroup {
		return fmt.Errorf("expected group B-tree node, got type %d", node.nodeType)
	}
	for _, child := range node.children {
		if node.level == 0 {
			err = fn(child)
		} else {
			err = walkGroup(r, child, sb, fn, depth+1)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ChunkRecord locates one stored chunk of a chunked dataset.
type ChunkRecord struct {
	// Offsets is the element offset of the chunk's first element in each
	// dataset dimension.
	Offsets    []uint64
	Size       uint32
	FilterMask uint32
	Address    uint64
}

// chunkKeySize is size(4) + filter mask(4) + one 8-byte offset per dataset
// dimension plus the trailing element-size dimension.
func chunkKeySize(rank int) int {
	return 8 + 8*(rank+1)
}

// ReadChunkIndex collects every chunk indexed by the chunk B-tree at address
// for a dataset of the given rank.
func ReadChunkIndex(r io.ReaderAt, address uint64, sb *core.Superblock, rank int) ([]ChunkRecord, error) {
	var out []ChunkRecord
	if address == utils.UndefinedAddress {
		return out, nil
	}
	err := walkChunks(r, address, sb, rank, 0, func(rec ChunkRecord) {
		out = append(out, rec)
	})
	return out, err
}

func walkChunks(r io.ReaderAt, address uint64, sb *core.Superblock, rank, depth int, fn func(ChunkRecord)) error {
	if depth > maxBTreeDepth {
		return errors.New("chunk B-tree too deep")
	}
	node, err := readBTreeNode(r, address, sb, chunkKeySize(rank))
	if err != nil {
		return err
	}
	if node.nodeType != BTreeTypeChunk {
		return fmt.Errorf("expected chunk B-tree node, got type %d", node.nodeType)
	}
	for i, child := range node.children {
		if node.level > 0 {
			if err := walkChunks(r, child, sb, rank, depth+1, fn); err != nil {
				return err
			}
			continue
		}
		key := node.keys[i]
		size, _ := utils.DecodeUint(key, 4)
		mask, _ := utils.DecodeUint(key[4:], 4)
		rec := ChunkRecord{
			//nolint:gosec // G115: read from a 4-byte field
			Size: uint32(size),
			//nolint:gosec // G115: read from a 4-byte field
			FilterMask: uint32(mask),
			Address:    child,
			Offsets:    make([]uint64, rank),
		}
		for d := range rec.Offsets {
			rec.Offsets[d], _ = utils.DecodeUint(key[8+8*d:], 8)
		}
		fn(rec)
	}
	return nil
}

// Allocator reserves file space.
type Allocator interface {
	Allocate(size uint64) (uint64, error)
}

// WriteChunkIndex writes a chunk B-tree over records, which must be sorted
// in row-major chunk order, and returns the root address. Nodes are
// allocated at full width (2K entries) so the HDF5 library can read them
// with its default node size.
func WriteChunkIndex(w io.WriterAt, alloc Allocator, records []ChunkRecord, chunkDims []uint64) (uint64, error) {
	if len(records) == 0 {
		return utils.UndefinedAddress, nil
	}
	rank := len(chunkDims)

	type entry struct {
		key   []byte
		child uint64
	}
	level := make([]entry, len(records))
	for i, rec := range records {
		level[i] = entry{key: encodeChunkKey(rec.Size, rec.FilterMask, rec.Offsets), child: rec.Address}
	}

	// The right key of the last chunk points one chunk past it.
	last := records[len(records)-1]
	end := make([]uint64, rank)
	for d := range end {
		end[d] = last.Offsets[d] + chunkDims[d]
	}
	rightKey := encodeChunkKey(0, 0, end)

	for depth := uint8(0); ; depth++ {
		var parents []entry
		for start := 0; start < len(level); start += 2 * ChunkBTreeK {
			stop := min(start+2*ChunkBTreeK, len(level))
			right := rightKey
			if stop < len(level) {
				right = level[stop].key
			}

			keys := make([][]byte, 0, stop-start+1)
			children := make([]uint64, 0, stop-start)
			for _, e := range level[start:stop] {
				keys = append(keys, e.key)
				children = append(children, e.child)
			}
			keys = append(keys, right)

			addr, err := writeBTreeNode(w, alloc, BTreeTypeChunk, depth, keys, children, chunkKeySize(rank))
			if err != nil {
				return 0, err
			}
			parents = append(parents, entry{key: level[start].key, child: addr})
		}
		if len(parents) == 1 {
			return parents[0].child, nil
		}
		level = parents
	}
}

func encodeChunkKey(size, mask uint32, offsets []uint64) []byte {
	key := make([]byte, chunkKeySize(len(offsets)))
	utils.EncodeUint(key, uint64(size), 4)
	utils.EncodeUint(key[4:], uint64(mask), 4)
	for d, off := range offsets {
		utils.EncodeUint(key[8+8*d:], off, 8)
	}
	// The trailing element-size offset is always zero.
	return key
}

func writeBTreeNode(w io.WriterAt, alloc Allocator, nodeType, level uint8, keys [][]byte, children []uint64, keySize int) (uint64, error) {
	const o = 8
	nodeSize := 8 + 2*o + (2*ChunkBTreeK+1)*keySize + 2*ChunkBTreeK*o
	buf := make([]byte, nodeSize)
	copy(buf, "TREE")
	buf[4] = nodeType
	buf[5] = level
	utils.EncodeUint(buf[6:], uint64(len(children)), 2)
	utils.EncodeUint(buf[8:], utils.UndefinedAddress, o)
	utils.EncodeUint(buf[8+o:], utils.UndefinedAddress, o)

	pos := 8 + 2*o
	for i, child := range children {
		pos += copy(buf[pos:], keys[i])
		utils.EncodeUint(buf[pos:], child, o)
		pos += o
	}
	copy(buf[pos:], keys[len(children)])

	//nolint:gosec // G115: nodeSize is a small positive constant expression
	addr, err := alloc.Allocate(uint64(nodeSize))
	if err != nil {
		return 0, err
	}
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.WriterAt interface
	if _, err := w.WriteAt(buf, int64(addr)); err != nil {
		return 0, utils.WrapError("B-tree node write failed", err)
	}
	return addr, nil
}
