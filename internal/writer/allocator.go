package writer

import (
	"errors"
	"fmt"
	"sort"
)

// AllocatedBlock is a region of the file handed out by the Allocator.
type AllocatedBlock struct {
	Offset uint64
	Size   uint64
}

// Allocator hands out file space sequentially from the end of the file.
// Space is never reused; files are written once.
type Allocator struct {
	blocks     []AllocatedBlock
	nextOffset uint64
}

// NewAllocator creates an allocator whose first block starts at
// initialOffset, typically the superblock size.
func NewAllocator(initialOffset uint64) *Allocator {
	return &Allocator{
		blocks:     make([]AllocatedBlock, 0, 16),
		nextOffset: initialOffset,
	}
}

// Allocate reserves size bytes at the end of the file.
func (a *Allocator) Allocate(size uint64) (uint64, error) {
	if size == 0 {
		return 0, errors.New("cannot allocate zero bytes")
	}
	addr := a.nextOffset
	if addr+size < addr {
		return 0, fmt.Errorf("allocation of %d bytes at %d overflows the address space", size, addr)
	}
	a.blocks = append(a.blocks, AllocatedBlock{Offset: addr, Size: size})
	a.nextOffset = addr + size
	return addr, nil
}

// EndOfFile returns the current end-of-file address.
func (a *Allocator) EndOfFile() uint64 {
	return a.nextOffset
}

// Blocks returns a copy of all allocations sorted by offset.
func (a *Allocator) Blocks() []AllocatedBlock {
	out := make([]AllocatedBlock, len(a.blocks))
	copy(out, a.blocks)
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// ValidateNoOverlaps checks that no two allocations share a byte.
func (a *Allocator) ValidateNoOverlaps() error {
	blocks := a.Blocks()
	for i := 1; i < len(blocks); i++ {
		prev := blocks[i-1]
		if prev.Offset+prev.Size > blocks[i].Offset {
			return fmt.Errorf("blocks overlap: [%d, %d) and [%d, %d)",
				prev.Offset, prev.Offset+prev.Size, blocks[i].Offset, blocks[i].Offset+blocks[i].Size)
		}
	}
	return nil
}
