package structures

import (
	"fmt"
	"io"

	"github.com/scigolib/dsconv/internal/core"
	"github.com/scigolib/dsconv/internal/utils"
)

// SymbolTableEntry is one entry of a symbol table node. The scratch pad is
// not decoded; object headers are always read directly.
type SymbolTableEntry struct {
	LinkNameOffset uint64
	ObjectAddress  uint64
	CacheType      uint32
}

// ParseSymbolTableNode parses a symbol table node ("SNOD").
//
// Format: "SNOD", version 1, reserved, symbol count (2), then entries of
// name offset (O), header address (O), cache type (4), reserved (4) and
// scratch pad (16).
func ParseSymbolTableNode(r io.ReaderAt, address uint64, sb *core.Superblock) ([]SymbolTableEntry, error) {
	header, err := utils.ReadAt(r, sb.Abs(address), 8)
	if err != nil {
		return nil, utils.WrapError("SNOD header read failed", err)
	}
	if sig := string(header[0:4]); sig != "SNOD" {
		return nil, fmt.Errorf("invalid SNOD signature: %q", sig)
	}
	if header[4] != 1 {
		return nil, fmt.Errorf("unsupported SNOD version: %d", header[4])
	}
	count, _ := utils.DecodeUint(header[6:], 2)

	o := int(sb.OffsetSize)
	entrySize := 2*o + 4 + 4 + 16
	data, err := utils.ReadAt(r, sb.Abs(address)+8, int(count)*entrySize)
	if err != nil {
		return nil, utils.WrapError("SNOD entries read failed", err)
	}

	entries := make([]SymbolTableEntry, count)
	for i := range entries {
		pos := i * entrySize
		entries[i].LinkNameOffset, _ = utils.DecodeUint(data[pos:], o)
		entries[i].ObjectAddress, _ = utils.DecodeAddress(data[pos+o:], o)
		ct, _ := utils.DecodeUint(data[pos+2*o:], 4)
		//nolint:gosec // G115: read from a 4-byte field
		entries[i].CacheType = uint32(ct)
	}
	return entries, nil
}
