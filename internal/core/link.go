package core

import (
	"errors"
	"fmt"

	"github.com/scigolib/dsconv/internal/utils"
)

// LinkType distinguishes hard, soft and external links.
type LinkType uint8

// Link types.
const (
	LinkHard     LinkType = 0
	LinkSoft     LinkType = 1
	LinkExternal LinkType = 64
)

// LinkMessage is a decoded link message.
type LinkMessage struct {
	Name     string
	Type     LinkType
	Address  uint64
	SoftPath string
}

// ParseLinkMessage decodes a version 1 link message.
//
// Flags: bits 0-1 width of the name length, bit 2 creation order present,
// bit 3 link type present, bit 4 name character set present.
func ParseLinkMessage(data []byte, sb *Superblock) (*LinkMessage, error) {
	if len(data) < 2 {
		return nil, errors.New("link message too short")
	}
	if data[0] != 1 {
		return nil, fmt.Errorf("unsupported link message version: %d", data[0])
	}
	flags := data[1]
	pos := 2

	lm := &LinkMessage{Type: LinkHard}
	if flags&0x08 != 0 {
		if pos >= len(data) {
			return nil, errors.New("link type truncated")
		}
		lm.Type = LinkType(data[pos])
		pos++
	}
	if flags&0x04 != 0 {
		pos += 8
	}
	if flags&0x10 != 0 {
		pos++
	}

	width := 1 << (flags & 0x03)
	nameLen, err := utils.DecodeUint(data[min(pos, len(data)):], width)
	if err != nil {
		return nil, fmt.Errorf("link name length: %w", err)
	}
	pos += width
	if pos+int(nameLen) > len(data) {
		return nil, errors.New("link name truncated")
	}
	lm.Name = string(data[pos : pos+int(nameLen)])
	pos += int(nameLen)

	switch lm.Type {
	case LinkHard:
		if lm.Address, err = utils.DecodeAddress(data[pos:], int(sb.OffsetSize)); err != nil {
			return nil, fmt.Errorf("link %q address: %w", lm.Name, err)
		}
	case LinkSoft:
		n, err := utils.DecodeUint(data[pos:], 2)
		if err != nil || pos+2+int(n) > len(data) {
			return nil, fmt.Errorf("link %q soft path truncated", lm.Name)
		}
		lm.SoftPath = string(data[pos+2 : pos+2+int(n)])
	}
	return lm, nil
}

// EncodeHardLink encodes a version 1 hard link message with a one-byte name
// length, no creation order and an implicit ASCII name.
func EncodeHardLink(name string, addr uint64) ([]byte, error) {
	if len(name) == 0 || len(name) > 0xFF {
		return nil, fmt.Errorf("link name length %d out of range", len(name))
	}
	buf := make([]byte, 3+len(name)+8)
	buf[0] = 1
	buf[1] = 0
	buf[2] = byte(len(name))
	copy(buf[3:], name)
	utils.EncodeUint(buf[3+len(name):], addr, 8)
	return buf, nil
}

// LinkInfo is a decoded link info message. A defined fractal heap address
// means the group stores its links densely.
type LinkInfo struct {
	FractalHeapAddress uint64
	NameIndexAddress   uint64
}

// Dense reports whether links live in a fractal heap.
func (li *LinkInfo) Dense() bool {
	return li.FractalHeapAddress != utils.UndefinedAddress
}

// ParseLinkInfo decodes a link info message.
func ParseLinkInfo(data []byte, sb *Superblock) (*LinkInfo, error) {
	if len(data) < 2 || data[0] != 0 {
		return nil, errors.New("invalid link info message")
	}
	pos := 2
	if data[1]&0x01 != 0 {
		pos += 8 // maximum creation index
	}
	o := int(sb.OffsetSize)
	if len(data) < pos+2*o {
		return nil, errors.New("link info message truncated")
	}
	li := &LinkInfo{}
	li.FractalHeapAddress, _ = utils.DecodeAddress(data[pos:], o)
	li.NameIndexAddress, _ = utils.DecodeAddress(data[pos+o:], o)
	return li, nil
}

// EncodeLinkInfo encodes a link info message for compact link storage.
func EncodeLinkInfo() []byte {
	buf := make([]byte, 2+8+8)
	utils.EncodeUint(buf[2:], utils.UndefinedAddress, 8)
	utils.EncodeUint(buf[10:], utils.UndefinedAddress, 8)
	return buf
}

// EncodeGroupInfo encodes a group info message with default phase change
// values.
func EncodeGroupInfo() []byte {
	return []byte{0, 0}
}

// SymbolTableMessage points at the B-tree and local heap of an old-style
// group.
type SymbolTableMessage struct {
	BTreeAddress uint64
	HeapAddress  uint64
}

// ParseSymbolTableMessage decodes a symbol table message.
func ParseSymbolTableMessage(data []byte, sb *Superblock) (*SymbolTableMessage, error) {
	o := int(sb.OffsetSize)
	if len(data) < 2*o {
		return nil, errors.New("symbol table message truncated")
	}
	st := &SymbolTableMessage{}
	st.BTreeAddress, _ = utils.DecodeAddress(data, o)
	st.HeapAddress, _ = utils.DecodeAddress(data[o:], o)
	return st, nil
}

// EncodeFillValue encodes a version 3 fill value message: late allocation,
// fill written only if set, no fill value defined.
func EncodeFillValue() []byte {
	return []byte{3, 0x02 | 0x02<<2}
}
