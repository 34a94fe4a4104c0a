package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/dsconv/internal/utils"
)

// MessageType identifies the type of message in an object header.
type MessageType uint16

// Header message types used by this package.
const (
	MsgNil            MessageType = 0x0000
	MsgDataspace      MessageType = 0x0001
	MsgLinkInfo       MessageType = 0x0002
	MsgDatatype       MessageType = 0x0003
	MsgFillValueOld   MessageType = 0x0004
	MsgFillValue      MessageType = 0x0005
	MsgLink           MessageType = 0x0006
	MsgDataLayout     MessageType = 0x0008
	MsgGroupInfo      MessageType = 0x000A
	MsgFilterPipeline MessageType = 0x000B
	MsgAttribute      MessageType = 0x000C
	MsgContinuation   MessageType = 0x0010
	MsgSymbolTable    MessageType = 0x0011
	MsgModTime        MessageType = 0x0012
	MsgAttributeInfo  MessageType = 0x0015
)

// Header message flag bits.
const (
	MsgFlagConstant = 0x01
	MsgFlagShared   = 0x02
)

// ObjectType classifies an object by the messages in its header.
type ObjectType uint8

// Object types.
const (
	ObjectTypeGroup ObjectType = iota
	ObjectTypeDataset
)

// ObjectHeader is a parsed object header: version plus all messages from the
// first chunk and every continuation block, in file order.
type ObjectHeader struct {
	Version  uint8
	Flags    uint8
	Address  uint64
	Messages []*HeaderMessage
}

// HeaderMessage is one raw message within an object header.
type HeaderMessage struct {
	Type  MessageType
	Flags uint8
	Data  []byte
}

// Find returns the first message of the given type, or nil.
func (oh *ObjectHeader) Find(t MessageType) *HeaderMessage {
	for _, m := range oh.Messages {
		if m.Type == t {
			return m
		}
	}
	return nil
}

// FindAll returns every message of the given type.
func (oh *ObjectHeader) FindAll(t MessageType) []*HeaderMessage {
	var out []*HeaderMessage
	for _, m := range oh.Messages {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// Type reports whether the header describes a dataset or a group.
func (oh *ObjectHeader) Type() ObjectType {
	if oh.Find(MsgDataLayout) != nil {
		return ObjectTypeDataset
	}
	return ObjectTypeGroup
}

type continuation struct {
	addr   uint64
	length uint64
}

// maxContinuations bounds continuation chains in malformed files.
const maxContinuations = 1024

// ReadObjectHeader reads and parses the object header at address.
// Both version 1 and version 2 ("OHDR") headers are supported.
func ReadObjectHeader(r io.ReaderAt, address uint64, sb *Superblock) (*ObjectHeader, error) {
	prefix, err := utils.ReadAt(r, sb.Abs(address), 4)
	if err != nil {
		return nil, utils.WrapError("object header read failed", err)
	}

	oh := &ObjectHeader{Address: address}
	var conts []continuation
	if string(prefix) == "OHDR" {
		oh.Version = 2
		conts, err = readHeaderV2(r, address, sb, oh)
	} else {
		oh.Version = prefix[0]
		if oh.Version != 1 {
			return nil, fmt.Errorf("unsupported object header version %d at 0x%x", oh.Version, address)
		}
		conts, err = readHeaderV1(r, address, sb, oh)
	}
	if err != nil {
		return nil, err
	}

	for i := 0; len(conts) > 0; i++ {
		if i >= maxContinuations {
			return nil, errors.New("object header continuation chain too long")
		}
		c := conts[0]
		conts = conts[1:]

		var more []continuation
		if oh.Version == 2 {
			more, err = readContinuationV2(r, c, sb, oh)
		} else {
			more, err = readContinuationV1(r, c, sb, oh)
		}
		if err != nil {
			return nil, err
		}
		conts = append(conts, more...)
	}
	return oh, nil
}

// readHeaderV1 parses the 16-byte v1 prefix (version, reserved, message
// count, reference count, header size, padding) and the first message block.
func readHeaderV1(r io.ReaderAt, address uint64, sb *Superblock, oh *ObjectHeader) ([]continuation, error) {
	prefix, err := utils.ReadAt(r, sb.Abs(address), 16)
	if err != nil {
		return nil, utils.WrapError("v1 object header prefix read failed", err)
	}
	size, _ := utils.DecodeUint(prefix[8:], 4)
	block, err := utils.ReadAt(r, sb.Abs(address)+16, int(size))
	if err != nil {
		return nil, utils.WrapError("v1 object header messages read failed", err)
	}
	return parseMessagesV1(block, sb, oh)
}

func readContinuationV1(r io.ReaderAt, c continuation, sb *Superblock, oh *ObjectHeader) ([]continuation, error) {
	block, err := utils.ReadAt(r, sb.Abs(c.addr), int(c.length))
	if err != nil {
		return nil, utils.WrapError("v1 continuation block read failed", err)
	}
	return parseMessagesV1(block, sb, oh)
}

// parseMessagesV1 walks 8-byte aligned v1 messages: type(2) size(2)
// flags(1) reserved(3) data(size).
func parseMessagesV1(block []byte, sb *Superblock, oh *ObjectHeader) ([]continuation, error) {
	var conts []continuation
	pos := 0
	for pos+8 <= len(block) {
		mtype, _ := utils.DecodeUint(block[pos:], 2)
		size, _ := utils.DecodeUint(block[pos+2:], 2)
		flags := block[pos+4]
		pos += 8
		if pos+int(size) > len(block) {
			return nil, fmt.Errorf("v1 header message type 0x%04x overruns block", mtype)
		}
		data := block[pos : pos+int(size)]
		pos += int(size)

		c, err := oh.addMessage(MessageType(mtype), flags, data, sb)
		if err != nil {
			return nil, err
		}
		if c != nil {
			conts = append(conts, *c)
		}
	}
	return conts, nil
}

// readHeaderV2 parses "OHDR", version, flags, the optional time and
// attribute-phase fields, the chunk 0 size and the chunk 0 messages.
func readHeaderV2(r io.ReaderAt, address uint64, sb *Superblock, oh *ObjectHeader) ([]continuation, error) {
	fixed, err := utils.ReadAt(r, sb.Abs(address), 6)
	if err != nil {
		return nil, utils.WrapError("v2 object header read failed", err)
	}
	if fixed[4] != 2 {
		return nil, fmt.Errorf("unsupported OHDR version: %d", fixed[4])
	}
	flags := fixed[5]
	oh.Flags = flags

	prefixLen := 6
	if flags&0x20 != 0 {
		prefixLen += 16 // access, modification, change, birth times
	}
	if flags&0x10 != 0 {
		prefixLen += 4 // max compact, min dense attributes
	}
	sizeWidth := 1 << (flags & 0x03)

	head, err := utils.ReadAt(r, sb.Abs(address), prefixLen+sizeWidth)
	if err != nil {
		return nil, utils.WrapError("v2 object header prefix read failed", err)
	}
	chunkSize, _ := utils.DecodeUint(head[prefixLen:], sizeWidth)

	total := prefixLen + sizeWidth + int(chunkSize) + 4
	whole, err := utils.ReadAt(r, sb.Abs(address), total)
	if err != nil {
		return nil, utils.WrapError("v2 object header chunk read failed", err)
	}
	if err := verifyChecksum(whole, "object header"); err != nil {
		return nil, err
	}

	return parseMessagesV2(whole[prefixLen+sizeWidth:total-4], flags, sb, oh)
}

func readContinuationV2(r io.ReaderAt, c continuation, sb *Superblock, oh *ObjectHeader) ([]continuation, error) {
	block, err := utils.ReadAt(r, sb.Abs(c.addr), int(c.length))
	if err != nil {
		return nil, utils.WrapError("OCHK block read failed", err)
	}
	if len(block) < 8 || string(block[:4]) != "OCHK" {
		return nil, errors.New("invalid OCHK signature")
	}
	if err := verifyChecksum(block, "continuation block"); err != nil {
		return nil, err
	}
	return parseMessagesV2(block[4:len(block)-4], oh.Flags, sb, oh)
}

// parseMessagesV2 walks v2 messages: type(1) size(2) flags(1)
// [creation order(2)] data(size). A tail shorter than a message header is
// a gap and ends the walk.
func parseMessagesV2(block []byte, headerFlags uint8, sb *Superblock, oh *ObjectHeader) ([]continuation, error) {
	hdrLen := 4
	if headerFlags&0x04 != 0 {
		hdrLen += 2
	}

	var conts []continuation
	pos := 0
	for pos+hdrLen <= len(block) {
		mtype := block[pos]
		size, _ := utils.DecodeUint(block[pos+1:], 2)
		flags := block[pos+3]
		pos += hdrLen
		if pos+int(size) > len(block) {
			return nil, fmt.Errorf("v2 header message type 0x%02x overruns chunk", mtype)
		}
		data := block[pos : pos+int(size)]
		pos += int(size)

		c, err := oh.addMessage(MessageType(mtype), flags, data, sb)
		if err != nil {
			return nil, err
		}
		if c != nil {
			conts = append(conts, *c)
		}
	}
	return conts, nil
}

// addMessage records a message. Continuations are returned instead of
// stored, NIL messages are dropped.
func (oh *ObjectHeader) addMessage(t MessageType, flags uint8, data []byte, sb *Superblock) (*continuation, error) {
	switch t {
	case MsgNil:
		return nil, nil
	case MsgContinuation:
		o, l := int(sb.OffsetSize), int(sb.LengthSize)
		if len(data) < o+l {
			return nil, errors.New("continuation message truncated")
		}
		addr, _ := utils.DecodeAddress(data, o)
		length, _ := utils.DecodeUint(data[o:], l)
		return &continuation{addr: addr, length: length}, nil
	}
	oh.Messages = append(oh.Messages, &HeaderMessage{Type: t, Flags: flags, Data: data})
	return nil, nil
}

func verifyChecksum(block []byte, what string) error {
	n := len(block) - 4
	stored, _ := utils.DecodeUint(block[n:], 4)
	if computed := utils.Lookup3(block[:n]); uint64(computed) != stored {
		return fmt.Errorf("%s checksum mismatch: stored 0x%08x, computed 0x%08x", what, stored, computed)
	}
	return nil
}
