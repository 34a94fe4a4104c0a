package core

import (
	"errors"
	"fmt"

	"github.com/scigolib/dsconv/internal/utils"
)

// AttributeMessage is a decoded attribute message with its raw value bytes.
type AttributeMessage struct {
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte
}

// AttributeMessageName returns the name of an attribute message without
// looking at its datatype, dataspace or value.
func AttributeMessageName(data []byte) (string, error) {
	if len(data) < 8 {
		return "", errors.New("attribute message too short")
	}
	pos := 8
	switch data[0] {
	case 1, 2:
	case 3:
		pos = 9
	default:
		return "", fmt.Errorf("unsupported attribute message version: %d", data[0])
	}
	nameSize, _ := utils.DecodeUint(data[2:], 2)
	if len(data) < pos || uint64(len(data)-pos) < nameSize {
		return "", errors.New("attribute message truncated")
	}
	name := data[pos : pos+int(nameSize)]
	if n := len(name); n > 0 && name[n-1] == 0 {
		name = name[:n-1]
	}
	return string(name), nil
}

// ParseAttributeMessage decodes attribute message versions 1 to 3.
//
// Version 1 pads name, datatype and dataspace to eight bytes each. Version 2
// drops the padding; version 3 adds a name character set byte.
func ParseAttributeMessage(data []byte, sb *Superblock) (*AttributeMessage, error) {
	if len(data) < 8 {
		return nil, errors.New("attribute message too short")
	}
	version := data[0]
	flags := data[1]
	nameSize, _ := utils.DecodeUint(data[2:], 2)
	dtSize, _ := utils.DecodeUint(data[4:], 2)
	dsSize, _ := utils.DecodeUint(data[6:], 2)

	pad := func(n uint64) int { return int(n) }
	pos := 8
	switch version {
	case 1:
		pad = func(n uint64) int { return align8(int(n)) }
	case 2:
	case 3:
		pos = 9
	default:
		return nil, fmt.Errorf("unsupported attribute message version: %d", version)
	}
	if version > 1 && flags&0x03 != 0 {
		return nil, fmt.Errorf("%w: shared attribute datatype or dataspace", ErrUnsupportedDatatype)
	}

	if pos+pad(nameSize)+pad(dtSize)+pad(dsSize) > len(data) {
		return nil, errors.New("attribute message truncated")
	}

	name := data[pos : pos+int(nameSize)]
	if n := len(name); n > 0 && name[n-1] == 0 {
		name = name[:n-1]
	}
	pos += pad(nameSize)

	dt, _, err := ParseDatatype(data[pos : pos+int(dtSize)])
	if err != nil {
		return nil, fmt.Errorf("attribute %q datatype: %w", name, err)
	}
	pos += pad(dtSize)

	ds, err := ParseDataspace(data[pos:pos+int(dsSize)], sb)
	if err != nil {
		return nil, fmt.Errorf("attribute %q dataspace: %w", name, err)
	}
	pos += pad(dsSize)

	count, err := ds.ElementCount()
	if err != nil {
		return nil, err
	}
	size, err := utils.SafeMultiply(count, uint64(dt.Size))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)-pos) < size {
		return nil, fmt.Errorf("attribute %q data truncated: need %d bytes, have %d", name, size, len(data)-pos)
	}

	return &AttributeMessage{
		Name:      string(name),
		Datatype:  dt,
		Dataspace: ds,
		Data:      data[pos : pos+int(size)],
	}, nil
}

// EncodeAttributeMessage encodes a version 3 attribute message with an
// ASCII name.
func EncodeAttributeMessage(name string, dt *Datatype, dims []uint64, raw []byte) ([]byte, error) {
	dtBytes, err := dt.Encode()
	if err != nil {
		return nil, fmt.Errorf("attribute %q datatype: %w", name, err)
	}
	dsBytes := EncodeDataspace(dims)

	nameBytes := append([]byte(name), 0)
	buf := make([]byte, 9, 9+len(nameBytes)+len(dtBytes)+len(dsBytes)+len(raw))
	buf[0] = 3
	buf[1] = 0
	utils.EncodeUint(buf[2:], uint64(len(nameBytes)), 2)
	utils.EncodeUint(buf[4:], uint64(len(dtBytes)), 2)
	utils.EncodeUint(buf[6:], uint64(len(dsBytes)), 2)
	buf[8] = CharsetASCII

	buf = append(buf, nameBytes...)
	buf = append(buf, dtBytes...)
	buf = append(buf, dsBytes...)
	buf = append(buf, raw...)
	return buf, nil
}
