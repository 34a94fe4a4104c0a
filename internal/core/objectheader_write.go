package core

import (
	"fmt"

	"github.com/scigolib/dsconv/internal/utils"
)

// maxMessageSize is the largest body a header message can carry; the size
// field is two bytes wide in both header versions.
const maxMessageSize = 0xFFFF

// EncodeObjectHeaderV2 encodes a single-chunk version 2 object header.
//
// Reference: HDF5 spec III.C "Version 2 Object Header".
// Layout: "OHDR", version 2, flags, chunk 0 size, messages, lookup3 checksum.
// Flags only encode the width of the chunk size field; times, attribute
// phase change values and creation order are not stored.
func EncodeObjectHeaderV2(msgs []*HeaderMessage) ([]byte, error) {
	chunkSize := 0
	for _, m := range msgs {
		if len(m.Data) > maxMessageSize {
			return nil, fmt.Errorf("header message type 0x%04x too large: %d bytes", m.Type, len(m.Data))
		}
		if m.Type > 0xFF {
			return nil, fmt.Errorf("message type 0x%04x does not fit a v2 header", m.Type)
		}
		chunkSize += 4 + len(m.Data)
	}

	var flags uint8
	width := 1
	switch {
	case uint64(chunkSize) > 0xFFFFFFFF:
		flags, width = 3, 8
	case chunkSize > 0xFFFF:
		flags, width = 2, 4
	case chunkSize > 0xFF:
		flags, width = 1, 2
	}

	buf := make([]byte, 6+width+chunkSize+4)
	copy(buf, "OHDR")
	buf[4] = 2
	buf[5] = flags
	//nolint:gosec // G115: chunkSize is non-negative
	utils.EncodeUint(buf[6:], uint64(chunkSize), width)

	pos := 6 + width
	for _, m := range msgs {
		buf[pos] = byte(m.Type)
		utils.EncodeUint(buf[pos+1:], uint64(len(m.Data)), 2)
		buf[pos+3] = m.Flags
		pos += 4
		pos += copy(buf[pos:], m.Data)
	}

	utils.EncodeUint(buf[pos:], uint64(utils.Lookup3(buf[:pos])), 4)
	return buf, nil
}
