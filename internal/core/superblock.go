package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/dsconv/internal/utils"
)

// HDF5 file signature and supported superblock versions.
const (
	Signature = "\x89HDF\r\n\x1a\n"
	Version0  = 0
	Version1  = 1
	Version2  = 2
	Version3  = 3

	// SuperblockV2Size is the encoded size of a version 2 superblock with
	// 8-byte offsets and lengths.
	SuperblockV2Size = 48
)

// maxUserBlock bounds the search for a superblock behind a user block.
const maxUserBlock = 1 << 20

// ErrNotHDF5 is returned when no superblock signature is found.
var ErrNotHDF5 = errors.New("invalid HDF5 signature")

// Superblock holds the file-level metadata needed to navigate the file.
type Superblock struct {
	Version     uint8
	OffsetSize  uint8
	LengthSize  uint8
	BaseAddress uint64
	EOFAddress  uint64
	RootGroup   uint64

	// Location is the absolute file offset of the signature.
	Location uint64
}

// ReadSuperblock locates and parses the superblock. It searches offset 0
// and then every power of two from 512, as a user block may precede it.
func ReadSuperblock(r io.ReaderAt) (*Superblock, error) {
	for loc := uint64(0); loc <= maxUserBlock; {
		buf := make([]byte, 128)
		//nolint:gosec // G115: search offsets are bounded by maxUserBlock
		n, err := r.ReadAt(buf, int64(loc))
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, utils.WrapError("superblock read failed", err)
		}
		if n < len(Signature) {
			break
		}
		if string(buf[:len(Signature)]) == Signature {
			sb, err := parseSuperblock(buf[:n])
			if err != nil {
				return nil, err
			}
			sb.Location = loc
			return sb, nil
		}
		if loc == 0 {
			loc = 512
		} else {
			loc *= 2
		}
	}
	return nil, ErrNotHDF5
}

func parseSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < 9 {
		return nil, errors.New("file too small to contain a superblock")
	}
	version := buf[8]
	switch version {
	case Version0, Version1:
		return parseSuperblockV0(buf, version)
	case Version2, Version3:
		return parseSuperblockV2(buf, version)
	default:
		return nil, fmt.Errorf("unsupported superblock version: %d", version)
	}
}

// parseSuperblockV0 handles versions 0 and 1.
//
// Layout: signature(8) versions(5) sizes(2) reserved(1) leafK(2) internalK(2)
// flags(4) [v1: indexedK(2) reserved(2)] base free-space EOF driver
// root-symbol-table-entry.
func parseSuperblockV0(buf []byte, version uint8) (*Superblock, error) {
	if len(buf) < 24 {
		return nil, errors.New("superblock v0 truncated")
	}
	sb := &Superblock{
		Version:    version,
		OffsetSize: buf[13],
		LengthSize: buf[14],
	}
	if err := sb.validateSizes(); err != nil {
		return nil, err
	}

	pos := 24
	if version == Version1 {
		pos += 4
	}
	o := int(sb.OffsetSize)

	// Four addresses, then the root entry: link name offset and header address.
	if len(buf) < pos+6*o {
		return nil, errors.New("superblock v0 truncated")
	}
	var err error
	if sb.BaseAddress, err = utils.DecodeAddress(buf[pos:], o); err != nil {
		return nil, err
	}
	pos += 2 * o // base, free-space info
	if sb.EOFAddress, err = utils.DecodeAddress(buf[pos:], o); err != nil {
		return nil, err
	}
	pos += 2 * o // EOF, driver info
	pos += o     // root entry: link name offset
	if sb.RootGroup, err = utils.DecodeAddress(buf[pos:], o); err != nil {
		return nil, err
	}
	return sb, nil
}

// parseSuperblockV2 handles versions 2 and 3. Both carry a lookup3 checksum.
//
// Layout: signature(8) version(1) offsetSize(1) lengthSize(1) flags(1)
// base extension EOF root checksum(4).
func parseSuperblockV2(buf []byte, version uint8) (*Superblock, error) {
	sb := &Superblock{
		Version:    version,
		OffsetSize: buf[9],
		LengthSize: buf[10],
	}
	if err := sb.validateSizes(); err != nil {
		return nil, err
	}

	o := int(sb.OffsetSize)
	end := 12 + 4*o
	if len(buf) < end+4 {
		return nil, errors.New("superblock v2 truncated")
	}

	stored, _ := utils.DecodeUint(buf[end:], 4)
	if computed := utils.Lookup3(buf[:end]); uint64(computed) != stored {
		return nil, fmt.Errorf("superblock checksum mismatch: stored 0x%08x, computed 0x%08x", stored, computed)
	}

	pos := 12
	var err error
	if sb.BaseAddress, err = utils.DecodeAddress(buf[pos:], o); err != nil {
		return nil, err
	}
	pos += 2 * o // base, superblock extension
	if sb.EOFAddress, err = utils.DecodeAddress(buf[pos:], o); err != nil {
		return nil, err
	}
	pos += o
	if sb.RootGroup, err = utils.DecodeAddress(buf[pos:], o); err != nil {
		return nil, err
	}
	return sb, nil
}

func (sb *Superblock) validateSizes() error {
	for _, s := range []uint8{sb.OffsetSize, sb.LengthSize} {
		if s != 2 && s != 4 && s != 8 {
			return fmt.Errorf("unsupported offset/length size: %d", s)
		}
	}
	return nil
}

// Abs converts a file-relative address to an absolute file offset.
func (sb *Superblock) Abs(addr uint64) uint64 {
	if addr == utils.UndefinedAddress {
		return addr
	}
	return sb.BaseAddress + addr
}

// EncodeSuperblockV2 encodes a version 2 superblock with 8-byte offsets and
// lengths, a zero base address and no superblock extension.
func EncodeSuperblockV2(rootAddr, eofAddr uint64) []byte {
	buf := make([]byte, SuperblockV2Size)
	copy(buf, Signature)
	buf[8] = Version2
	buf[9] = 8
	buf[10] = 8
	buf[11] = 0 // consistency flags

	utils.EncodeUint(buf[12:], 0, 8)
	utils.EncodeUint(buf[20:], utils.UndefinedAddress, 8)
	utils.EncodeUint(buf[28:], eofAddr, 8)
	utils.EncodeUint(buf[36:], rootAddr, 8)
	utils.EncodeUint(buf[44:], uint64(utils.Lookup3(buf[:44])), 4)
	return buf
}
