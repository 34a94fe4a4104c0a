package utils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// UndefinedAddress marks an unset address field in HDF5 metadata.
const UndefinedAddress = math.MaxUint64

// ErrTruncated is returned when a metadata field runs past its buffer.
var ErrTruncated = errors.New("truncated metadata")

// DecodeUint reads a little-endian unsigned integer of 1, 2, 4 or 8 bytes.
// HDF5 stores every metadata field little-endian regardless of platform.
func DecodeUint(b []byte, size int) (uint64, error) {
	if len(b) < size {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, size, len(b))
	}
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	default:
		return 0, fmt.Errorf("unsupported field size: %d", size)
	}
}

// DecodeAddress reads an address field and maps the all-ones pattern of the
// given width to UndefinedAddress.
func DecodeAddress(b []byte, size int) (uint64, error) {
	v, err := DecodeUint(b, size)
	if err != nil {
		return 0, err
	}
	if size < 8 && v == (uint64(1)<<(8*uint(size)))-1 {
		return UndefinedAddress, nil
	}
	return v, nil
}

// EncodeUint writes v little-endian into the first size bytes of b.
func EncodeUint(b []byte, v uint64, size int) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		//nolint:gosec // G115: caller guarantees v fits the field width
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		//nolint:gosec // G115: caller guarantees v fits the field width
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

// ReadAt reads exactly n bytes at addr into a fresh slice.
func ReadAt(r io.ReaderAt, addr uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := readFull(r, addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadPooled is ReadAt into a buffer taken from the pool. The caller hands
// it back with ReleaseBuffer once done.
func ReadPooled(r io.ReaderAt, addr uint64, n int) ([]byte, error) {
	buf := GetBuffer(n)
	if err := readFull(r, addr, buf); err != nil {
		ReleaseBuffer(buf)
		return nil, err
	}
	return buf, nil
}

func readFull(r io.ReaderAt, addr uint64, buf []byte) error {
	if addr == UndefinedAddress {
		return errors.New("read at undefined address")
	}
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(buf, int64(addr)); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %d bytes at 0x%x beyond end of file", ErrTruncated, len(buf), addr)
		}
		return err
	}
	return nil
}

// SafeMultiply multiplies two uint64 values, failing on overflow.
func SafeMultiply(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, fmt.Errorf("multiplication overflow: %d * %d exceeds uint64 max", a, b)
	}
	return a * b, nil
}

// ElementCount returns the product of dims, failing on overflow.
func ElementCount(dims []uint64) (uint64, error) {
	n := uint64(1)
	for i, d := range dims {
		var err error
		if n, err = SafeMultiply(n, d); err != nil {
			return 0, fmt.Errorf("dimension %d: %w", i, err)
		}
	}
	return n, nil
}
