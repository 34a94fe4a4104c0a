package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scigolib/dsconv/internal/utils"
)

// DatatypeClass is the HDF5 datatype class stored in the low nibble of the
// first datatype byte.
type DatatypeClass uint8

// Datatype classes.
const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloat      DatatypeClass = 1
	ClassTime       DatatypeClass = 2
	ClassString     DatatypeClass = 3
	ClassBitfield   DatatypeClass = 4
	ClassOpaque     DatatypeClass = 5
	ClassCompound   DatatypeClass = 6
	ClassReference  DatatypeClass = 7
	ClassEnum       DatatypeClass = 8
	ClassVarLen     DatatypeClass = 9
	ClassArray      DatatypeClass = 10
)

// String padding types for fixed-length strings.
const (
	PadNullTerm  = 0
	PadNullPad   = 1
	PadSpacePad  = 2
	CharsetASCII = 0
	CharsetUTF8  = 1
)

// ErrUnsupportedDatatype is returned for datatype classes this package
// cannot decode.
var ErrUnsupportedDatatype = errors.New("unsupported datatype")

// EnumMember is one name/value pair of an enumeration.
type EnumMember struct {
	Name  string
	Value []byte
}

// Datatype is a decoded datatype message.
type Datatype struct {
	Class     DatatypeClass
	Version   uint8
	Size      uint32
	BigEndian bool

	// Fixed-point.
	Signed bool

	// Float bit layout.
	SignLocation  uint8
	ExpLocation   uint8
	ExpSize       uint8
	MantLocation  uint8
	MantSize      uint8
	ExpBias       uint32
	MantissaNorm  uint8
	BitPrecision  uint16
	BitOffset     uint16
	FloatPadFlags uint8

	// Strings, fixed or variable length.
	StringPad    uint8
	Charset      uint8
	VarLenString bool

	// Enum members and the base type of enums and variable-length types.
	Base    *Datatype
	Members []EnumMember
}

// ParseDatatype decodes a datatype message and reports the bytes consumed.
// Classes that cannot be decoded are returned with only the common header
// fields set; decoding their values fails later.
func ParseDatatype(data []byte) (*Datatype, int, error) {
	if len(data) < 8 {
		return nil, 0, errors.New("datatype message too short")
	}
	dt := &Datatype{
		Class:   DatatypeClass(data[0] & 0x0F),
		Version: data[0] >> 4,
	}
	bits0, bits1 := data[1], data[2]
	size, _ := utils.DecodeUint(data[4:], 4)
	//nolint:gosec // G115: read from a 4-byte field
	dt.Size = uint32(size)
	props := data[8:]

	switch dt.Class {
	case ClassFixedPoint, ClassBitfield:
		dt.BigEndian = bits0&0x01 != 0
		dt.Signed = bits0&0x08 != 0
		if len(props) < 4 {
			return nil, 0, errors.New("fixed-point properties truncated")
		}
		dt.BitOffset = uint16(props[0]) | uint16(props[1])<<8
		dt.BitPrecision = uint16(props[2]) | uint16(props[3])<<8
		return dt, 12, nil

	case ClassFloat:
		dt.BigEndian = bits0&0x01 != 0
		dt.FloatPadFlags = (bits0 >> 1) & 0x07
		dt.MantissaNorm = (bits0 >> 4) & 0x03
		dt.SignLocation = bits1
		if len(props) < 12 {
			return nil, 0, errors.New("floating-point properties truncated")
		}
		dt.BitOffset = uint16(props[0]) | uint16(props[1])<<8
		dt.BitPrecision = uint16(props[2]) | uint16(props[3])<<8
		dt.ExpLocation = props[4]
		dt.ExpSize = props[5]
		dt.MantLocation = props[6]
		dt.MantSize = props[7]
		bias, _ := utils.DecodeUint(props[8:], 4)
		//nolint:gosec // G115: read from a 4-byte field
		dt.ExpBias = uint32(bias)
		return dt, 20, nil

	case ClassString:
		dt.StringPad = bits0 & 0x0F
		dt.Charset = bits0 >> 4
		return dt, 8, nil

	case ClassEnum:
		base, n, err := ParseDatatype(props)
		if err != nil {
			return nil, 0, fmt.Errorf("enum base type: %w", err)
		}
		dt.Base = base
		count := int(bits0) | int(bits1)<<8
		consumed, err := dt.parseEnumMembers(props[n:], count)
		if err != nil {
			return nil, 0, err
		}
		return dt, 8 + n + consumed, nil

	case ClassVarLen:
		dt.VarLenString = bits0&0x0F == 1
		dt.StringPad = bits0 >> 4
		dt.Charset = bits1 & 0x0F
		base, n, err := ParseDatatype(props)
		if err != nil {
			return nil, 0, fmt.Errorf("variable-length base type: %w", err)
		}
		dt.Base = base
		return dt, 8 + n, nil
	}

	return dt, 8, nil
}

// parseEnumMembers reads count names followed by count values. Versions 1
// and 2 pad each name to a multiple of eight bytes.
func (dt *Datatype) parseEnumMembers(data []byte, count int) (int, error) {
	pos := 0
	names := make([]string, count)
	for i := range names {
		end := pos
		for end < len(data) && data[end] != 0 {
			end++
		}
		if end >= len(data) {
			return 0, errors.New("enum member name not terminated")
		}
		names[i] = string(data[pos:end])
		if dt.Version >= 3 {
			pos = end + 1
		} else {
			pos += align8(end - pos + 1)
		}
	}

	vsize := int(dt.Base.Size)
	if pos+count*vsize > len(data) {
		return 0, errors.New("enum member values truncated")
	}
	dt.Members = make([]EnumMember, count)
	for i := range dt.Members {
		dt.Members[i] = EnumMember{Name: names[i], Value: data[pos : pos+vsize]}
		pos += vsize
	}
	return pos, nil
}

// IsBool reports whether the type is the FALSE/TRUE enumeration numpy bools
// are stored as.
func (dt *Datatype) IsBool() bool {
	if dt.Class != ClassEnum || len(dt.Members) != 2 {
		return false
	}
	return strings.EqualFold(dt.Members[0].Name, "FALSE") && strings.EqualFold(dt.Members[1].Name, "TRUE")
}

// String returns a short numpy-like description used in diagnostics.
func (dt *Datatype) String() string {
	switch dt.Class {
	case ClassFixedPoint:
		if dt.Signed {
			return fmt.Sprintf("int%d", dt.Size*8)
		}
		return fmt.Sprintf("uint%d", dt.Size*8)
	case ClassFloat:
		return fmt.Sprintf("float%d", dt.Size*8)
	case ClassString:
		return fmt.Sprintf("|S%d", dt.Size)
	case ClassVarLen:
		if dt.VarLenString {
			return "str"
		}
		return "vlen"
	case ClassEnum:
		if dt.IsBool() {
			return "bool"
		}
		return "enum"
	default:
		return fmt.Sprintf("class%d", dt.Class)
	}
}

// Encode serializes the datatype as a version 1 datatype message.
// Only the classes this package writes are supported.
func (dt *Datatype) Encode() ([]byte, error) {
	head := make([]byte, 8)
	head[0] = 1<<4 | byte(dt.Class)
	utils.EncodeUint(head[4:], uint64(dt.Size), 4)

	switch dt.Class {
	case ClassFixedPoint:
		if dt.BigEndian {
			head[1] |= 0x01
		}
		if dt.Signed {
			head[1] |= 0x08
		}
		props := make([]byte, 4)
		utils.EncodeUint(props, uint64(dt.BitOffset), 2)
		utils.EncodeUint(props[2:], uint64(dt.BitPrecision), 2)
		return append(head, props...), nil

	case ClassFloat:
		head[1] = dt.MantissaNorm << 4
		if dt.BigEndian {
			head[1] |= 0x01
		}
		head[2] = dt.SignLocation
		props := make([]byte, 12)
		utils.EncodeUint(props, uint64(dt.BitOffset), 2)
		utils.EncodeUint(props[2:], uint64(dt.BitPrecision), 2)
		props[4] = dt.ExpLocation
		props[5] = dt.ExpSize
		props[6] = dt.MantLocation
		props[7] = dt.MantSize
		utils.EncodeUint(props[8:], uint64(dt.ExpBias), 4)
		return append(head, props...), nil

	case ClassString:
		head[1] = dt.Charset<<4 | dt.StringPad
		return head, nil

	case ClassVarLen:
		if dt.VarLenString {
			head[1] = dt.StringPad<<4 | 0x01
			head[2] = dt.Charset
		}
		base, err := dt.Base.Encode()
		if err != nil {
			return nil, err
		}
		return append(head, base...), nil

	case ClassEnum:
		//nolint:gosec // G115: member count is small
		utils.EncodeUint(head[1:], uint64(len(dt.Members)), 2)
		base, err := dt.Base.Encode()
		if err != nil {
			return nil, err
		}
		out := append(head, base...)
		for _, m := range dt.Members {
			name := make([]byte, align8(len(m.Name)+1))
			copy(name, m.Name)
			out = append(out, name...)
		}
		for _, m := range dt.Members {
			out = append(out, m.Value...)
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: cannot encode class %d", ErrUnsupportedDatatype, dt.Class)
}

// NewFloat64 returns the IEEE 754 little-endian double type.
func NewFloat64() *Datatype {
	return &Datatype{
		Class: ClassFloat, Version: 1, Size: 8,
		MantissaNorm: 2, SignLocation: 63, BitPrecision: 64,
		ExpLocation: 52, ExpSize: 11, MantLocation: 0, MantSize: 52, ExpBias: 1023,
	}
}

// NewFloat32 returns the IEEE 754 little-endian single type.
func NewFloat32() *Datatype {
	return &Datatype{
		Class: ClassFloat, Version: 1, Size: 4,
		MantissaNorm: 2, SignLocation: 31, BitPrecision: 32,
		ExpLocation: 23, ExpSize: 8, MantLocation: 0, MantSize: 23, ExpBias: 127,
	}
}

// NewInt returns a signed little-endian integer type of size bytes.
func NewInt(size uint32) *Datatype {
	//nolint:gosec // G115: size is 1, 2, 4 or 8
	return &Datatype{Class: ClassFixedPoint, Version: 1, Size: size, Signed: true, BitPrecision: uint16(size * 8)}
}

// NewUint returns an unsigned little-endian integer type of size bytes.
func NewUint(size uint32) *Datatype {
	//nolint:gosec // G115: size is 1, 2, 4 or 8
	return &Datatype{Class: ClassFixedPoint, Version: 1, Size: size, BitPrecision: uint16(size * 8)}
}

// NewUint8 returns the unsigned byte type, the base of variable-length strings.
func NewUint8() *Datatype {
	return NewUint(1)
}

// NewFixedString returns a null-padded ASCII string type of n bytes,
// numpy's "|S<n>".
func NewFixedString(n uint32) *Datatype {
	return &Datatype{Class: ClassString, Version: 1, Size: n, StringPad: PadNullPad, Charset: CharsetASCII}
}

// NewVarLenString returns a null-terminated UTF-8 variable-length string type
// for files with 8-byte offsets.
func NewVarLenString() *Datatype {
	return &Datatype{
		Class: ClassVarLen, Version: 1, Size: 16,
		VarLenString: true, StringPad: PadNullTerm, Charset: CharsetUTF8,
		Base: NewUint8(),
	}
}

// NewBool returns the int8 FALSE/TRUE enumeration numpy bools map to.
func NewBool() *Datatype {
	return &Datatype{
		Class: ClassEnum, Version: 1, Size: 1,
		Base: NewInt(1),
		Members: []EnumMember{
			{Name: "FALSE", Value: []byte{0}},
			{Name: "TRUE", Value: []byte{1}},
		},
	}
}

func align8(n int) int {
	return (n + 7) &^ 7
}
