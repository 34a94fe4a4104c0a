package core

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/dsconv/internal/utils"
)

// testSB is a superblock with 8-byte offsets and lengths.
var testSB = &Superblock{Version: 2, OffsetSize: 8, LengthSize: 8}

func TestSuperblockV2_RoundTrip(t *testing.T) {
	buf := EncodeSuperblockV2(0x30, 0x1000)
	require.Len(t, buf, SuperblockV2Size)

	sb, err := ReadSuperblock(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, uint8(2), sb.Version)
	require.Equal(t, uint8(8), sb.OffsetSize)
	require.Equal(t, uint8(8), sb.LengthSize)
	require.Equal(t, uint64(0x30), sb.RootGroup)
	require.Equal(t, uint64(0x1000), sb.EOFAddress)
	require.Equal(t, uint64(0), sb.Location)
}

func TestSuperblockV2_ChecksumMismatch(t *testing.T) {
	buf := EncodeSuperblockV2(0x30, 0x1000)
	buf[36] ^= 0xFF

	_, err := ReadSuperblock(bytes.NewReader(buf))
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch")
}

func TestSuperblock_AfterUserBlock(t *testing.T) {
	file := append(make([]byte, 512), EncodeSuperblockV2(0x30, 0x1000)...)

	sb, err := ReadSuperblock(bytes.NewReader(file))
	require.NoError(t, err)
	require.Equal(t, uint64(512), sb.Location)
}

func TestSuperblock_NotHDF5(t *testing.T) {
	_, err := ReadSuperblock(bytes.NewReader([]byte("definitely not an hdf5 file at all")))
	require.ErrorIs(t, err, ErrNotHDF5)
}

func TestObjectHeaderV2_RoundTrip(t *testing.T) {
	msgs := []*HeaderMessage{
		{Type: MsgDataspace, Data: EncodeDataspace([]uint64{4, 4, 2})},
		{Type: MsgDataLayout, Data: EncodeContiguousLayout(0x200, 256)},
	}
	enc, err := EncodeObjectHeaderV2(msgs)
	require.NoError(t, err)

	// Place the header at a non-zero address.
	file := append(make([]byte, 64), enc...)
	oh, err := ReadObjectHeader(bytes.NewReader(file), 64, testSB)
	require.NoError(t, err)
	require.Equal(t, uint8(2), oh.Version)
	require.Len(t, oh.Messages, 2)
	require.Equal(t, ObjectTypeDataset, oh.Type())

	ds, err := ParseDataspace(oh.Find(MsgDataspace).Data, testSB)
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 4, 2}, ds.Dims)
}

func TestObjectHeaderV2_WideChunkSize(t *testing.T) {
	// A message larger than 255 bytes forces a two-byte chunk size field.
	big := &HeaderMessage{Type: MsgAttribute, Data: bytes.Repeat([]byte{0xAB}, 300)}
	enc, err := EncodeObjectHeaderV2([]*HeaderMessage{big})
	require.NoError(t, err)
	require.Equal(t, uint8(1), enc[5]&0x03)

	oh, err := ReadObjectHeader(bytes.NewReader(enc), 0, testSB)
	require.NoError(t, err)
	require.Len(t, oh.Messages, 1)
	require.Len(t, oh.Messages[0].Data, 300)
}

func TestObjectHeaderV2_CorruptChecksum(t *testing.T) {
	enc, err := EncodeObjectHeaderV2([]*HeaderMessage{{Type: MsgGroupInfo, Data: EncodeGroupInfo()}})
	require.NoError(t, err)
	enc[8] ^= 0x01

	_, err = ReadObjectHeader(bytes.NewReader(enc), 0, testSB)
	require.Error(t, err)
}

func TestObjectHeaderV1_WithContinuation(t *testing.T) {
	// v1 prefix + one dataspace message + continuation to a second block
	// holding a symbol table message.
	ds := EncodeDataspace(nil)
	ds = append(ds, make([]byte, align8(len(ds))-len(ds))...)

	cont := make([]byte, 16)
	block2Addr := uint64(256)
	utils.EncodeUint(cont, block2Addr, 8)

	stm := make([]byte, 16)
	utils.EncodeUint(stm, 0x1111, 8)
	utils.EncodeUint(stm[8:], 0x2222, 8)
	block2 := append(v1Message(MsgSymbolTable, stm), v1Message(MsgNil, make([]byte, 8))...)
	utils.EncodeUint(cont[8:], uint64(len(block2)), 8)

	block1 := append(v1Message(MsgDataspace, ds), v1Message(MsgContinuation, cont)...)

	prefix := make([]byte, 16)
	prefix[0] = 1
	utils.EncodeUint(prefix[2:], 4, 2)
	utils.EncodeUint(prefix[4:], 1, 4)
	utils.EncodeUint(prefix[8:], uint64(len(block1)), 4)

	file := make([]byte, 512)
	copy(file, append(prefix, block1...))
	copy(file[block2Addr:], block2)

	oh, err := ReadObjectHeader(bytes.NewReader(file), 0, testSB)
	require.NoError(t, err)
	require.Equal(t, uint8(1), oh.Version)
	require.Len(t, oh.Messages, 2)
	require.Equal(t, ObjectTypeGroup, oh.Type())

	st, err := ParseSymbolTableMessage(oh.Find(MsgSymbolTable).Data, testSB)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1111), st.BTreeAddress)
	require.Equal(t, uint64(0x2222), st.HeapAddress)
}

func v1Message(t MessageType, data []byte) []byte {
	hdr := make([]byte, 8)
	utils.EncodeUint(hdr, uint64(t), 2)
	utils.EncodeUint(hdr[2:], uint64(len(data)), 2)
	return append(hdr, data...)
}

func TestDataspace(t *testing.T) {
	scalar, err := ParseDataspace(EncodeDataspace(nil), testSB)
	require.NoError(t, err)
	require.True(t, scalar.IsScalar())
	n, err := scalar.ElementCount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	// Version 1 with maximum dimensions, as older libraries write it.
	v1 := []byte{1, 1, 1, 0, 0, 0, 0, 0}
	v1 = append(v1, le64(6)...)
	v1 = append(v1, le64(utils.UndefinedAddress)...)
	ds, err := ParseDataspace(v1, testSB)
	require.NoError(t, err)
	require.Equal(t, []uint64{6}, ds.Dims)
	require.Equal(t, []uint64{utils.UndefinedAddress}, ds.MaxDims)

	_, err = ParseDataspace([]byte{2, 3, 0, 1}, testSB)
	require.Error(t, err)
}

func TestDatatype_EncodeParse(t *testing.T) {
	tests := []struct {
		name string
		dt   *Datatype
		desc string
	}{
		{"float64", NewFloat64(), "float64"},
		{"float32", NewFloat32(), "float32"},
		{"int64", NewInt(8), "int64"},
		{"fixed string", NewFixedString(8), "|S8"},
		{"vlen string", NewVarLenString(), "str"},
		{"bool enum", NewBool(), "bool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := tt.dt.Encode()
			require.NoError(t, err)

			got, n, err := ParseDatatype(enc)
			require.NoError(t, err)
			require.Equal(t, len(enc), n)
			require.Equal(t, tt.dt.Class, got.Class)
			require.Equal(t, tt.dt.Size, got.Size)
			require.Equal(t, tt.desc, got.String())
		})
	}
}

func TestDatatype_Float64Layout(t *testing.T) {
	enc, err := NewFloat64().Encode()
	require.NoError(t, err)
	// Class 1 version 1, normalized mantissa, sign bit 63, size 8.
	require.Equal(t, []byte{0x11, 0x20, 0x3f, 0x00, 8, 0, 0, 0}, enc[:8])

	dt, _, err := ParseDatatype(enc)
	require.NoError(t, err)
	require.Equal(t, uint32(1023), dt.ExpBias)
	require.Equal(t, uint8(52), dt.MantSize)
}

func TestDatatype_EnumVersion3Names(t *testing.T) {
	// Version 3 enums store names unpadded.
	base, err := NewInt(1).Encode()
	require.NoError(t, err)
	enc := []byte{0x38, 2, 0, 0, 1, 0, 0, 0}
	enc = append(enc, base...)
	enc = append(enc, []byte("FALSE\x00TRUE\x00")...)
	enc = append(enc, 0, 1)

	dt, n, err := ParseDatatype(enc)
	require.NoError(t, err)
	require.Equal(t, len(enc), n)
	require.True(t, dt.IsBool())
	require.Equal(t, []byte{1}, dt.Members[1].Value)
}

func TestDataLayout(t *testing.T) {
	dl, err := ParseDataLayout(EncodeContiguousLayout(0x400, 64), testSB)
	require.NoError(t, err)
	require.Equal(t, LayoutContiguous, dl.Class)
	require.Equal(t, uint64(0x400), dl.Address)
	require.Equal(t, uint64(64), dl.Size)

	dl, err = ParseDataLayout(EncodeCompactLayout([]byte{1, 2, 3}), testSB)
	require.NoError(t, err)
	require.Equal(t, LayoutCompact, dl.Class)
	require.Equal(t, []byte{1, 2, 3}, dl.CompactData)

	chunked := []byte{3, byte(LayoutChunked), 3}
	chunked = append(chunked, le64(0x800)...)
	chunked = append(chunked, le32(2)...)
	chunked = append(chunked, le32(5)...)
	chunked = append(chunked, le32(8)...)
	dl, err = ParseDataLayout(chunked, testSB)
	require.NoError(t, err)
	require.Equal(t, uint64(0x800), dl.BTreeAddress)
	require.Equal(t, []uint64{2, 5}, dl.ChunkDims)
	require.Equal(t, uint32(8), dl.ChunkElementSize)
}

func TestFilterPipeline_DeflateShuffle(t *testing.T) {
	// Version 2 pipeline: shuffle(element size 4) then deflate(level 4).
	msg := []byte{2, 2}
	msg = append(msg, le16(uint16(FilterShuffle))...)
	msg = append(msg, le16(0)...)
	msg = append(msg, le16(1)...)
	msg = append(msg, le32(4)...)
	msg = append(msg, le16(uint16(FilterDeflate))...)
	msg = append(msg, le16(0)...)
	msg = append(msg, le16(1)...)
	msg = append(msg, le32(4)...)

	fp, err := ParseFilterPipeline(msg)
	require.NoError(t, err)
	require.Len(t, fp.Filters, 2)
	require.Equal(t, []uint32{4}, fp.Filters[0].ClientData)

	plain := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	shuffled := []byte{1, 5, 9, 2, 6, 10, 3, 7, 11, 4, 8, 12}

	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	_, err = zw.Write(shuffled)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	got, err := fp.Decode(z.Bytes(), 0)
	require.NoError(t, err)
	require.Equal(t, plain, got)

	// With deflate masked out the chunk was stored shuffled only.
	got, err = fp.Decode(shuffled, 0b10)
	require.NoError(t, err)
	require.Equal(t, plain, got)
}

func TestAttributeMessage_Version1Padding(t *testing.T) {
	dt, err := NewInt(8).Encode()
	require.NoError(t, err)
	ds := []byte{1, 0, 0, 0, 0, 0, 0, 0} // scalar, version 1

	name := []byte("h_indices\x00")
	msg := []byte{1, 0}
	msg = append(msg, le16(uint16(len(name)))...)
	msg = append(msg, le16(uint16(len(dt)))...)
	msg = append(msg, le16(uint16(len(ds)))...)
	msg = append(msg, padTo8(name)...)
	msg = append(msg, padTo8(dt)...)
	msg = append(msg, padTo8(ds)...)
	msg = append(msg, le64(2)...)

	am, err := ParseAttributeMessage(msg, testSB)
	require.NoError(t, err)
	require.Equal(t, "h_indices", am.Name)
	require.True(t, am.Dataspace.IsScalar())
	require.Equal(t, le64(2), am.Data)
}

func TestAttributeMessage_EncodeParse(t *testing.T) {
	raw := append(le64(0), le64(1)...)
	enc, err := EncodeAttributeMessage("pair", NewInt(8), []uint64{2}, raw)
	require.NoError(t, err)

	am, err := ParseAttributeMessage(enc, testSB)
	require.NoError(t, err)
	require.Equal(t, "pair", am.Name)
	require.Equal(t, []uint64{2}, am.Dataspace.Dims)
	require.Equal(t, raw, am.Data)
}

func TestAttributeMessageName(t *testing.T) {
	enc, err := EncodeAttributeMessage("space", NewUint8(), nil, []byte{1})
	require.NoError(t, err)
	name, err := AttributeMessageName(enc)
	require.NoError(t, err)
	require.Equal(t, "space", name)

	// The datatype is never looked at: this float has no properties.
	bogus := []byte{0x11, 0, 0, 0, 8, 0, 0, 0}
	v1 := []byte{1, 0}
	v1 = append(v1, le16(6)...)
	v1 = append(v1, le16(8)...)
	v1 = append(v1, le16(8)...)
	v1 = append(v1, padTo8([]byte("units\x00"))...)
	v1 = append(v1, bogus...)
	v1 = append(v1, 1, 0, 0, 0, 0, 0, 0, 0)
	name, err = AttributeMessageName(v1)
	require.NoError(t, err)
	require.Equal(t, "units", name)
	_, err = ParseAttributeMessage(v1, testSB)
	require.ErrorContains(t, err, "datatype")

	_, err = AttributeMessageName(enc[:10])
	require.Error(t, err)
	_, err = AttributeMessageName([]byte{9, 0, 1, 0, 0, 0, 0, 0})
	require.Error(t, err)
}

func TestLinkMessages(t *testing.T) {
	enc, err := EncodeHardLink("scattering", 0x1234)
	require.NoError(t, err)
	lm, err := ParseLinkMessage(enc, testSB)
	require.NoError(t, err)
	require.Equal(t, "scattering", lm.Name)
	require.Equal(t, LinkHard, lm.Type)
	require.Equal(t, uint64(0x1234), lm.Address)

	_, err = EncodeHardLink("", 0)
	require.Error(t, err)

	li, err := ParseLinkInfo(EncodeLinkInfo(), testSB)
	require.NoError(t, err)
	require.False(t, li.Dense())

	// Soft link with explicit type and a creation order field.
	soft := []byte{1, 0x08 | 0x04, byte(LinkSoft)}
	soft = append(soft, le64(7)...)
	soft = append(soft, 4)
	soft = append(soft, "link"...)
	soft = append(soft, le16(5)...)
	soft = append(soft, "/data"...)
	lm, err = ParseLinkMessage(soft, testSB)
	require.NoError(t, err)
	require.Equal(t, LinkSoft, lm.Type)
	require.Equal(t, "/data", lm.SoftPath)
}

func le16(v uint16) []byte {
	b := make([]byte, 2)
	utils.EncodeUint(b, uint64(v), 2)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	utils.EncodeUint(b, uint64(v), 4)
	return b
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	utils.EncodeUint(b, v, 8)
	return b
}

func padTo8(b []byte) []byte {
	return append(append([]byte(nil), b...), make([]byte, align8(len(b))-len(b))...)
}
