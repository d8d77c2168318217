package wire

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructSizes(t *testing.T) {
	tests := []struct {
		name     string
		size     uintptr
		expected int
	}{
		{"SaharaHeader", unsafe.Sizeof(SaharaHeader{}), 8},
		{"SaharaHelloPacket", unsafe.Sizeof(SaharaHelloPacket{}), 44},
		{"SaharaHelloRespPacket", unsafe.Sizeof(SaharaHelloRespPacket{}), 44},
		{"SaharaReadDataPacket", unsafe.Sizeof(SaharaReadDataPacket{}), 12},
		{"SaharaReadData64Packet", unsafe.Sizeof(SaharaReadData64Packet{}), 24},
		{"SaharaEndImageTxPacket", unsafe.Sizeof(SaharaEndImageTxPacket{}), 8},
		{"SaharaDoneRespPacket", unsafe.Sizeof(SaharaDoneRespPacket{}), 4},
		{"SaharaSwitchModePacket", unsafe.Sizeof(SaharaSwitchModePacket{}), 4},
		{"SaharaCmdExecPacket", unsafe.Sizeof(SaharaCmdExecPacket{}), 4},
		{"SaharaCmdExecRespPacket", unsafe.Sizeof(SaharaCmdExecRespPacket{}), 8},
		{"SaharaCmdExecDataPacket", unsafe.Sizeof(SaharaCmdExecDataPacket{}), 4},
		{"GptHeader", unsafe.Sizeof(GptHeader{}), 96}, // 92 on-disk bytes + 4 bytes alignment padding
		{"GptEntry", unsafe.Sizeof(GptEntry{}), 128},
		{"DaRegionEntry", unsafe.Sizeof(DaRegionEntry{}), 32},
		{"SparseFileHeader", unsafe.Sizeof(SparseFileHeader{}), 28},
		{"SparseChunkHeader", unsafe.Sizeof(SparseChunkHeader{}), 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, int(tt.size))
		})
	}
}

func TestSaharaHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	h := SaharaHeader{Command: SaharaCmdHello, Length: 48}
	h.Marshal(buf)

	var got SaharaHeader
	require.NoError(t, got.Unmarshal(buf))
	assert.Equal(t, h, got)
}

func TestSaharaHeaderShortBuffer(t *testing.T) {
	var h SaharaHeader
	assert.Error(t, h.Unmarshal(make([]byte, 4)))
}

func TestSaharaHelloRespMarshal(t *testing.T) {
	buf := make([]byte, 44)
	p := SaharaHelloRespPacket{Version: 2, MinVersion: 1, Status: 0, Mode: SaharaModeCommandMode}
	p.Marshal(buf)

	version, _ := buf[0], buf[4]
	_ = version
	assert.Equal(t, byte(2), buf[0])
	assert.Equal(t, byte(SaharaModeCommandMode), buf[12])
}

func TestGptHeaderRoundTrip(t *testing.T) {
	h := GptHeader{
		Signature:         [8]byte{'E', 'F', 'I', ' ', 'P', 'A', 'R', 'T'},
		Revision:          GptRevision,
		HeaderSize:        GptHeaderSize,
		NumEntries:        128,
		EntrySize:         GptEntrySize,
		CurrentLBA:        1,
		BackupLBA:         100,
		PartitionEntryLBA: 2,
	}
	buf := make([]byte, GptHeaderSize)
	h.Marshal(buf)

	var got GptHeader
	require.NoError(t, got.Unmarshal(buf))
	assert.Equal(t, h, got)
	assert.True(t, got.ValidSignature())
}

func TestGptEntrySlotBits(t *testing.T) {
	e := GptEntry{Attributes: 1 << GptAttrSlotActiveShift}
	assert.True(t, e.SlotActive())
	assert.False(t, e.SlotSuccessful())
}

func TestGptEntryIsUnused(t *testing.T) {
	var e GptEntry
	assert.True(t, e.IsUnused())
	e.PartitionTypeGUID[0] = 1
	assert.False(t, e.IsUnused())
}

func TestDaChipEntryUnmarshal(t *testing.T) {
	buf := make([]byte, daChipEntryFixedSize+32)
	putU16 := func(off int, v uint16) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
	}
	putU16(0, DaEntryMagic)
	putU16(2, 0x0279) // hw_code
	putU16(16, 0)     // region_index
	putU16(18, 1)     // region_count

	var e DaChipEntry
	n, err := e.Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, daChipEntryFixedSize+32, n)
	assert.Equal(t, DaEntryMagic, e.Magic)
	assert.Equal(t, uint16(0x0279), e.HwCode)
}

func TestValidDaMagicPrefix(t *testing.T) {
	buf := make([]byte, DaIdentifierOffset)
	copy(buf, DaFileMagicASCII)
	assert.True(t, ValidDaMagicPrefix(buf))
	assert.False(t, ValidDaMagicPrefix(make([]byte, DaIdentifierOffset)))
}

func TestSparseFileHeaderUnmarshal(t *testing.T) {
	buf := make([]byte, SparseFileHeaderSize)
	buf[0], buf[1], buf[2], buf[3] = 0x3A, 0xFF, 0x26, 0xED
	buf[8] = byte(SparseFileHeaderSize)
	buf[10] = byte(SparseChunkHeaderSize)

	var h SparseFileHeader
	require.NoError(t, h.Unmarshal(buf))
	assert.True(t, h.ValidMagic())
	assert.Equal(t, uint16(SparseFileHeaderSize), h.FileHdrSize)
}

func TestSparseChunkHeaderPayloadSize(t *testing.T) {
	c := SparseChunkHeader{TotalSz: SparseChunkHeaderSize + 4096}
	assert.Equal(t, uint32(4096), c.PayloadSize())

	zero := SparseChunkHeader{TotalSz: 4}
	assert.Equal(t, uint32(0), zero.PayloadSize())
}

func TestDecodeSecurityConfig(t *testing.T) {
	sbc, sla, daa := DecodeSecurityConfig(BromSecCfgSBCBit | BromSecCfgDAABit)
	assert.True(t, sbc)
	assert.False(t, sla)
	assert.True(t, daa)
}
