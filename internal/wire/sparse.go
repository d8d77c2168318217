package wire

import (
	"unsafe"

	"github.com/edlkit/edl/internal/codec"
)

// Android sparse image constants (spec §3, §6).
const (
	SparseMagicLE uint32 = 0xED26FF3A

	SparseFileHeaderSize  = 28
	SparseChunkHeaderSize = 12

	SparseChunkRaw      uint16 = 0xCAC1
	SparseChunkFill     uint16 = 0xCAC2
	SparseChunkDontCare uint16 = 0xCAC3
	SparseChunkCRC32    uint16 = 0xCAC4
)

// SparseFileHeader is the 28-byte header at the start of an Android
// sparse image.
type SparseFileHeader struct {
	Magic          uint32
	MajorVersion   uint16
	MinorVersion   uint16
	FileHdrSize    uint16
	ChunkHdrSize   uint16
	BlockSize      uint32
	TotalBlocks    uint32
	TotalChunks    uint32
	ImageChecksum  uint32
}

var _ [28]byte = [unsafe.Sizeof(SparseFileHeader{})]byte{}

func (h *SparseFileHeader) Unmarshal(buf []byte) error {
	if len(buf) < SparseFileHeaderSize {
		return codec.ErrInsufficientBuffer
	}
	h.Magic, _ = codec.Uint32LE(buf[0:4])
	h.MajorVersion, _ = codec.Uint16LE(buf[4:6])
	h.MinorVersion, _ = codec.Uint16LE(buf[6:8])
	h.FileHdrSize, _ = codec.Uint16LE(buf[8:10])
	h.ChunkHdrSize, _ = codec.Uint16LE(buf[10:12])
	h.BlockSize, _ = codec.Uint32LE(buf[12:16])
	h.TotalBlocks, _ = codec.Uint32LE(buf[16:20])
	h.TotalChunks, _ = codec.Uint32LE(buf[20:24])
	h.ImageChecksum, _ = codec.Uint32LE(buf[24:28])
	return nil
}

func (h *SparseFileHeader) ValidMagic() bool {
	return h.Magic == SparseMagicLE
}

// SparseChunkHeader is the 12-byte header preceding each chunk's
// type-specific payload.
type SparseChunkHeader struct {
	ChunkType uint16
	Reserved  uint16
	ChunkSz   uint32 // chunk size in output blocks
	TotalSz   uint32 // total bytes of this chunk, header included
}

var _ [12]byte = [unsafe.Sizeof(SparseChunkHeader{})]byte{}

func (c *SparseChunkHeader) Unmarshal(buf []byte) error {
	if len(buf) < SparseChunkHeaderSize {
		return codec.ErrInsufficientBuffer
	}
	c.ChunkType, _ = codec.Uint16LE(buf[0:2])
	c.Reserved, _ = codec.Uint16LE(buf[2:4])
	c.ChunkSz, _ = codec.Uint32LE(buf[4:8])
	c.TotalSz, _ = codec.Uint32LE(buf[8:12])
	return nil
}

// PayloadSize returns the number of bytes following this header that
// belong to the chunk (TotalSz minus the header itself).
func (c *SparseChunkHeader) PayloadSize() uint32 {
	if c.TotalSz < SparseChunkHeaderSize {
		return 0
	}
	return c.TotalSz - SparseChunkHeaderSize
}
