package sparse

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edlkit/edl/internal/codec"
	"github.com/edlkit/edl/internal/wire"
)

const blockSize = 4096

func appendChunkHeader(buf []byte, chunkType uint16, chunkSz uint32, payloadLen int) []byte {
	hdr := make([]byte, wire.SparseChunkHeaderSize)
	codec.PutUint16LE(hdr[0:2], chunkType)
	codec.PutUint16LE(hdr[2:4], 0)
	codec.PutUint32LE(hdr[4:8], chunkSz)
	codec.PutUint32LE(hdr[8:12], uint32(wire.SparseChunkHeaderSize+payloadLen))
	return append(buf, hdr...)
}

func buildSparseImage(t *testing.T, rawPayload []byte, fillPattern uint32, dontCareBlocks uint32) []byte {
	t.Helper()

	var chunks [][]byte

	raw := appendChunkHeader(nil, wire.SparseChunkRaw, uint32(len(rawPayload))/blockSize, len(rawPayload))
	raw = append(raw, rawPayload...)
	chunks = append(chunks, raw)

	fillPayload := make([]byte, 4)
	codec.PutUint32LE(fillPayload, fillPattern)
	fill := appendChunkHeader(nil, wire.SparseChunkFill, 2, len(fillPayload))
	fill = append(fill, fillPayload...)
	chunks = append(chunks, fill)

	dontCare := appendChunkHeader(nil, wire.SparseChunkDontCare, dontCareBlocks, 0)
	chunks = append(chunks, dontCare)

	hdr := make([]byte, wire.SparseFileHeaderSize)
	codec.PutUint32LE(hdr[0:4], wire.SparseMagicLE)
	codec.PutUint16LE(hdr[4:6], 1)
	codec.PutUint16LE(hdr[6:8], 0)
	codec.PutUint16LE(hdr[8:10], uint16(wire.SparseFileHeaderSize))
	codec.PutUint16LE(hdr[10:12], uint16(wire.SparseChunkHeaderSize))
	codec.PutUint32LE(hdr[12:16], blockSize)
	totalBlocks := uint32(len(rawPayload))/blockSize + 2 + dontCareBlocks
	codec.PutUint32LE(hdr[16:20], totalBlocks)
	codec.PutUint32LE(hdr[20:24], uint32(len(chunks)))
	codec.PutUint32LE(hdr[24:28], 0)

	out := append([]byte{}, hdr...)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func TestDetect(t *testing.T) {
	raw := buildSparseImage(t, bytes.Repeat([]byte{0xAB}, blockSize), 0xDEADBEEF, 10)
	assert.True(t, Detect(raw))
	assert.False(t, Detect([]byte{0, 0, 0, 0}))
	assert.False(t, Detect(nil))
}

func TestOpenRejectsNonSparse(t *testing.T) {
	_, err := Open(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	assert.Error(t, err)
}

func TestIterateRegions(t *testing.T) {
	rawPayload := bytes.Repeat([]byte{0x5A}, blockSize)
	img := buildSparseImage(t, rawPayload, 0xCAFEBABE, 10)

	sp, err := Open(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, wire.SparseMagicLE, sp.Header.Magic)
	assert.Equal(t, uint32(blockSize), sp.Header.BlockSize)

	r1, err := sp.Next()
	require.NoError(t, err)
	assert.Equal(t, RegionRaw, r1.Kind)
	assert.Equal(t, rawPayload, r1.Data)
	assert.Equal(t, uint32(1), r1.NumBlocks)

	r2, err := sp.Next()
	require.NoError(t, err)
	assert.Equal(t, RegionFill, r2.Kind)
	assert.Equal(t, uint32(0xCAFEBABE), r2.Fill)
	assert.Equal(t, uint32(2), r2.NumBlocks)

	r3, err := sp.Next()
	require.NoError(t, err)
	assert.Equal(t, RegionSkip, r3.Kind)
	assert.Equal(t, uint32(10), r3.NumBlocks)

	_, err = sp.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRealByteCountSkipsDontCare(t *testing.T) {
	rawPayload := bytes.Repeat([]byte{0x11}, blockSize)
	img := buildSparseImage(t, rawPayload, 0x22222222, 1000)

	n, err := RealByteCount(img)
	require.NoError(t, err)
	// 1 raw block + 2 fill blocks = 3 blocks of real data; the 1000
	// DONT_CARE blocks must not count toward progress.
	assert.Equal(t, uint64(3*blockSize), n)
}
