package codec

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXOR16Associative(t *testing.T) {
	a := []byte{0x01, 0x02, 0x03, 0x04}
	b := []byte{0xaa, 0xbb, 0xcc, 0xdd}
	ab := append(append([]byte{}, a...), b...)

	assert.Equal(t, XOR16(a)^XOR16(b), XOR16(ab))
}

func TestXOR16OddTrailingByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	want := uint16(0x0201) ^ uint16(0x0003)
	assert.Equal(t, want, XOR16(data))
}

func TestCRC32IEEEMatchesStdlib(t *testing.T) {
	data := []byte("the quick brown fox")
	assert.Equal(t, crc32.ChecksumIEEE(data), CRC32IEEE(data))
}

func TestCRC32Combine(t *testing.T) {
	a := []byte("hello, ")
	b := []byte("world!")
	whole := append(append([]byte{}, a...), b...)

	crcA := CRC32IEEE(a)
	crcB := CRC32IEEE(b)
	combined := CRC32Combine(crcA, crcB, int64(len(b)))

	assert.Equal(t, CRC32IEEE(whole), combined)
}

func TestCRC16CCITT(t *testing.T) {
	// Known test vector for CRC-16/CCITT-FALSE("123456789") = 0x29B1.
	got := CRC16CCITT([]byte("123456789"), 0xFFFF)
	assert.Equal(t, uint16(0x29B1), got)
}

func TestLittleEndianRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	PutUint64LE(buf, 0x0102030405060708)
	v, err := Uint64LE(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v)
}

func TestBigEndianRoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	PutUint32BE(buf, 0xdeadbeef)
	v, err := Uint32BE(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v)
}

func TestShortBufferErrors(t *testing.T) {
	_, err := Uint32LE([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrInsufficientBuffer)

	_, err = Uint16BE([]byte{})
	assert.ErrorIs(t, err, ErrInsufficientBuffer)
}

func TestHexString(t *testing.T) {
	assert.Equal(t, "deadbeef", HexString([]byte{0xde, 0xad, 0xbe, 0xef}))
}

func TestASCIIPrintable(t *testing.T) {
	assert.True(t, ASCIIPrintable([]byte("hello world")))
	assert.False(t, ASCIIPrintable([]byte{0x01, 0x02}))
}
