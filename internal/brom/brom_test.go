package brom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edlkit/edl/internal/auth"
	"github.com/edlkit/edl/internal/codec"
	"github.com/edlkit/edl/internal/logging"
	"github.com/edlkit/edl/internal/transport"
	"github.com/edlkit/edl/internal/wire"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(&logging.Config{Level: logging.LevelError})
}

func putU16BE(b []byte, v uint16) { b[0] = byte(v >> 8); b[1] = byte(v) }
func putU32BE(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func TestHandshakeSucceeds(t *testing.T) {
	mt := transport.NewMockTransport("mock0")
	for _, b := range wire.BromHandshakeBytes {
		mt.QueueRead([]byte{^b})
	}
	s := NewSession(mt, testLogger(), nil)
	require.NoError(t, s.Handshake(context.Background()))

	writes := mt.Writes()
	require.Len(t, writes, 4)
	for i, b := range wire.BromHandshakeBytes {
		assert.Equal(t, []byte{b}, writes[i])
	}
}

func TestHandshakeMismatchFails(t *testing.T) {
	mt := transport.NewMockTransport("mock0")
	mt.QueueRead([]byte{0xFF}) // wrong echo for the first byte
	s := NewSession(mt, testLogger(), nil)
	err := s.Handshake(context.Background())
	require.Error(t, err)
	var mismatch *ErrHandshakeFailed
	assert.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 0, mismatch.Index)
}

func queuedQuery(mt *transport.MockTransport, cmd uint16, datum []byte) {
	echo := make([]byte, 2)
	putU16BE(echo, cmd)
	mt.QueueRead(echo)
	if len(datum) > 0 {
		mt.QueueRead(datum)
	}
	mt.QueueRead([]byte{0x00, 0x00}) // status
}

func TestQueryHwInfo(t *testing.T) {
	mt := transport.NewMockTransport("mock0")

	hwCode := make([]byte, 2)
	putU16BE(hwCode, 0x0279)
	queuedQuery(mt, wire.BromCmdGetHwCode, hwCode)

	swVer := make([]byte, 4)
	putU16BE(swVer[0:2], 1)
	putU16BE(swVer[2:4], 2)
	queuedQuery(mt, wire.BromCmdGetHwSwVer, swVer)

	cfg := make([]byte, 2)
	putU16BE(cfg, wire.BromSecCfgSLABit)
	queuedQuery(mt, wire.BromCmdGetTargetCfg, cfg)

	meid := make([]byte, 16)
	for i := range meid {
		meid[i] = byte(i)
	}
	queuedQuery(mt, wire.BromCmdGetMeid, meid)

	s := NewSession(mt, testLogger(), nil)
	info, err := s.QueryHwInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0279), info.HwCode)
	assert.Equal(t, uint16(1), info.HwVersion)
	assert.Equal(t, uint16(2), info.SwVersion)
	assert.True(t, info.SLAEnabled)
	assert.False(t, info.DAAEnabled)
	assert.Equal(t, "MT6779", info.ChipName)
	assert.Equal(t, meid, info.MEID[:])
}

func TestQueryHwInfoBadEchoFails(t *testing.T) {
	mt := transport.NewMockTransport("mock0")
	badEcho := make([]byte, 2)
	putU16BE(badEcho, 0xAAAA)
	mt.QueueRead(badEcho)
	s := NewSession(mt, testLogger(), nil)
	_, err := s.QueryHwInfo(context.Background())
	assert.Error(t, err)
}

func buildDaFile(t *testing.T, hwCode uint16, da1, da2 []byte) []byte {
	t.Helper()

	const hdrSize = wire.DaHeaderSize
	entryOff := hdrSize
	entrySize := daChipEntryFixedSizeForTest + 2*wire.DaRegionSize
	total := entryOff + entrySize

	buf := make([]byte, total)
	copy(buf, wire.DaFileMagicASCII)
	putU32BE32LE(buf[wire.DaMagicOffset:wire.DaMagicOffset+4], wire.DaMagicValue)
	buf[wire.DaSocCountOffset] = 1

	e := entryOff
	putU16LE(buf[e:e+2], wire.DaEntryMagic)
	putU16LE(buf[e+2:e+4], hwCode)
	putU16LE(buf[e+16:e+18], 0) // region_index
	putU16LE(buf[e+18:e+20], 2) // region_count

	region1Off := e + daChipEntryFixedSizeForTest
	region2Off := region1Off + wire.DaRegionSize

	da1Start := total
	writeRegion(buf, region1Off, uint32(da1Start), uint32(len(da1)), 0, 0)
	buf = append(buf, da1...)

	da2Start := len(buf)
	writeRegion(buf, region2Off, uint32(da2Start), uint32(len(da2)), 0, 0)
	buf = append(buf, da2...)

	return buf
}

const daChipEntryFixedSizeForTest = 20

func writeRegion(buf []byte, off int, fileOffset, payloadLen, loadAddr, sigLen uint32) {
	putU32LE(buf[off:off+4], fileOffset)
	putU32LE(buf[off+4:off+8], payloadLen+sigLen)
	putU32LE(buf[off+8:off+12], loadAddr)
	putU32LE(buf[off+12:off+16], payloadLen)
	putU32LE(buf[off+16:off+20], sigLen)
}

func putU16LE(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putU32BE32LE(b []byte, v uint32) { putU32LE(b, v) }

func TestParseDaFileAndSelectChip(t *testing.T) {
	da1 := []byte("preloader-helper")
	da2 := []byte("full-download-agent-payload")
	buf := buildDaFile(t, 0x0279, da1, da2)

	f, err := ParseDaFile(buf)
	require.NoError(t, err)
	require.Len(t, f.Entries, 1)

	chip, err := f.SelectChip(0x0279)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), chip.RegionCount)

	p1, sig1, err := f.RegionPayload(chip.RegionTable[0])
	require.NoError(t, err)
	assert.Equal(t, da1, p1)
	assert.Empty(t, sig1)

	p2, _, err := f.RegionPayload(chip.RegionTable[1])
	require.NoError(t, err)
	assert.Equal(t, da2, p2)

	_, err = f.SelectChip(0xFFFF)
	assert.ErrorIs(t, err, ErrChipNotFound)
}

func TestUploadDASucceedsWithDumpSync(t *testing.T) {
	da1 := []byte("helper")
	da2 := []byte("agent-payload")
	buf := buildDaFile(t, 0x0279, da1, da2)
	file, err := ParseDaFile(buf)
	require.NoError(t, err)

	mt := transport.NewMockTransport("mock0")
	// region 1: header-status, checksum
	mt.QueueRead([]byte{0x00, 0x00})
	mt.QueueRead(checksumBytes(da1))
	// region 2
	mt.QueueRead([]byte{0x00, 0x00})
	mt.QueueRead(checksumBytes(da2))
	// sync word
	syncBuf := make([]byte, 4)
	putU32BE(syncBuf, wire.DaSyncDump)
	mt.QueueRead(syncBuf)

	info := wire.BromHwInfo{HwCode: 0x0279}
	s := NewSession(mt, testLogger(), nil)
	kind, err := s.UploadDA(context.Background(), file, info)
	require.NoError(t, err)
	assert.Equal(t, DaSyncDump, kind)
}

func checksumBytes(data []byte) []byte {
	buf := make([]byte, 2)
	putU16BE(buf, codec.XOR16(data))
	return buf
}

func TestUploadDAChecksumMismatchFails(t *testing.T) {
	da1 := []byte("helper")
	da2 := []byte("agent-payload")
	buf := buildDaFile(t, 0x0279, da1, da2)
	file, err := ParseDaFile(buf)
	require.NoError(t, err)

	mt := transport.NewMockTransport("mock0")
	mt.QueueRead([]byte{0x00, 0x00})
	mt.QueueRead([]byte{0xDE, 0xAD}) // wrong checksum

	info := wire.BromHwInfo{HwCode: 0x0279}
	s := NewSession(mt, testLogger(), nil)
	_, err = s.UploadDA(context.Background(), file, info)
	var mismatch *ErrChecksumMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestUploadDAUnexpectedSyncFails(t *testing.T) {
	da1 := []byte("helper")
	da2 := []byte("agent-payload")
	buf := buildDaFile(t, 0x0279, da1, da2)
	file, err := ParseDaFile(buf)
	require.NoError(t, err)

	mt := transport.NewMockTransport("mock0")
	mt.QueueRead([]byte{0x00, 0x00})
	mt.QueueRead(checksumBytes(da1))
	mt.QueueRead([]byte{0x00, 0x00})
	mt.QueueRead(checksumBytes(da2))
	mt.QueueRead([]byte{0x11, 0x22, 0x33, 0x44}) // garbage sync word

	info := wire.BromHwInfo{HwCode: 0x0279}
	s := NewSession(mt, testLogger(), nil)
	_, err = s.UploadDA(context.Background(), file, info)
	var unexpected *ErrUnexpectedSync
	assert.ErrorAs(t, err, &unexpected)
}

func TestUploadDARunsSlaGateWhenAdvertised(t *testing.T) {
	da1 := []byte("helper")
	da2 := []byte("agent-payload")
	buf := buildDaFile(t, 0x0279, da1, da2)
	file, err := ParseDaFile(buf)
	require.NoError(t, err)

	mt := transport.NewMockTransport("mock0")
	mt.QueueRead([]byte{0x00, 0x00})
	mt.QueueRead(checksumBytes(da1))
	mt.QueueRead([]byte{0x00, 0x00})
	mt.QueueRead(checksumBytes(da2))
	syncBuf := make([]byte, 4)
	putU32BE(syncBuf, wire.DaSyncBypass)
	mt.QueueRead(syncBuf)
	mt.QueueRead(make([]byte, 16))    // SLA challenge
	mt.QueueRead([]byte{0x00, 0x00}) // SLA gate status

	info := wire.BromHwInfo{HwCode: 0x0279, SLAEnabled: true}
	s := NewSession(mt, testLogger(), &slaStub{sig: []byte{0x01, 0x02}})
	kind, err := s.UploadDA(context.Background(), file, info)
	require.NoError(t, err)
	assert.Equal(t, DaSyncBypass, kind)
}

type slaStub struct{ sig []byte }

func (s *slaStub) Name() string { return "sla-stub" }
func (s *slaStub) Authenticate(_ context.Context, _ auth.Handle, _ []byte) ([]byte, error) {
	return s.sig, nil
}
