package wire

import (
	"unsafe"

	"github.com/edlkit/edl/internal/codec"
)

// DA file layout constants (spec §4.5 / §6).
const (
	DaFileMagicASCII   = "MTK_DOWNLOAD_AGENT"
	DaIdentifierOffset = 0x20
	DaIdentifierSize   = 64
	DaVersionOffset    = 0x60
	DaMagicOffset      = 0x64
	DaMagicValue       = 0x99886622 // host byte order; wire carries 0xA2668899
	DaSocCountOffset   = 0x68
	DaHeaderSize       = 0x6A

	DaEntryMagic     uint16 = 0xADDA
	DaEntryRegionCap        = 6
	DaRegionSize            = 0x20
)

// DaFileHeader is the fixed prefix of a MediaTek download-agent file:
// ASCII "MTK_DOWNLOAD_AGENT" NUL-padded to 0x20, a 64-byte identifier
// string, a version, a magic value, and a SoC entry count. Entries
// immediately follow at DaHeaderSize.
type DaFileHeader struct {
	Identifier [DaIdentifierSize]byte
	Version    uint32
	Magic      uint32
	SocCount   uint16
}

// Unmarshal decodes the fixed header region from a full DA file buffer.
// Unlike the other wire structs, this one does not start at buf[0]:
// the 0x20-byte magic string prefix is validated separately so callers
// can report a clean BadMagic error before touching the rest.
func (h *DaFileHeader) Unmarshal(buf []byte) error {
	if len(buf) < DaHeaderSize {
		return codec.ErrInsufficientBuffer
	}
	copy(h.Identifier[:], buf[DaIdentifierOffset:DaIdentifierOffset+DaIdentifierSize])
	h.Version, _ = codec.Uint32LE(buf[DaVersionOffset : DaVersionOffset+4])
	h.Magic, _ = codec.Uint32LE(buf[DaMagicOffset : DaMagicOffset+4])
	h.SocCount, _ = codec.Uint16LE(buf[DaSocCountOffset : DaSocCountOffset+2])
	return nil
}

// ValidMagicPrefix reports whether buf begins with the ASCII
// "MTK_DOWNLOAD_AGENT" marker, NUL-padded through offset 0x20.
func ValidDaMagicPrefix(buf []byte) bool {
	if len(buf) < DaIdentifierOffset {
		return false
	}
	return string(buf[0:len(DaFileMagicASCII)]) == DaFileMagicASCII
}

// DaRegionEntry describes one loadable region within a per-chip DA entry
// (0x20 bytes on the wire).
type DaRegionEntry struct {
	FileOffset uint32
	TotalLen   uint32
	LoadAddr   uint32
	PayloadLen uint32
	SigLen     uint32
	Reserved   [12]byte
}

var _ [32]byte = [unsafe.Sizeof(DaRegionEntry{})]byte{}

func (r *DaRegionEntry) Unmarshal(buf []byte) error {
	if len(buf) < DaRegionSize {
		return codec.ErrInsufficientBuffer
	}
	r.FileOffset, _ = codec.Uint32LE(buf[0:4])
	r.TotalLen, _ = codec.Uint32LE(buf[4:8])
	r.LoadAddr, _ = codec.Uint32LE(buf[8:12])
	r.PayloadLen, _ = codec.Uint32LE(buf[12:16])
	r.SigLen, _ = codec.Uint32LE(buf[16:20])
	copy(r.Reserved[:], buf[20:32])
	return nil
}

// DaChipEntry is one per-SoC entry in the DA file's entry table. The
// on-wire size is either 0xD8 (legacy) or 0xDC (v5/v6); RegionTable is
// always capped at DaEntryRegionCap slots regardless of how many the
// on-disk RegionCount actually uses.
type DaChipEntry struct {
	Magic       uint16
	HwCode      uint16
	HwSubCode   uint16
	HwVersion   uint16
	Reserved    [8]byte
	RegionIndex uint16
	RegionCount uint16
	RegionTable [DaEntryRegionCap]DaRegionEntry
}

// daChipEntryFixedSize is the byte width of a chip entry up to (but not
// including) its region table: magic, hw_code, hw_sub_code, hw_version,
// 8 bytes reserved, region_index, region_count.
const daChipEntryFixedSize = 20

// Unmarshal decodes one chip entry starting at buf[0]. It returns the
// number of bytes consumed so the caller can advance to the next entry
// without assuming a single fixed stride.
func (e *DaChipEntry) Unmarshal(buf []byte) (int, error) {
	if len(buf) < daChipEntryFixedSize {
		return 0, codec.ErrInsufficientBuffer
	}
	e.Magic, _ = codec.Uint16LE(buf[0:2])
	e.HwCode, _ = codec.Uint16LE(buf[2:4])
	e.HwSubCode, _ = codec.Uint16LE(buf[4:6])
	e.HwVersion, _ = codec.Uint16LE(buf[6:8])
	copy(e.Reserved[:], buf[8:16])
	e.RegionIndex, _ = codec.Uint16LE(buf[16:18])
	e.RegionCount, _ = codec.Uint16LE(buf[18:20])

	off := daChipEntryFixedSize
	n := int(e.RegionCount)
	if n > DaEntryRegionCap {
		n = DaEntryRegionCap
	}
	for i := 0; i < n; i++ {
		if len(buf) < off+DaRegionSize {
			return 0, codec.ErrInsufficientBuffer
		}
		if err := e.RegionTable[i].Unmarshal(buf[off : off+DaRegionSize]); err != nil {
			return 0, err
		}
		off += DaRegionSize
	}
	return off, nil
}
