package wire

import "github.com/edlkit/edl/internal/codec"

// BromHandshakeBytes is the 4-byte sequence the host sends one byte at a
// time during BROM bring-up; each sent byte must be echoed back as its
// bitwise complement (spec §4.5).
var BromHandshakeBytes = [4]byte{0xA0, 0x0A, 0x50, 0x05}

// DA post-jump sync words. Both are accepted as "DA alive"; which one
// was observed is reported back as DaSyncKind rather than asserting a
// single correct value (Open Question #1).
const (
	DaSyncDump   uint32 = 0xC1C2C3C4
	DaSyncBypass uint32 = 0xA1A2A3A4
)

// BROM/DA command codes, [cmd:u16 BE][args...][status:u16 BE].
const (
	BromCmdGetHwCode    uint16 = 0xFD
	BromCmdGetHwSwVer   uint16 = 0xFC
	BromCmdGetTargetCfg uint16 = 0xD8
	BromCmdGetMeid      uint16 = 0xE1
)

// BromHwInfo is the decoded response to the hardware-info query sequence:
// hw_code, hw_version, sw_version, a security-configuration byte bundling
// sbc/sla/daa flags, the 16-byte MEID and a chip name. ChipName is not
// itself queried from the device; it is resolved from HwCode against a
// static table, matching how SP Flash Tool-style hosts name chips.
type BromHwInfo struct {
	HwCode     uint16
	HwVersion  uint16
	SwVersion  uint16
	SecureBoot bool
	SLAEnabled bool
	DAAEnabled bool
	MEID       [16]byte
	ChipName   string
}

// SecurityConfig bit positions within the target-config status word.
const (
	BromSecCfgSBCBit uint16 = 1 << 0
	BromSecCfgSLABit uint16 = 1 << 1
	BromSecCfgDAABit uint16 = 1 << 2
)

// DecodeSecurityConfig splits a raw target-config status word into the
// three security flags used to decide whether an Authentication Strategy
// must run before DA upload proceeds.
func DecodeSecurityConfig(raw uint16) (sbc, sla, daa bool) {
	return raw&BromSecCfgSBCBit != 0, raw&BromSecCfgSLABit != 0, raw&BromSecCfgDAABit != 0
}

// EncodeU16BE / DecodeU16BE are thin wrappers kept here (rather than
// reused blindly from codec) so BROM call sites read as wire-level
// concerns; they simply delegate to codec's big-endian helpers.
func EncodeU16BE(v uint16) []byte {
	buf := make([]byte, 2)
	codec.PutUint16BE(buf, v)
	return buf
}

func DecodeU16BE(buf []byte) (uint16, error) {
	return codec.Uint16BE(buf)
}
