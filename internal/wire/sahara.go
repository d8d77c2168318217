package wire

import (
	"unsafe"

	"github.com/edlkit/edl/internal/codec"
)

// Sahara command identifiers (spec §4.3).
const (
	SaharaCmdHello         uint32 = 0x01
	SaharaCmdHelloResp     uint32 = 0x02
	SaharaCmdReadData      uint32 = 0x03
	SaharaCmdEndImageTx    uint32 = 0x04
	SaharaCmdDone          uint32 = 0x05
	SaharaCmdDoneResp      uint32 = 0x06
	SaharaCmdReset         uint32 = 0x07
	SaharaCmdResetResp     uint32 = 0x08
	SaharaCmdMemoryDebug   uint32 = 0x09
	SaharaCmdMemoryRead    uint32 = 0x0A
	SaharaCmdCmdReady      uint32 = 0x0B
	SaharaCmdSwitchMode    uint32 = 0x0C
	SaharaCmdExec          uint32 = 0x0D
	SaharaCmdExecResp      uint32 = 0x0E
	SaharaCmdExecData      uint32 = 0x0F
	SaharaCmdReadData64    uint32 = 0x12
)

// Sahara hello-response mode selectors.
const (
	SaharaModeImageTxPending uint32 = 0x00
	SaharaModeCommandMode    uint32 = 0x03
)

// SaharaModeAuthRequired is a high bit the device ORs into HELLO's Mode
// field to request a signed digest before image transfer begins (spec
// §4.3's authentication hook). It never collides with the low-order mode
// selectors above.
const SaharaModeAuthRequired uint32 = 0x80000000

// Sahara CMD_EXEC sub-commands used for identity queries.
const (
	SaharaExecSerialNumRead uint32 = 0x01
	SaharaExecMSMHWIDRead   uint32 = 0x02
	SaharaExecOEMPKHashRead uint32 = 0x03
)

// SaharaHeader is the 8-byte command/length prefix common to every Sahara
// packet: command:u32 LE | length:u32 LE.
type SaharaHeader struct {
	Command uint32
	Length  uint32
}

var _ [8]byte = [unsafe.Sizeof(SaharaHeader{})]byte{}

func (h *SaharaHeader) Marshal(buf []byte) {
	codec.PutUint32LE(buf[0:4], h.Command)
	codec.PutUint32LE(buf[4:8], h.Length)
}

func (h *SaharaHeader) Unmarshal(buf []byte) error {
	if len(buf) < 8 {
		return codec.ErrInsufficientBuffer
	}
	cmd, _ := codec.Uint32LE(buf[0:4])
	length, _ := codec.Uint32LE(buf[4:8])
	h.Command = cmd
	h.Length = length
	return nil
}

// SaharaHelloPacket is the device's initial HELLO announcement body
// (follows SaharaHeader, 44 bytes).
type SaharaHelloPacket struct {
	Version       uint32
	MinVersion    uint32
	MaxCmdLen     uint32
	Mode          uint32
	Reserved1     uint32
	Reserved2     uint32
	Reserved3     uint32
	Reserved4     uint32
	Reserved5     uint32
	Reserved6     uint32
	Reserved7     uint32
}

var _ [44]byte = [unsafe.Sizeof(SaharaHelloPacket{})]byte{}

func (p *SaharaHelloPacket) Unmarshal(buf []byte) error {
	if len(buf) < 44 {
		return codec.ErrInsufficientBuffer
	}
	fields := []*uint32{
		&p.Version, &p.MinVersion, &p.MaxCmdLen, &p.Mode,
		&p.Reserved1, &p.Reserved2, &p.Reserved3, &p.Reserved4,
		&p.Reserved5, &p.Reserved6, &p.Reserved7,
	}
	for i, f := range fields {
		v, err := codec.Uint32LE(buf[i*4 : i*4+4])
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

// SaharaHelloRespPacket is the host's reply selecting a mode (44 bytes,
// same shape as SaharaHelloPacket on the wire).
type SaharaHelloRespPacket struct {
	Version    uint32
	MinVersion uint32
	Status     uint32
	Mode       uint32
	Reserved   [7]uint32
}

var _ [44]byte = [unsafe.Sizeof(SaharaHelloRespPacket{})]byte{}

func (p *SaharaHelloRespPacket) Marshal(buf []byte) {
	codec.PutUint32LE(buf[0:4], p.Version)
	codec.PutUint32LE(buf[4:8], p.MinVersion)
	codec.PutUint32LE(buf[8:12], p.Status)
	codec.PutUint32LE(buf[12:16], p.Mode)
	for i, v := range p.Reserved {
		codec.PutUint32LE(buf[16+i*4:20+i*4], v)
	}
}

// SaharaReadDataPacket is the device's image-chunk request (12-byte body).
type SaharaReadDataPacket struct {
	ImageID uint32
	Offset  uint32
	Length  uint32
}

var _ [12]byte = [unsafe.Sizeof(SaharaReadDataPacket{})]byte{}

func (p *SaharaReadDataPacket) Unmarshal(buf []byte) error {
	if len(buf) < 12 {
		return codec.ErrInsufficientBuffer
	}
	imageID, _ := codec.Uint32LE(buf[0:4])
	offset, _ := codec.Uint32LE(buf[4:8])
	length, _ := codec.Uint32LE(buf[8:12])
	p.ImageID = imageID
	p.Offset = offset
	p.Length = length
	return nil
}

// SaharaReadData64Packet is the 64-bit-offset variant of READ_DATA, used
// for loaders larger than 4 GiB image offsets (24-byte body).
type SaharaReadData64Packet struct {
	ImageID uint64
	Offset  uint64
	Length  uint64
}

var _ [24]byte = [unsafe.Sizeof(SaharaReadData64Packet{})]byte{}

func (p *SaharaReadData64Packet) Unmarshal(buf []byte) error {
	if len(buf) < 24 {
		return codec.ErrInsufficientBuffer
	}
	imageID, _ := codec.Uint64LE(buf[0:8])
	offset, _ := codec.Uint64LE(buf[8:16])
	length, _ := codec.Uint64LE(buf[16:24])
	p.ImageID = imageID
	p.Offset = offset
	p.Length = length
	return nil
}

// SaharaEndImageTxPacket reports completion (or rejection) of the image
// transfer (8-byte body).
type SaharaEndImageTxPacket struct {
	ImageID uint32
	Status  uint32
}

var _ [8]byte = [unsafe.Sizeof(SaharaEndImageTxPacket{})]byte{}

func (p *SaharaEndImageTxPacket) Unmarshal(buf []byte) error {
	if len(buf) < 8 {
		return codec.ErrInsufficientBuffer
	}
	imageID, _ := codec.Uint32LE(buf[0:4])
	status, _ := codec.Uint32LE(buf[4:8])
	p.ImageID = imageID
	p.Status = status
	return nil
}

// SaharaDonePacket / SaharaDoneRespPacket carry the DONE handshake that
// hands control to the loader; DONE has an empty body, DONE_RESP carries
// a single status word.
type SaharaDoneRespPacket struct {
	Status uint32
}

var _ [4]byte = [unsafe.Sizeof(SaharaDoneRespPacket{})]byte{}

func (p *SaharaDoneRespPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 {
		return codec.ErrInsufficientBuffer
	}
	status, _ := codec.Uint32LE(buf[0:4])
	p.Status = status
	return nil
}

// SaharaResetRespPacket acknowledges a RESET. RESET itself has no body.
type SaharaResetRespPacket struct{}

// SaharaCmdReadyPacket has no body; presence of CMD_READY is the signal.
type SaharaCmdReadyPacket struct{}

// SaharaSwitchModePacket requests a mode transition (4-byte body).
type SaharaSwitchModePacket struct {
	Mode uint32
}

var _ [4]byte = [unsafe.Sizeof(SaharaSwitchModePacket{})]byte{}

func (p *SaharaSwitchModePacket) Marshal(buf []byte) {
	codec.PutUint32LE(buf[0:4], p.Mode)
}

// SaharaCmdExecPacket requests execution of a numbered sub-command
// (4-byte body).
type SaharaCmdExecPacket struct {
	ClientCmd uint32
}

var _ [4]byte = [unsafe.Sizeof(SaharaCmdExecPacket{})]byte{}

func (p *SaharaCmdExecPacket) Marshal(buf []byte) {
	codec.PutUint32LE(buf[0:4], p.ClientCmd)
}

// SaharaCmdExecRespPacket announces the length of the CMD_EXEC_DATA that
// follows (8-byte body).
type SaharaCmdExecRespPacket struct {
	ClientCmd uint32
	DataLen   uint32
}

var _ [8]byte = [unsafe.Sizeof(SaharaCmdExecRespPacket{})]byte{}

func (p *SaharaCmdExecRespPacket) Unmarshal(buf []byte) error {
	if len(buf) < 8 {
		return codec.ErrInsufficientBuffer
	}
	clientCmd, _ := codec.Uint32LE(buf[0:4])
	dataLen, _ := codec.Uint32LE(buf[4:8])
	p.ClientCmd = clientCmd
	p.DataLen = dataLen
	return nil
}

// SaharaCmdExecDataPacket requests the data for a previously-announced
// CMD_EXEC response (4-byte body: the client command being acknowledged).
type SaharaCmdExecDataPacket struct {
	ClientCmd uint32
}

var _ [4]byte = [unsafe.Sizeof(SaharaCmdExecDataPacket{})]byte{}

func (p *SaharaCmdExecDataPacket) Marshal(buf []byte) {
	codec.PutUint32LE(buf[0:4], p.ClientCmd)
}
