package wire

import (
	"unsafe"

	"github.com/edlkit/edl/internal/codec"
)

// GPT on-disk constants (spec §6).
const (
	GptSignature   = "EFI PART"
	GptRevision    = 0x00010000
	GptHeaderSize  = 92
	GptEntrySize   = 128
	GptMaxEntries  = 128
)

// GptHeader is the 92-byte primary/backup GPT header at LBA 1 (or the
// backup LBA). Field order and widths match the UEFI spec exactly; the
// struct is decoded/encoded manually because the on-disk layout is fixed
// by an external standard, not by this program.
type GptHeader struct {
	Signature          [8]byte
	Revision           uint32
	HeaderSize         uint32
	HeaderCRC32        uint32
	Reserved           uint32
	CurrentLBA         uint64
	BackupLBA          uint64
	FirstUsableLBA     uint64
	LastUsableLBA      uint64
	DiskGUID           [16]byte
	PartitionEntryLBA  uint64
	NumEntries         uint32
	EntrySize          uint32
	EntryArrayCRC32    uint32
}

// In memory the struct is 96 bytes: alignment adds 4 bytes of padding
// after the 92 on-disk bytes, which Marshal/Unmarshal bound by
// GptHeaderSize.
var _ [96]byte = [unsafe.Sizeof(GptHeader{})]byte{}

// Unmarshal decodes a 92-byte GPT header from buf.
func (h *GptHeader) Unmarshal(buf []byte) error {
	if len(buf) < GptHeaderSize {
		return codec.ErrInsufficientBuffer
	}
	copy(h.Signature[:], buf[0:8])
	h.Revision, _ = codec.Uint32LE(buf[8:12])
	h.HeaderSize, _ = codec.Uint32LE(buf[12:16])
	h.HeaderCRC32, _ = codec.Uint32LE(buf[16:20])
	h.Reserved, _ = codec.Uint32LE(buf[20:24])
	h.CurrentLBA, _ = codec.Uint64LE(buf[24:32])
	h.BackupLBA, _ = codec.Uint64LE(buf[32:40])
	h.FirstUsableLBA, _ = codec.Uint64LE(buf[40:48])
	h.LastUsableLBA, _ = codec.Uint64LE(buf[48:56])
	copy(h.DiskGUID[:], buf[56:72])
	h.PartitionEntryLBA, _ = codec.Uint64LE(buf[72:80])
	h.NumEntries, _ = codec.Uint32LE(buf[80:84])
	h.EntrySize, _ = codec.Uint32LE(buf[84:88])
	h.EntryArrayCRC32, _ = codec.Uint32LE(buf[88:92])
	return nil
}

// Marshal encodes the header back to 92 bytes, for use after FixGpt
// recomputes the CRC fields.
func (h *GptHeader) Marshal(buf []byte) {
	copy(buf[0:8], h.Signature[:])
	codec.PutUint32LE(buf[8:12], h.Revision)
	codec.PutUint32LE(buf[12:16], h.HeaderSize)
	codec.PutUint32LE(buf[16:20], h.HeaderCRC32)
	codec.PutUint32LE(buf[20:24], h.Reserved)
	codec.PutUint64LE(buf[24:32], h.CurrentLBA)
	codec.PutUint64LE(buf[32:40], h.BackupLBA)
	codec.PutUint64LE(buf[40:48], h.FirstUsableLBA)
	codec.PutUint64LE(buf[48:56], h.LastUsableLBA)
	copy(buf[56:72], h.DiskGUID[:])
	codec.PutUint64LE(buf[72:80], h.PartitionEntryLBA)
	codec.PutUint32LE(buf[80:84], h.NumEntries)
	codec.PutUint32LE(buf[84:88], h.EntrySize)
	codec.PutUint32LE(buf[88:92], h.EntryArrayCRC32)
}

// ValidSignature reports whether Signature reads "EFI PART".
func (h *GptHeader) ValidSignature() bool {
	return string(h.Signature[:]) == GptSignature
}

// GptEntry is one 128-byte partition entry. Name is UTF-16LE on the wire
// (36 code units); it is decoded to a Go string by the gpt package, not
// here, since wire only owns the raw byte layout.
type GptEntry struct {
	PartitionTypeGUID [16]byte
	UniquePartitionGUID [16]byte
	StartingLBA       uint64
	EndingLBA         uint64
	Attributes        uint64
	NameUTF16LE       [72]byte
}

var _ [128]byte = [unsafe.Sizeof(GptEntry{})]byte{}

func (e *GptEntry) Unmarshal(buf []byte) error {
	if len(buf) < GptEntrySize {
		return codec.ErrInsufficientBuffer
	}
	copy(e.PartitionTypeGUID[:], buf[0:16])
	copy(e.UniquePartitionGUID[:], buf[16:32])
	e.StartingLBA, _ = codec.Uint64LE(buf[32:40])
	e.EndingLBA, _ = codec.Uint64LE(buf[40:48])
	e.Attributes, _ = codec.Uint64LE(buf[48:56])
	copy(e.NameUTF16LE[:], buf[56:128])
	return nil
}

func (e *GptEntry) Marshal(buf []byte) {
	copy(buf[0:16], e.PartitionTypeGUID[:])
	copy(buf[16:32], e.UniquePartitionGUID[:])
	codec.PutUint64LE(buf[32:40], e.StartingLBA)
	codec.PutUint64LE(buf[40:48], e.EndingLBA)
	codec.PutUint64LE(buf[48:56], e.Attributes)
	copy(buf[56:128], e.NameUTF16LE[:])
}

// IsUnused reports whether the entry's type GUID is all-zero, the UEFI
// convention for an empty slot in the entry array.
func (e *GptEntry) IsUnused() bool {
	for _, b := range e.PartitionTypeGUID {
		if b != 0 {
			return false
		}
	}
	return true
}

// Slot attribute bits (Android A/B convention, spec §4.4 "Slot detection").
const (
	GptAttrSlotPriorityShift  = 48
	GptAttrSlotActiveShift    = 49
	GptAttrSlotSuccessfulShift = 50
)

func (e *GptEntry) SlotActive() bool {
	return (e.Attributes>>GptAttrSlotActiveShift)&1 == 1
}

func (e *GptEntry) SlotSuccessful() bool {
	return (e.Attributes>>GptAttrSlotSuccessfulShift)&1 == 1
}

func (e *GptEntry) SlotPriority() uint64 {
	return (e.Attributes >> GptAttrSlotPriorityShift) & 0x3
}
