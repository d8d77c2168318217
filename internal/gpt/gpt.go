// Package gpt parses and re-serializes GUID Partition Tables read from a
// Firehose-attached LUN, and derives Android A/B slot state from the
// partition attribute bits.
package gpt

import (
	"errors"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/edlkit/edl/internal/codec"
	"github.com/edlkit/edl/internal/wire"
)

// ErrBadMagic is returned when a header's signature or CRC fails
// validation; per spec §4.4 this causes that LUN to be skipped with a
// warning rather than aborting the whole GPT read.
var ErrBadMagic = errors.New("gpt: bad signature or crc")

// Partition is the decoded, name-resolved view of one GPT entry.
type Partition struct {
	Name        string
	LUN         int
	StartSector uint64
	NumSectors  uint64
	GUIDType    [16]byte
	Attributes  uint64
}

// Table is one LUN's parsed GPT: header plus the non-empty entries.
type Table struct {
	Header     wire.GptHeader
	Entries    []Partition
	EntryBytes []byte // raw entry array, for CRC recompute after edits
}

// Parse decodes sector 1 (the header) and the following entry array from
// a raw byte buffer covering at least sectors 0..33, as read by the
// Firehose driver's GPT read routine.
func Parse(raw []byte, sectorSize int, lun int) (*Table, error) {
	if len(raw) < 2*sectorSize {
		return nil, codec.ErrInsufficientBuffer
	}

	var hdr wire.GptHeader
	if err := hdr.Unmarshal(raw[sectorSize : sectorSize+wire.GptHeaderSize]); err != nil {
		return nil, err
	}
	if !hdr.ValidSignature() {
		return nil, ErrBadMagic
	}
	if !validHeaderCRC(&hdr, raw[sectorSize:sectorSize+wire.GptHeaderSize]) {
		return nil, ErrBadMagic
	}

	entryLBA := int(hdr.PartitionEntryLBA)
	entrySize := int(hdr.EntrySize)
	numEntries := int(hdr.NumEntries)
	if entrySize == 0 {
		entrySize = wire.GptEntrySize
	}
	if numEntries > wire.GptMaxEntries {
		numEntries = wire.GptMaxEntries
	}

	arrayOff := entryLBA * sectorSize
	arrayLen := numEntries * entrySize
	if arrayOff < 0 || arrayOff+arrayLen > len(raw) {
		return nil, codec.ErrInsufficientBuffer
	}
	entryBytes := raw[arrayOff : arrayOff+arrayLen]

	if codec.CRC32IEEE(entryBytes) != hdr.EntryArrayCRC32 {
		return nil, ErrBadMagic
	}

	table := &Table{Header: hdr, EntryBytes: entryBytes}
	for i := 0; i < numEntries; i++ {
		off := i * entrySize
		var e wire.GptEntry
		if err := e.Unmarshal(entryBytes[off : off+wire.GptEntrySize]); err != nil {
			return nil, err
		}
		if e.IsUnused() {
			continue
		}
		table.Entries = append(table.Entries, Partition{
			Name:        decodeUTF16Name(e.NameUTF16LE[:]),
			LUN:         lun,
			StartSector: e.StartingLBA,
			NumSectors:  e.EndingLBA - e.StartingLBA + 1,
			GUIDType:    e.PartitionTypeGUID,
			Attributes:  e.Attributes,
		})
	}
	return table, nil
}

func validHeaderCRC(hdr *wire.GptHeader, raw []byte) bool {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	// CRC is computed with the CRC field itself zeroed.
	codec.PutUint32LE(buf[16:20], 0)
	return codec.CRC32IEEE(buf) == hdr.HeaderCRC32
}

// FixCRCs recomputes HeaderCRC32 and EntryArrayCRC32 after the caller has
// mutated entries in place via EntryBytes, mirroring the "recompute
// CRCs, write back via patch" step of a batch write (spec §4.7).
func (t *Table) FixCRCs() {
	t.Header.EntryArrayCRC32 = codec.CRC32IEEE(t.EntryBytes)

	buf := make([]byte, wire.GptHeaderSize)
	t.Header.HeaderCRC32 = 0
	t.Header.Marshal(buf)
	codec.PutUint32LE(buf[16:20], 0)
	t.Header.HeaderCRC32 = codec.CRC32IEEE(buf)
}

func decodeUTF16Name(raw []byte) string {
	units := make([]uint16, len(raw)/2)
	for i := range units {
		u, _ := codec.Uint16LE(raw[i*2 : i*2+2])
		units[i] = u
	}
	// Trim at the first NUL code unit.
	for i, u := range units {
		if u == 0 {
			units = units[:i]
			break
		}
	}
	runes := utf16.Decode(units)
	buf := make([]byte, 0, len(runes)*utf8.UTFMax)
	for _, r := range runes {
		buf = utf8.AppendRune(buf, r)
	}
	return string(buf)
}
