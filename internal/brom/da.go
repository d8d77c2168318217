package brom

import (
	"errors"
	"fmt"

	"github.com/edlkit/edl/internal/wire"
)

// ErrBadDaMagic is returned when a buffer does not begin with the
// MTK_DOWNLOAD_AGENT marker.
var ErrBadDaMagic = errors.New("brom: not a download-agent file")

// ErrChipNotFound is returned when no SoC entry in a DA file matches the
// hw_code queried from the device.
var ErrChipNotFound = errors.New("brom: no DA entry for this hw_code")

// DaFile is a parsed multi-SoC download-agent file (spec §4.5).
type DaFile struct {
	Header  wire.DaFileHeader
	Entries []wire.DaChipEntry
	raw     []byte
}

// ParseDaFile validates the magic prefix and walks the SoC entry table.
// Entries are variable width (0xD8 legacy or 0xDC v5/v6); the actual
// stride is derived from each entry's own RegionCount rather than assumed
// fixed, so legacy and v5/v6 files parse with the same loop.
func ParseDaFile(data []byte) (*DaFile, error) {
	if !wire.ValidDaMagicPrefix(data) {
		return nil, ErrBadDaMagic
	}
	var hdr wire.DaFileHeader
	if err := hdr.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("brom: decode DA header: %w", err)
	}

	entries := make([]wire.DaChipEntry, 0, hdr.SocCount)
	off := wire.DaHeaderSize
	for i := 0; i < int(hdr.SocCount); i++ {
		if off >= len(data) {
			return nil, fmt.Errorf("brom: DA entry %d starts past end of file", i)
		}
		var entry wire.DaChipEntry
		n, err := entry.Unmarshal(data[off:])
		if err != nil {
			return nil, fmt.Errorf("brom: decode DA entry %d: %w", i, err)
		}
		entries = append(entries, entry)
		off += n
	}

	return &DaFile{Header: hdr, Entries: entries, raw: data}, nil
}

// SelectChip locates the entry whose hw_code matches. DA1 is the first
// region (preloader helper), DA2 the second (full download agent); a
// chip entry with fewer than two regions cannot satisfy a normal upload.
func (f *DaFile) SelectChip(hwCode uint16) (*wire.DaChipEntry, error) {
	for i := range f.Entries {
		if f.Entries[i].HwCode == hwCode {
			return &f.Entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: hw_code=0x%04x", ErrChipNotFound, hwCode)
}

// RegionPayload slices the region's payload and trailing signature bytes
// directly out of the file buffer using its FileOffset/PayloadLen/SigLen.
func (f *DaFile) RegionPayload(region wire.DaRegionEntry) (payload, signature []byte, err error) {
	start := int(region.FileOffset)
	payloadEnd := start + int(region.PayloadLen)
	sigEnd := payloadEnd + int(region.SigLen)
	if sigEnd > len(f.raw) || start < 0 || payloadEnd < start {
		return nil, nil, fmt.Errorf("brom: region [%d,%d,%d) exceeds file length %d", start, payloadEnd, sigEnd, len(f.raw))
	}
	return f.raw[start:payloadEnd], f.raw[payloadEnd:sigEnd], nil
}
