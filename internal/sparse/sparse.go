// Package sparse lazily expands an Android sparse image into the
// sequence of sector-aligned regions a Firehose program command needs to
// stream: raw bytes, a fill pattern to repeat, or a skip.
package sparse

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/edlkit/edl/internal/wire"
)

// ErrNotSparse is returned by Detect when the stream does not begin with
// the sparse magic.
var ErrNotSparse = errors.New("sparse: not a sparse image")

// ErrBadMagic marks a malformed sparse chunk header.
var ErrBadMagic = errors.New("sparse: bad chunk header")

// RegionKind classifies one expanded region.
type RegionKind int

const (
	RegionRaw RegionKind = iota
	RegionFill
	RegionSkip
)

// Region is one unit of work for the Firehose program loop: either Data
// (for RegionRaw) or the 4-byte Fill pattern repeated across the region
// (for RegionFill), spanning NumBlocks blocks of the image's block size, or a
// DONT_CARE gap (RegionSkip) that requires starting a fresh program
// command at an advanced start_sector per spec §4.4.
type Region struct {
	Kind      RegionKind
	NumBlocks uint32
	Data      []byte // valid for RegionRaw
	Fill      uint32 // valid for RegionFill, a 4-byte repeating pattern
}

// Detect reports whether buf begins with the Android sparse magic.
func Detect(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	return binary.LittleEndian.Uint32(buf[0:4]) == wire.SparseMagicLE
}

// Image wraps a parsed sparse file header and the reader positioned
// immediately after it, yielding Regions on demand without materializing
// the expanded image in memory.
type Image struct {
	Header     wire.SparseFileHeader
	r          io.Reader
	chunksLeft uint32
}

// Open parses the file header from r and returns an Image ready to
// iterate via Next. r must be positioned at the start of the image.
func Open(r io.Reader) (*Image, error) {
	hdrBuf := make([]byte, wire.SparseFileHeaderSize)
	if _, err := io.ReadFull(r, hdrBuf); err != nil {
		return nil, err
	}
	var hdr wire.SparseFileHeader
	if err := hdr.Unmarshal(hdrBuf); err != nil {
		return nil, err
	}
	if !hdr.ValidMagic() {
		return nil, ErrNotSparse
	}
	return &Image{Header: hdr, r: r, chunksLeft: hdr.TotalChunks}, nil
}

// Next returns the next expanded region, or io.EOF once every chunk has
// been consumed.
func (img *Image) Next() (Region, error) {
	if img.chunksLeft == 0 {
		return Region{}, io.EOF
	}
	img.chunksLeft--

	chdrBuf := make([]byte, wire.SparseChunkHeaderSize)
	if _, err := io.ReadFull(img.r, chdrBuf); err != nil {
		return Region{}, err
	}
	var chdr wire.SparseChunkHeader
	if err := chdr.Unmarshal(chdrBuf); err != nil {
		return Region{}, err
	}

	switch chdr.ChunkType {
	case wire.SparseChunkRaw:
		payload := make([]byte, chdr.PayloadSize())
		if _, err := io.ReadFull(img.r, payload); err != nil {
			return Region{}, err
		}
		return Region{Kind: RegionRaw, NumBlocks: chdr.ChunkSz, Data: payload}, nil

	case wire.SparseChunkFill:
		payload := make([]byte, chdr.PayloadSize())
		if _, err := io.ReadFull(img.r, payload); err != nil {
			return Region{}, err
		}
		if len(payload) < 4 {
			return Region{}, ErrBadMagic
		}
		fill := binary.LittleEndian.Uint32(payload[0:4])
		return Region{Kind: RegionFill, NumBlocks: chdr.ChunkSz, Fill: fill}, nil

	case wire.SparseChunkDontCare:
		return Region{Kind: RegionSkip, NumBlocks: chdr.ChunkSz}, nil

	case wire.SparseChunkCRC32:
		// Trailer chunk carrying the whole-image CRC; consume and skip,
		// the engine does not verify it (not named as a requirement).
		payload := make([]byte, chdr.PayloadSize())
		if _, err := io.ReadFull(img.r, payload); err != nil {
			return Region{}, err
		}
		return img.Next()

	default:
		return Region{}, ErrBadMagic
	}
}

// RealByteCount walks every chunk header in data (without expanding FILL
// payloads into bytes) and returns the sum of RAW and FILL chunk output
// sizes in bytes, per spec §4.7's "real (non-skip) byte count" progress
// metric. data must contain the full image.
func RealByteCount(data []byte) (uint64, error) {
	r := bytes.NewReader(data)
	img, err := Open(r)
	if err != nil {
		return 0, err
	}

	var total uint64
	blockSize := uint64(img.Header.BlockSize)
	for {
		region, err := img.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		switch region.Kind {
		case RegionRaw, RegionFill:
			total += uint64(region.NumBlocks) * blockSize
		}
	}
	return total, nil
}
