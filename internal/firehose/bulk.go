package firehose

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/edlkit/edl/internal/queue"
	"github.com/edlkit/edl/internal/sparse"
)

// ProgressFunc is invoked after every chunk of a bulk transfer, with the
// cumulative byte count written or read so far. Implementations must be
// fast and non-blocking; this is the "UI thread is a pure observer"
// boundary named in spec §5.
type ProgressFunc func(bytesDone uint64)

// Program streams src as the payload of a single program command
// covering numSectors sectors starting at startSector on lun. src must
// yield exactly numSectors*sectorSize bytes.
func (s *Session) Program(ctx context.Context, lun int, startSector, numSectors uint64, src io.Reader, onProgress ProgressFunc) error {
	cmd := ProgramCmd{
		SectorSizeInBytes:       s.sectorSize,
		PhysicalPartitionNumber: lun,
		StartSector:             strconv.FormatUint(startSector, 10),
		NumPartitionSectors:     numSectors,
	}
	resp, err := s.sendCommand(ctx, cmd)
	if err != nil {
		return err
	}
	if err := resp.CheckAck(); err != nil {
		return err
	}

	total := numSectors * uint64(s.sectorSize)
	if err := s.streamOut(ctx, src, total, onProgress); err != nil {
		return err
	}

	final, err := s.readResponse(ctx, bulkChunkTimeout)
	if err != nil {
		return fmt.Errorf("firehose: program final response: %w", err)
	}
	return final.CheckAck()
}

// streamOut writes exactly total bytes from src in chunks no larger
// than s.maxPayloadSize, using the pooled chunk buffer.
func (s *Session) streamOut(ctx context.Context, src io.Reader, total uint64, onProgress ProgressFunc) error {
	chunkSize := int(s.maxPayloadSize)
	if chunkSize <= 0 {
		chunkSize = defaultMaxPayload
	}
	buf := queue.GetBuffer(chunkSize)
	defer queue.PutBuffer(buf)

	var done uint64
	for done < total {
		want := uint64(chunkSize)
		if remaining := total - done; remaining < want {
			want = remaining
		}
		n, err := io.ReadFull(src, buf[:want])
		if err != nil {
			return fmt.Errorf("firehose: read source at offset %d: %w", done, err)
		}
		if err := s.t.Write(ctx, buf[:n]); err != nil {
			return fmt.Errorf("firehose: write chunk at offset %d: %w", done, err)
		}
		done += uint64(n)
		if onProgress != nil {
			onProgress(done)
		}
	}
	return nil
}

// ProgramSparse expands a full Android sparse image in memory (already
// loaded as sparseData) and issues one program command per non-skipped
// region, advancing start_sector across DONT_CARE gaps without writing
// them (spec §4.4, invariant 2). Values passed to onProgress count only
// RAW and FILL bytes; the matching total is
// sparse.RealByteCount(sparseData), which the caller computes.
func (s *Session) ProgramSparse(ctx context.Context, lun int, baseStartSector uint64, sparseData []byte, onProgress ProgressFunc) error {
	img, err := sparse.Open(&byteReader{sparseData})
	if err != nil {
		return fmt.Errorf("firehose: open sparse image: %w", err)
	}

	sectorSize := uint64(s.sectorSize)
	blockSize := uint64(img.Header.BlockSize)
	if sectorSize == 0 {
		return fmt.Errorf("firehose: sparse program requires Configure to have run")
	}

	cursor := baseStartSector
	var doneBytes uint64

	for {
		region, err := img.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("firehose: decode sparse chunk: %w", err)
		}

		blocks := uint64(region.NumBlocks)
		byteLen := blocks * blockSize
		sectors := byteLen / sectorSize

		switch region.Kind {
		case sparse.RegionSkip:
			cursor += sectors

		case sparse.RegionRaw:
			if err := s.Program(ctx, lun, cursor, sectors, &byteReader{region.Data}, func(n uint64) {
				if onProgress != nil {
					onProgress(doneBytes + n)
				}
			}); err != nil {
				return err
			}
			doneBytes += byteLen
			cursor += sectors

		case sparse.RegionFill:
			fillBuf := make([]byte, byteLen)
			for i := uint64(0); i+4 <= byteLen; i += 4 {
				fillBuf[i] = byte(region.Fill)
				fillBuf[i+1] = byte(region.Fill >> 8)
				fillBuf[i+2] = byte(region.Fill >> 16)
				fillBuf[i+3] = byte(region.Fill >> 24)
			}
			if err := s.Program(ctx, lun, cursor, sectors, &byteReader{fillBuf}, func(n uint64) {
				if onProgress != nil {
					onProgress(doneBytes + n)
				}
			}); err != nil {
				return err
			}
			doneBytes += byteLen
			cursor += sectors
		}
	}
	return nil
}

// Read requests a bulk read of numSectors sectors starting at
// startSector on lun and returns the exact payload bytes.
func (s *Session) Read(ctx context.Context, lun int, startSector, numSectors uint64, onProgress ProgressFunc) ([]byte, error) {
	cmd := ReadCmd{
		SectorSizeInBytes:       s.sectorSize,
		PhysicalPartitionNumber: lun,
		StartSector:             strconv.FormatUint(startSector, 10),
		NumPartitionSectors:     numSectors,
	}
	resp, err := s.sendCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !resp.RawMode {
		// Some devices ACK then immediately go rawmode; treat a
		// non-rawmode ACK as rejection since no bulk payload follows.
		if err := resp.CheckAck(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("firehose: read acknowledged without rawmode; no payload follows")
	}

	total := numSectors * uint64(s.sectorSize)
	data := make([]byte, total)
	chunkSize := int(s.maxPayloadSize)
	if chunkSize <= 0 {
		chunkSize = defaultMaxPayload
	}

	var done uint64
	for done < total {
		want := uint64(chunkSize)
		if remaining := total - done; remaining < want {
			want = remaining
		}
		chunk, err := s.t.Read(ctx, int(want), bulkChunkTimeout)
		if err != nil {
			return nil, fmt.Errorf("firehose: read chunk at offset %d: %w", done, err)
		}
		copy(data[done:], chunk)
		done += uint64(len(chunk))
		if onProgress != nil {
			onProgress(done)
		}
	}

	final, err := s.readResponse(ctx, bulkChunkTimeout)
	if err != nil {
		return nil, fmt.Errorf("firehose: read final response: %w", err)
	}
	if err := final.CheckAck(); err != nil {
		// Per spec §4.4: a NAK terminal response discards already-read
		// bytes rather than surfacing partial success.
		return nil, err
	}
	return data, nil
}

type byteReader struct{ b []byte }

func (r *byteReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}
