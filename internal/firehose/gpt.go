package firehose

import (
	"context"
	"fmt"

	"github.com/edlkit/edl/internal/gpt"
)

// gptReadSectors is the number of leading sectors read per LUN: header
// at LBA 1 plus up to 128 entries of 128 bytes (spec §4.4 "read sectors
// 0..33").
const gptReadSectors = 34

// ReadGPT reads and parses the GPT for one LUN. An invalid header or CRC
// causes gpt.ErrBadMagic to be returned so the caller can skip that LUN
// with a warning rather than abort the whole read (spec §4.4).
func (s *Session) ReadGPT(ctx context.Context, lun int) (*gpt.Table, error) {
	raw, err := s.Read(ctx, lun, 0, gptReadSectors, nil)
	if err != nil {
		return nil, fmt.Errorf("firehose: read gpt lun %d: %w", lun, err)
	}
	return gpt.Parse(raw, int(s.sectorSize), lun)
}

// ReadAllGPT reads every configured LUN's GPT, skipping (with the error
// recorded rather than aborting) any LUN whose header or CRC fails
// validation.
func (s *Session) ReadAllGPT(ctx context.Context, numLUNs int) ([]*gpt.Table, map[int]error) {
	var tables []*gpt.Table
	skipped := make(map[int]error)
	for lun := 0; lun < numLUNs; lun++ {
		table, err := s.ReadGPT(ctx, lun)
		if err != nil {
			skipped[lun] = err
			continue
		}
		tables = append(tables, table)
	}
	return tables, skipped
}
