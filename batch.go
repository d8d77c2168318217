package edl

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/edlkit/edl/internal/firehose"
	"github.com/edlkit/edl/internal/gpt"
	"github.com/edlkit/edl/internal/sparse"
)

// runWrite commits job.Items in submission order, aggregating progress
// across the whole batch, then applies Patches and (optionally) FixGpt
// and SetBootLUN (spec §4.7's "batch write").
func (s *Session) runWrite(ctx context.Context, job Job, ticket *Ticket) (JobResult, error) {
	if len(job.Items) == 0 {
		return JobResult{}, newError("write", "session", KindBadMagic, fmt.Errorf("no items to write"))
	}

	entries := make([]PartitionEntry, len(job.Items))
	itemTotals := make([]uint64, len(job.Items))
	var total uint64
	touchedLUNs := map[int]bool{}

	for i, item := range job.Items {
		entry, err := s.resolve(item.Selector)
		if err != nil {
			return JobResult{}, err
		}
		if blocked, prot := s.checkProtected(entry.Name); blocked {
			return JobResult{}, prot
		}
		entries[i] = entry
		touchedLUNs[entry.LUN] = true

		realBytes, err := realByteCount(item.Data)
		if err != nil {
			return JobResult{}, newError("write", "session", KindBadMagic, err)
		}
		itemTotals[i] = realBytes
		total += realBytes
	}

	var completed uint64
	var transferred uint64
	start := time.Now()
	for i, item := range job.Items {
		entry := entries[i]
		onProgress := func(done uint64) {
			s.emit(ticket, completed+done, total, "write")
		}

		var err error
		if sparse.Detect(item.Data) {
			err = s.fh.ProgramSparse(ctx, entry.LUN, entry.StartSector, item.Data, onProgress)
		} else {
			sectors := uint64(len(item.Data)) / uint64(s.storage.SectorSize)
			err = s.fh.Program(ctx, entry.LUN, entry.StartSector, sectors, bytes.NewReader(item.Data), onProgress)
		}
		if err != nil {
			s.metrics.RecordProgram(transferred, uint64(time.Since(start)), false)
			return JobResult{}, s.wrapFirehoseErr("write", err)
		}
		completed += itemTotals[i]
		transferred += itemTotals[i]
	}
	s.metrics.RecordProgram(transferred, uint64(time.Since(start)), true)

	if len(job.Patches) > 0 {
		patchStart := time.Now()
		err := s.fh.ApplyPatches(ctx, job.Patches)
		s.metrics.RecordPatch(uint64(time.Since(patchStart)), err == nil)
		if err != nil {
			return JobResult{}, s.wrapFirehoseErr("write", err)
		}
	}

	if job.FixGpt {
		for lun := range touchedLUNs {
			if err := s.fixGpt(ctx, lun); err != nil {
				return JobResult{}, err
			}
		}
	}

	if job.SetBootLUN && s.storage.Kind == StorageUFS {
		if err := s.setBootableSlot(ctx); err != nil {
			return JobResult{}, err
		}
	}

	return JobResult{BytesTransferred: transferred}, nil
}

// realByteCount returns the number of bytes a write actually moves:
// the RAW+FILL payload size for a sparse image, or len(data) otherwise
// (spec §4.7's sparse-expansion progress rule).
func realByteCount(data []byte) (uint64, error) {
	if sparse.Detect(data) {
		return sparse.RealByteCount(data)
	}
	return uint64(len(data)), nil
}

// fixGpt re-reads lun's GPT, recomputes both CRCs and writes them back
// via two patch commands targeting the header sector (spec §4.7,
// wire layout: HeaderCRC32 at header-relative offset 16, EntryArrayCRC32
// at offset 88 — both inside the 92-byte header stored at LBA 1).
func (s *Session) fixGpt(ctx context.Context, lun int) error {
	table, err := s.fh.ReadGPT(ctx, lun)
	if err != nil {
		return newError("fix_gpt", "firehose", KindBadMagic, err)
	}
	table.FixCRCs()

	patches := []firehose.Patch{
		{
			ByteOffset:  16,
			SizeInBytes: 4,
			LUN:         lun,
			StartSector: uint64(gptHeaderLBA),
			Value:       fmt.Sprintf("0x%x", table.Header.HeaderCRC32),
		},
		{
			ByteOffset:  88,
			SizeInBytes: 4,
			LUN:         lun,
			StartSector: uint64(gptHeaderLBA),
			Value:       fmt.Sprintf("0x%x", table.Header.EntryArrayCRC32),
		},
	}
	if err := s.fh.ApplyPatches(ctx, patches); err != nil {
		return s.wrapFirehoseErr("fix_gpt", err)
	}
	return nil
}

// gptHeaderLBA is the sector holding the primary GPT header (spec §6).
const gptHeaderLBA = 1

// setBootableSlot invokes setbootablestoragedrive using the active A/B
// slot: LUN 1 for slot A, LUN 2 for slot B, and both 1 and 2 when the
// slot is undetermined (spec §4.7).
func (s *Session) setBootableSlot(ctx context.Context) error {
	switch s.slot {
	case gpt.SlotA:
		if err := s.fh.SetBootableStorageDrive(ctx, 1); err != nil {
			return s.wrapFirehoseErr("set_boot", err)
		}
		return nil
	case gpt.SlotB:
		if err := s.fh.SetBootableStorageDrive(ctx, 2); err != nil {
			return s.wrapFirehoseErr("set_boot", err)
		}
		return nil
	default:
		if err := s.fh.SetBootableStorageDrive(ctx, 1); err != nil {
			return s.wrapFirehoseErr("set_boot", err)
		}
		if err := s.fh.SetBootableStorageDrive(ctx, 2); err != nil {
			return s.wrapFirehoseErr("set_boot", err)
		}
		return nil
	}
}
