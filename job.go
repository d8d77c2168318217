package edl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edlkit/edl/internal/firehose"
)

// JobKind tags the variant of work a Job carries (spec §3: "a
// tagged-variant enum with per-variant data suffices" per §9's design
// note on Job).
type JobKind int

const (
	JobRead JobKind = iota
	JobWrite
	JobErase
	JobPatch
	JobSetBoot
	JobReboot
)

func (k JobKind) String() string {
	switch k {
	case JobRead:
		return "read"
	case JobWrite:
		return "write"
	case JobErase:
		return "erase"
	case JobPatch:
		return "patch"
	case JobSetBoot:
		return "set_boot"
	case JobReboot:
		return "reboot"
	default:
		return "unknown"
	}
}

// BatchItem is one (selector, data) pair of a batch write (spec §4.7).
type BatchItem struct {
	Selector PartitionSelector
	Data     []byte
}

// Job is the unit of work submitted to the Orchestrator (spec §3). A
// single Job of Kind Write covers both a one-off partition write and a
// multi-item batch write: Items holds one or more (selector, data)
// pairs, and Patches/FixGpt/SetBootLUN are the post-write steps spec
// §4.7 describes for a batch.
type Job struct {
	Kind JobKind

	// Selector names the target for Read and Erase.
	Selector PartitionSelector

	// Items carries one or more (selector, data) pairs for Write.
	// Sparse-magic-prefixed data is expanded automatically.
	Items []BatchItem

	// Patches applies after Items are written (Write), or on its own
	// (Patch).
	Patches []firehose.Patch

	// FixGpt re-reads the GPT, recomputes CRCs and writes them back
	// after a Write's Items and Patches have committed.
	FixGpt bool

	// SetBootLUN invokes setbootablestoragedrive using the active
	// slot after FixGpt, when the storage kind is UFS.
	SetBootLUN bool

	// PowerValue is the Firehose <power value="..."/> argument for
	// Reboot (e.g. "reset", "poweroff", "edl").
	PowerValue string
}

// Progress reports cumulative bytes moved against the job's total, plus
// a human-readable phase label, delivered on every chunk boundary (spec
// §3/§5: "UI thread is a pure observer").
type Progress struct {
	BytesDone  uint64
	BytesTotal uint64
	Phase      string
}

// JobResult is what Ticket.Await returns on success.
type JobResult struct {
	BytesTransferred uint64
	Data             []byte // populated for Read
}

// Ticket tracks one submitted Job (spec §3).
type Ticket struct {
	id       uuid.UUID
	progress chan Progress
	done     chan struct{}
	result   JobResult
	err      error
}

// ID returns the ticket's identifier.
func (t *Ticket) ID() uuid.UUID { return t.id }

// Progress returns the channel progress updates are delivered on. It is
// closed when the job completes, whether successfully or not.
func (t *Ticket) Progress() <-chan Progress { return t.progress }

// Await blocks until the job completes or ctx is cancelled.
func (t *Ticket) Await(ctx context.Context) (JobResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return JobResult{}, newError("await", "session", KindCancelled, ctx.Err())
	}
}

// Submit runs job against the device. Jobs execute strictly
// sequentially; a second Submit while one is already in flight fails
// immediately with Busy rather than being queued (spec §4.7).
func (s *Session) Submit(job Job) (*Ticket, error) {
	s.jobMu.Lock()
	if s.busy {
		s.jobMu.Unlock()
		return nil, newError("submit", "session", KindBusy, fmt.Errorf("a job is already in progress"))
	}
	s.busy = true
	s.jobMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	ticket := &Ticket{
		id:       uuid.New(),
		progress: make(chan Progress, 32),
		done:     make(chan struct{}),
	}

	go func() {
		defer func() {
			close(ticket.progress)
			close(ticket.done)
			s.jobMu.Lock()
			s.busy = false
			s.jobMu.Unlock()
		}()

		result, err := s.runJob(ctx, job, ticket)
		ticket.result = result
		ticket.err = err
	}()

	return ticket, nil
}

func (s *Session) runJob(ctx context.Context, job Job, ticket *Ticket) (JobResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fh == nil {
		return JobResult{}, newError(job.Kind.String(), "session", KindBadMagic, fmt.Errorf("firehose session not ready"))
	}
	switch job.Kind {
	case JobRead, JobWrite, JobErase:
		if !s.configured {
			return JobResult{}, newError(job.Kind.String(), "session", KindBadMagic, fmt.Errorf("configure must run first"))
		}
	}

	switch job.Kind {
	case JobRead:
		return s.runRead(ctx, job, ticket)
	case JobWrite:
		return s.runWrite(ctx, job, ticket)
	case JobErase:
		return s.runErase(ctx, job, ticket)
	case JobPatch:
		return s.runPatch(ctx, job, ticket)
	case JobSetBoot:
		return s.runSetBoot(ctx, job, ticket)
	case JobReboot:
		return s.runReboot(ctx, job, ticket)
	default:
		return JobResult{}, newError("submit", "session", KindBadMagic, fmt.Errorf("unknown job kind %d", job.Kind))
	}
}

func (s *Session) emit(ticket *Ticket, done, total uint64, phase string) {
	select {
	case ticket.progress <- Progress{BytesDone: done, BytesTotal: total, Phase: phase}:
	default:
		// A slow/absent UI collaborator must never stall the job
		// (spec §5's observer boundary); drop the update instead.
	}
}

func (s *Session) runRead(ctx context.Context, job Job, ticket *Ticket) (JobResult, error) {
	entry, err := s.resolve(job.Selector)
	if err != nil {
		return JobResult{}, err
	}

	total := entry.NumSectors * uint64(s.storage.SectorSize)
	start := time.Now()
	data, err := s.fh.Read(ctx, entry.LUN, entry.StartSector, entry.NumSectors, func(done uint64) {
		s.emit(ticket, done, total, "read")
	})
	s.metrics.RecordRead(uint64(len(data)), uint64(time.Since(start)), err == nil)
	if err != nil {
		return JobResult{}, s.wrapFirehoseErr("read", err)
	}
	return JobResult{BytesTransferred: uint64(len(data)), Data: data}, nil
}

func (s *Session) runErase(ctx context.Context, job Job, ticket *Ticket) (JobResult, error) {
	entry, err := s.resolve(job.Selector)
	if err != nil {
		return JobResult{}, err
	}
	if blocked, prot := s.checkProtected(entry.Name); blocked {
		return JobResult{}, prot
	}

	start := time.Now()
	err = s.fh.Erase(ctx, entry.LUN, entry.StartSector, entry.NumSectors)
	s.metrics.RecordErase(uint64(time.Since(start)), err == nil)
	if err != nil {
		return JobResult{}, s.wrapFirehoseErr("erase", err)
	}
	s.emit(ticket, 1, 1, "erase")
	return JobResult{}, nil
}

func (s *Session) runPatch(ctx context.Context, job Job, ticket *Ticket) (JobResult, error) {
	start := time.Now()
	err := s.fh.ApplyPatches(ctx, job.Patches)
	s.metrics.RecordPatch(uint64(time.Since(start)), err == nil)
	if err != nil {
		return JobResult{}, s.wrapFirehoseErr("patch", err)
	}
	s.emit(ticket, 1, 1, "patch")
	return JobResult{}, nil
}

func (s *Session) runSetBoot(ctx context.Context, job Job, ticket *Ticket) (JobResult, error) {
	if err := s.setBootableSlot(ctx); err != nil {
		return JobResult{}, err
	}
	s.emit(ticket, 1, 1, "set_boot")
	return JobResult{}, nil
}

func (s *Session) runReboot(ctx context.Context, job Job, ticket *Ticket) (JobResult, error) {
	value := job.PowerValue
	if value == "" {
		value = "reset"
	}
	err := s.fh.Power(ctx, value)
	if err != nil {
		return JobResult{}, s.wrapFirehoseErr("reboot", err)
	}
	s.emit(ticket, 1, 1, "reboot")
	return JobResult{}, nil
}

// wrapFirehoseErr classifies a firehose-layer error into the session's
// error taxonomy, pulling NAK log text through when present.
func (s *Session) wrapFirehoseErr(op string, err error) error {
	var nak *firehose.ErrNak
	if errors.As(err, &nak) {
		return withLog(newError(op, "firehose", KindNak, err), nak.Logs)
	}
	return newError(op, "firehose", KindIoTimeout, err)
}

// checkProtected reports whether name is deny-listed; when it is and
// protection is enabled it returns the job-level error the caller
// should surface (spec §4.7: "dropped with a warning").
func (s *Session) checkProtected(name string) (bool, error) {
	if name == "" || !s.isSensitive(name) {
		return false, nil
	}
	s.log.Warnf("refusing to touch protected partition %q", name)
	return true, newError("write", "session", KindPartitionProtected, fmt.Errorf("partition %q is protected", name))
}
