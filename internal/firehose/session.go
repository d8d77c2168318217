package firehose

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/edlkit/edl/internal/logging"
	"github.com/edlkit/edl/internal/transport"
)

// StorageKind names the attached flash technology (spec §3).
type StorageKind int

const (
	StorageUFS StorageKind = iota
	StorageEMMC
	StorageNAND
)

func (k StorageKind) memoryName() string {
	switch k {
	case StorageUFS:
		return "ufs"
	case StorageEMMC:
		return "emmc"
	default:
		return "nand"
	}
}

// StorageProfile is discovered via configure (spec §3).
type StorageProfile struct {
	Kind                  StorageKind
	SectorSize            uint32
	NumPhysicalPartitions uint8
	MaxPayloadSize        uint32
}

const (
	defaultMaxPayload = 1024 * 1024
	configureRetries  = 3
	commandTimeout    = 5 * time.Second
	bulkChunkTimeout  = 30 * time.Second
	responseSilence   = 100 * time.Millisecond
)

// Session drives one Firehose command dialogue over a single Transport.
// It keeps no per-session state other than sector_size, max_payload_size
// and whether configure has succeeded, per spec §4.4.
type Session struct {
	t       transport.Transport
	log     *logging.Logger
	sectorSize     uint32
	maxPayloadSize uint32
	configured     bool
}

// NewSession constructs a driver bound to t.
func NewSession(t transport.Transport, log *logging.Logger) *Session {
	return &Session{t: t, log: log.WithPhase("firehose"), maxPayloadSize: defaultMaxPayload}
}

// SectorSize reports the sector size negotiated by Configure.
func (s *Session) SectorSize() uint32 { return s.sectorSize }

// MaxPayloadSize reports the in-session chunk size negotiated by
// Configure.
func (s *Session) MaxPayloadSize() uint32 { return s.maxPayloadSize }

// sendCommand encodes cmd, writes it, and returns the first response
// frame the device sends back.
func (s *Session) sendCommand(ctx context.Context, cmd any) (Response, error) {
	frame, err := EncodeFrame(cmd)
	if err != nil {
		return Response{}, err
	}
	if err := s.t.Write(ctx, frame); err != nil {
		return Response{}, fmt.Errorf("firehose: write command: %w", err)
	}
	return s.readResponse(ctx, commandTimeout)
}

func (s *Session) readResponse(ctx context.Context, timeout time.Duration) (Response, error) {
	raw, err := s.t.ReadUntilSilence(ctx, timeout, responseSilence)
	if err != nil {
		return Response{}, fmt.Errorf("firehose: read response: %w", err)
	}
	resp, err := ParseResponse(raw)
	if err != nil {
		return Response{}, fmt.Errorf("firehose: parse response: %w", err)
	}
	return resp, nil
}

var maxPayloadLogPattern = regexp.MustCompile(`MaxPayloadSizeToTargetInBytes\s*[:=]\s*(\d+)`)

func parseMaxPayloadFromLogs(logs []string) (uint32, bool) {
	for _, l := range logs {
		m := maxPayloadLogPattern.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		n, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		return uint32(n), true
	}
	return 0, false
}

// Configure negotiates storage type and chunk size. On NAK the
// requested payload size is halved and retried up to configureRetries
// times; after that it fails with an error wrapping *ErrNak that
// carries the last response's logs (spec §4.4).
func (s *Session) Configure(ctx context.Context, kind StorageKind, sectorSize uint32) (StorageProfile, error) {
	requested := uint32(defaultMaxPayload)

	var lastResp Response
	for attempt := 0; attempt <= configureRetries; attempt++ {
		cmd := ConfigureCmd{
			MemoryName:                    kind.memoryName(),
			MaxPayloadSizeToTargetInBytes: requested,
		}
		resp, err := s.sendCommand(ctx, cmd)
		if err != nil {
			return StorageProfile{}, err
		}
		lastResp = resp
		if resp.Ack {
			s.sectorSize = sectorSize
			s.configured = true
			if resp.HasMaxPayloadSize {
				requested = resp.MaxPayloadSizeToTargetInBytes
			} else if revised, ok := parseMaxPayloadFromLogs(resp.Logs); ok {
				requested = revised
			}
			if requested > defaultMaxPayload {
				requested = defaultMaxPayload
			}
			s.maxPayloadSize = requested
			return StorageProfile{
				Kind:           kind,
				SectorSize:     sectorSize,
				MaxPayloadSize: s.maxPayloadSize,
			}, nil
		}
		requested /= 2
	}
	return StorageProfile{}, fmt.Errorf("firehose: configure rejected after %d retries: %w", configureRetries, &ErrNak{Logs: lastResp.Logs})
}

// Erase removes an entire partition (spec §4.4: whole partitions only).
func (s *Session) Erase(ctx context.Context, lun int, startSector uint64, numSectors uint64) error {
	cmd := EraseCmd{
		SectorSizeInBytes:       s.sectorSize,
		PhysicalPartitionNumber: lun,
		StartSector:             strconv.FormatUint(startSector, 10),
		NumPartitionSectors:     numSectors,
	}
	resp, err := s.sendCommand(ctx, cmd)
	if err != nil {
		return err
	}
	return resp.CheckAck()
}

// Patch applies one caller-supplied (byte_offset, size, value) edit.
// The engine never computes patches itself (spec §4.4).
type Patch struct {
	ByteOffset  uint64
	SizeInBytes uint32
	Filename    string
	LUN         int
	StartSector uint64
	Value       string
}

// ApplyPatch sends a single patch command and checks its ACK.
func (s *Session) ApplyPatch(ctx context.Context, p Patch) error {
	cmd := PatchCmd{
		ByteOffset:              p.ByteOffset,
		SizeInBytes:             p.SizeInBytes,
		Filename:                p.Filename,
		PhysicalPartitionNumber: p.LUN,
		StartSector:             strconv.FormatUint(p.StartSector, 10),
		Value:                   p.Value,
	}
	resp, err := s.sendCommand(ctx, cmd)
	if err != nil {
		return err
	}
	return resp.CheckAck()
}

// ApplyPatches applies a list of patches in order, stopping at the
// first failure.
func (s *Session) ApplyPatches(ctx context.Context, patches []Patch) error {
	for i, p := range patches {
		if err := s.ApplyPatch(ctx, p); err != nil {
			return fmt.Errorf("firehose: patch %d: %w", i, err)
		}
	}
	return nil
}

// SetBootableStorageDrive switches the UFS boot LUN; accepted but a
// no-op on eMMC.
func (s *Session) SetBootableStorageDrive(ctx context.Context, lun int) error {
	cmd := SetBootableStorageDriveCmd{Value: lun}
	resp, err := s.sendCommand(ctx, cmd)
	if err != nil {
		return err
	}
	return resp.CheckAck()
}

// Power requests reset, EDL re-entry, or power-off. The device will
// disappear immediately after; callers must not expect a further
// response beyond this ACK.
func (s *Session) Power(ctx context.Context, value string) error {
	cmd := PowerCmd{Value: value}
	resp, err := s.sendCommand(ctx, cmd)
	if err != nil {
		return err
	}
	return resp.CheckAck()
}

// Nop drains the device's response queue, used as the cooperative
// cancellation step described in spec §5.
func (s *Session) Nop(ctx context.Context) error {
	resp, err := s.sendCommand(ctx, NopCmd{})
	if err != nil {
		return err
	}
	return resp.CheckAck()
}
