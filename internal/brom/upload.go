package brom

import (
	"context"
	"fmt"

	"github.com/edlkit/edl/internal/codec"
	"github.com/edlkit/edl/internal/wire"
)

// ErrChecksumMismatch reports a DA region whose post-transfer XOR-16
// checksum did not match what the device computed.
type ErrChecksumMismatch struct {
	Want, Got uint16
}

func (e *ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("brom: DA checksum mismatch: want 0x%04x got 0x%04x", e.Want, e.Got)
}

// ErrUnexpectedSync reports a post-jump SYNC word that is neither the
// dump nor the bypass acknowledgement.
type ErrUnexpectedSync struct{ Got uint32 }

func (e *ErrUnexpectedSync) Error() string {
	return fmt.Sprintf("brom: unexpected DA sync word 0x%08x", e.Got)
}

const bromCmdJump uint16 = 0xD5

// uploadRegion sends one DA region's {addr,size,sig_len} header, streams
// payload||signature, and verifies the device's XOR-16 checksum over
// exactly those bytes (spec §4.5).
func (s *Session) uploadRegion(ctx context.Context, region wire.DaRegionEntry, payload, signature []byte) error {
	hdr := make([]byte, 12)
	codec.PutUint32BE(hdr[0:4], region.LoadAddr)
	codec.PutUint32BE(hdr[4:8], uint32(len(payload)))
	codec.PutUint32BE(hdr[8:12], uint32(len(signature)))
	if err := s.t.Write(ctx, hdr); err != nil {
		return fmt.Errorf("brom: send region header: %w", err)
	}

	statusBuf, err := s.t.Read(ctx, 2, queryTimeout)
	if err != nil {
		return fmt.Errorf("brom: read region header status: %w", err)
	}
	if status, _ := wire.DecodeU16BE(statusBuf); status != 0 {
		return &ErrUnexpectedStatus{Op: "region header", Status: status}
	}

	combined := make([]byte, 0, len(payload)+len(signature))
	combined = append(combined, payload...)
	combined = append(combined, signature...)
	if err := s.t.Write(ctx, combined); err != nil {
		return fmt.Errorf("brom: stream region payload: %w", err)
	}

	checksumBuf, err := s.t.Read(ctx, 2, queryTimeout)
	if err != nil {
		return fmt.Errorf("brom: read region checksum: %w", err)
	}
	got, _ := wire.DecodeU16BE(checksumBuf)
	want := codec.XOR16(combined)
	if got != want {
		return &ErrChecksumMismatch{Want: want, Got: got}
	}

	if err := s.t.Write(ctx, marshalU16BE(bromCmdJump)); err != nil {
		return fmt.Errorf("brom: send jump command: %w", err)
	}
	return nil
}

// DaSyncKind names which post-jump SYNC word the DA answered with.
// Resolving spec's Open Question #1, both are treated as "DA alive"
// rather than one being asserted as the single correct value.
type DaSyncKind int

const (
	DaSyncUnknown DaSyncKind = iota
	DaSyncDump
	DaSyncBypass
)

func (k DaSyncKind) String() string {
	switch k {
	case DaSyncDump:
		return "dump"
	case DaSyncBypass:
		return "bypass"
	default:
		return "unknown"
	}
}

// awaitSync reads the 4-byte SYNC word the DA sends after DA2's jump.
func (s *Session) awaitSync(ctx context.Context) (DaSyncKind, error) {
	buf, err := s.t.Read(ctx, 4, queryTimeout)
	if err != nil {
		return DaSyncUnknown, fmt.Errorf("brom: read DA sync: %w", err)
	}
	word, _ := codec.Uint32BE(buf)
	switch word {
	case wire.DaSyncDump:
		return DaSyncDump, nil
	case wire.DaSyncBypass:
		return DaSyncBypass, nil
	default:
		return DaSyncUnknown, &ErrUnexpectedSync{Got: word}
	}
}

// UploadDA selects the chip entry matching hwCode, uploads its DA1 and
// DA2 regions in order, and waits for the post-jump SYNC word. If the
// preceding hw-info query advertised SLA or DAA, the configured
// Authentication Strategy is run against the DA's challenge before
// upload is considered complete.
func (s *Session) UploadDA(ctx context.Context, file *DaFile, info wire.BromHwInfo) (DaSyncKind, error) {
	chip, err := file.SelectChip(info.HwCode)
	if err != nil {
		return DaSyncUnknown, err
	}
	if chip.RegionCount < 2 {
		return DaSyncUnknown, fmt.Errorf("brom: chip entry for hw_code=0x%04x has %d regions, need at least 2", info.HwCode, chip.RegionCount)
	}

	for i := 0; i < 2; i++ {
		region := chip.RegionTable[i]
		payload, signature, err := file.RegionPayload(region)
		if err != nil {
			return DaSyncUnknown, fmt.Errorf("brom: region %d: %w", i, err)
		}
		s.log.Debugf("uploading DA region %d: addr=0x%08x payload=%d sig=%d", i, region.LoadAddr, len(payload), len(signature))
		if err := s.uploadRegion(ctx, region, payload, signature); err != nil {
			return DaSyncUnknown, fmt.Errorf("brom: upload region %d: %w", i, err)
		}
	}

	kind, err := s.awaitSync(ctx)
	if err != nil {
		return kind, err
	}
	s.log.Infof("DA sync: %s", kind)

	if info.SLAEnabled || info.DAAEnabled {
		if err := s.runAuthGate(ctx, info); err != nil {
			return kind, err
		}
	}
	return kind, nil
}

// runAuthGate performs the SLA challenge/response or DAA certificate
// upload gate, each terminated by a 2-byte status word (spec §4.5).
func (s *Session) runAuthGate(ctx context.Context, info wire.BromHwInfo) error {
	if s.auth == nil {
		return fmt.Errorf("brom: hw_code=0x%04x requires authentication (sla=%v daa=%v) but no strategy configured", info.HwCode, info.SLAEnabled, info.DAAEnabled)
	}

	if info.SLAEnabled {
		challenge, err := s.t.Read(ctx, 16, queryTimeout)
		if err != nil {
			return fmt.Errorf("brom: read SLA challenge: %w", err)
		}
		sig, err := s.auth.Authenticate(ctx, s, challenge)
		if err != nil {
			return fmt.Errorf("brom: SLA authenticate: %w", err)
		}
		if len(sig) > 256 {
			return fmt.Errorf("brom: SLA response %d bytes exceeds 256-byte limit", len(sig))
		}
		if err := s.t.Write(ctx, sig); err != nil {
			return fmt.Errorf("brom: send SLA response: %w", err)
		}
		if err := s.readGateStatus(ctx, "SLA"); err != nil {
			return err
		}
	}

	if info.DAAEnabled {
		cert, err := s.auth.Authenticate(ctx, s, nil)
		if err != nil {
			return fmt.Errorf("brom: DAA authenticate: %w", err)
		}
		lenBuf := make([]byte, 4)
		codec.PutUint32BE(lenBuf, uint32(len(cert)))
		if err := s.t.Write(ctx, lenBuf); err != nil {
			return fmt.Errorf("brom: send DAA cert length: %w", err)
		}
		if err := s.t.Write(ctx, cert); err != nil {
			return fmt.Errorf("brom: send DAA cert: %w", err)
		}
		if err := s.readGateStatus(ctx, "DAA"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) readGateStatus(ctx context.Context, op string) error {
	statusBuf, err := s.t.Read(ctx, 2, queryTimeout)
	if err != nil {
		return fmt.Errorf("brom: read %s status: %w", op, err)
	}
	if status, _ := wire.DecodeU16BE(statusBuf); status != 0 {
		return &ErrUnexpectedStatus{Op: op, Status: status}
	}
	return nil
}
