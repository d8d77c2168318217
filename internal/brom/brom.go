// Package brom drives the MediaTek boot-ROM bring-up sequence: the
// handshake byte dance, hardware-info queries, download-agent upload and
// the post-jump sync/authentication gate (spec §4.5).
package brom

import (
	"context"
	"fmt"
	"time"

	"github.com/edlkit/edl/internal/auth"
	"github.com/edlkit/edl/internal/codec"
	"github.com/edlkit/edl/internal/logging"
	"github.com/edlkit/edl/internal/transport"
	"github.com/edlkit/edl/internal/wire"
)

// ErrHandshakeFailed reports a mismatched echo byte during the initial
// 4-byte handshake (spec §4.5).
type ErrHandshakeFailed struct {
	Index          int
	Sent, Received byte
}

func (e *ErrHandshakeFailed) Error() string {
	return fmt.Sprintf("brom: handshake byte %d: sent 0x%02x, got echo 0x%02x (want 0x%02x)",
		e.Index, e.Sent, e.Received, ^e.Sent)
}

// ErrUnexpectedStatus reports a non-zero 2-byte status word trailing a
// query or upload step.
type ErrUnexpectedStatus struct {
	Op     string
	Status uint16
}

func (e *ErrUnexpectedStatus) Error() string {
	return fmt.Sprintf("brom: %s: status 0x%04x", e.Op, e.Status)
}

const (
	byteTimeout  = 3 * time.Second
	queryTimeout = 5 * time.Second
)

// Session drives one BROM/DA dialogue over a single Transport.
type Session struct {
	t    transport.Transport
	log  *logging.Logger
	auth auth.Strategy
}

// NewSession constructs a driver bound to t. authStrategy may be nil when
// the attached chip's security config advertises neither SLA nor DAA.
func NewSession(t transport.Transport, log *logging.Logger, authStrategy auth.Strategy) *Session {
	return &Session{t: t, log: log.WithPhase("brom"), auth: authStrategy}
}

// SetAuthStrategy attaches the strategy the SLA/DAA gate in UploadDA
// will invoke. Callers that need hw_code (read via QueryHwInfo) to
// select the right key set auth after Identify and before UploadDA.
func (s *Session) SetAuthStrategy(authStrategy auth.Strategy) {
	s.auth = authStrategy
}

// Handshake sends the 4-byte wake sequence one byte at a time, verifying
// each echo is the bitwise complement of the byte sent.
func (s *Session) Handshake(ctx context.Context) error {
	for i, sent := range wire.BromHandshakeBytes {
		if err := s.t.Write(ctx, []byte{sent}); err != nil {
			return fmt.Errorf("brom: handshake write byte %d: %w", i, err)
		}
		echo, err := s.t.Read(ctx, 1, byteTimeout)
		if err != nil {
			return fmt.Errorf("brom: handshake read byte %d: %w", i, err)
		}
		if echo[0] != ^sent {
			return &ErrHandshakeFailed{Index: i, Sent: sent, Received: echo[0]}
		}
	}
	s.log.Debugf("handshake complete")
	return nil
}

// queryU16 writes a 2-byte command, expects it echoed back, reads an
// n-byte datum, then a 2-byte status that must be zero.
func (s *Session) queryU16(ctx context.Context, cmd uint16, datumLen int) ([]byte, error) {
	if err := s.t.Write(ctx, wire.EncodeU16BE(cmd)); err != nil {
		return nil, fmt.Errorf("brom: send command 0x%04x: %w", cmd, err)
	}
	echo, err := s.t.Read(ctx, 2, queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("brom: read echo for 0x%04x: %w", cmd, err)
	}
	gotEcho, _ := wire.DecodeU16BE(echo)
	if gotEcho != cmd {
		return nil, fmt.Errorf("brom: command 0x%04x echoed as 0x%04x", cmd, gotEcho)
	}

	var datum []byte
	if datumLen > 0 {
		datum, err = s.t.Read(ctx, datumLen, queryTimeout)
		if err != nil {
			return nil, fmt.Errorf("brom: read datum for 0x%04x: %w", cmd, err)
		}
	}

	statusBuf, err := s.t.Read(ctx, 2, queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("brom: read status for 0x%04x: %w", cmd, err)
	}
	status, _ := wire.DecodeU16BE(statusBuf)
	if status != 0 {
		return nil, &ErrUnexpectedStatus{Op: fmt.Sprintf("query 0x%04x", cmd), Status: status}
	}
	return datum, nil
}

// chipNames resolves a hw_code to the human name the host reports;
// unrecognized codes fall back to a hex label rather than failing the
// query (spec §4.5 treats chip_name as informational).
var chipNames = map[uint16]string{
	0x0279: "MT6779",
	0x0788: "MT6788",
	0x0886: "MT6886",
	0x0989: "MT6989",
}

func chipName(hwCode uint16) string {
	if name, ok := chipNames[hwCode]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", hwCode)
}

// QueryHwInfo runs the fixed-length request/response sequence that
// retrieves hw_code, hw_version, sw_version, the security-config flags
// and the device MEID (spec §4.5).
func (s *Session) QueryHwInfo(ctx context.Context) (wire.BromHwInfo, error) {
	var info wire.BromHwInfo

	hwCodeBuf, err := s.queryU16(ctx, wire.BromCmdGetHwCode, 2)
	if err != nil {
		return info, err
	}
	info.HwCode, _ = wire.DecodeU16BE(hwCodeBuf)

	swVerBuf, err := s.queryU16(ctx, wire.BromCmdGetHwSwVer, 4)
	if err != nil {
		return info, err
	}
	info.HwVersion, _ = wire.DecodeU16BE(swVerBuf[0:2])
	info.SwVersion, _ = wire.DecodeU16BE(swVerBuf[2:4])

	cfgBuf, err := s.queryU16(ctx, wire.BromCmdGetTargetCfg, 2)
	if err != nil {
		return info, err
	}
	raw, _ := wire.DecodeU16BE(cfgBuf)
	info.SecureBoot, info.SLAEnabled, info.DAAEnabled = wire.DecodeSecurityConfig(raw)

	meid, err := s.queryU16(ctx, wire.BromCmdGetMeid, 16)
	if err != nil {
		return info, err
	}
	copy(info.MEID[:], meid)

	info.ChipName = chipName(info.HwCode)
	s.log.Infof("hw_code=0x%04x chip=%s sbc=%v sla=%v daa=%v", info.HwCode, info.ChipName, info.SecureBoot, info.SLAEnabled, info.DAAEnabled)
	return info, nil
}

func marshalU16BE(v uint16) []byte {
	buf := make([]byte, 2)
	codec.PutUint16BE(buf, v)
	return buf
}
