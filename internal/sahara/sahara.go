// Package sahara drives the Qualcomm boot-ROM dialogue: hello exchange,
// image-chunk service, optional command-mode identity queries, and the
// final handoff that starts the uploaded loader executing (spec §4.3).
package sahara

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edlkit/edl/internal/auth"
	"github.com/edlkit/edl/internal/codec"
	"github.com/edlkit/edl/internal/logging"
	"github.com/edlkit/edl/internal/transport"
	"github.com/edlkit/edl/internal/wire"
)

// State names the handshake's position, mirroring spec §4.3's
// WaitHello -> SendHelloResp -> ImageTransfer -> (CommandMode) -> Done -> Handoff.
type State int

const (
	StateWaitHello State = iota
	StateSendHelloResp
	StateImageTransfer
	StateCommandMode
	StateDone
	StateHandoff
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateWaitHello:
		return "wait_hello"
	case StateSendHelloResp:
		return "send_hello_resp"
	case StateImageTransfer:
		return "image_transfer"
	case StateCommandMode:
		return "command_mode"
	case StateDone:
		return "done"
	case StateHandoff:
		return "handoff"
	default:
		return "failed"
	}
}

// ErrLoaderRejected reports a non-zero status in END_IMAGE_TX: the
// device rejected the uploaded image (spec §4.3 step 5).
type ErrLoaderRejected struct{ Status uint32 }

func (e *ErrLoaderRejected) Error() string {
	return fmt.Sprintf("sahara: loader rejected, status=%d", e.Status)
}

// ErrUnexpectedCommand is returned when a packet arrives that the
// current state does not expect.
type ErrUnexpectedCommand struct {
	State   State
	Command uint32
}

func (e *ErrUnexpectedCommand) Error() string {
	return fmt.Sprintf("sahara: unexpected command 0x%02x in state %s", e.Command, e.State)
}

// Identity is the subset of ChipIdentity this driver can populate via
// command-mode queries (spec §3/§4.3).
type Identity struct {
	SerialNum []byte
	MSMHWID   []byte
	OEMPKHash []byte
}

const (
	maxPacketBody    = 4096
	helloRespTimeout = 5 * time.Second

	// authChallengeLen is the width of the challenge read off the
	// transport when HELLO requests authentication, matching the
	// 16-byte SLA challenge size used elsewhere in this codebase
	// (internal/brom's runAuthGate).
	authChallengeLen = 16

	// maxAuthResponseLen bounds the signed blob Authenticate may
	// return, mirroring spec §4.3's "signature <= 256 bytes".
	maxAuthResponseLen = 256
)

// Session drives one Sahara handshake over a single Transport.
type Session struct {
	t      transport.Transport
	log    *logging.Logger
	auth   auth.Strategy
	state  State
	hello  wire.SaharaHelloPacket
	loader []byte

	// pendingAuthResp holds the signed digest awaiting delivery as the
	// first image chunk, once HELLO has requested authentication. Set
	// by authenticateIfRequested, consumed by the first READ_DATA in
	// serviceImageTransfer.
	pendingAuthResp []byte
}

// NewSession constructs a driver bound to t. authStrategy may be nil when
// the device's HELLO does not request authentication.
func NewSession(t transport.Transport, log *logging.Logger, authStrategy auth.Strategy) *Session {
	return &Session{t: t, log: log.WithPhase("sahara"), auth: authStrategy, state: StateWaitHello}
}

// State reports the driver's current position in the handshake.
func (s *Session) State() State { return s.state }

// readPacket reads an 8-byte header, then its body, returning the
// decoded command and raw body bytes.
func (s *Session) readPacket(ctx context.Context, timeout time.Duration) (uint32, []byte, error) {
	hdrBuf, err := s.t.Read(ctx, 8, timeout)
	if err != nil {
		return 0, nil, err
	}
	var hdr wire.SaharaHeader
	if err := hdr.Unmarshal(hdrBuf); err != nil {
		return 0, nil, err
	}
	if hdr.Length < 8 {
		return hdr.Command, nil, nil
	}
	bodyLen := int(hdr.Length) - 8
	if bodyLen == 0 {
		return hdr.Command, nil, nil
	}
	if bodyLen > maxPacketBody {
		return 0, nil, fmt.Errorf("sahara: packet body %d exceeds max %d", bodyLen, maxPacketBody)
	}
	body, err := s.t.Read(ctx, bodyLen, timeout)
	if err != nil {
		return 0, nil, err
	}
	return hdr.Command, body, nil
}

func (s *Session) writePacket(ctx context.Context, command uint32, body []byte) error {
	buf := make([]byte, 8+len(body))
	hdr := wire.SaharaHeader{Command: command, Length: uint32(8 + len(body))}
	hdr.Marshal(buf[0:8])
	copy(buf[8:], body)
	return s.t.Write(ctx, buf)
}

// Upload drives the full handshake: waits for HELLO, replies with
// HELLO_RESP selecting image-transfer mode, authenticates if HELLO
// requested it, services READ_DATA requests from loader, and returns
// once DONE_RESP confirms handoff.
func (s *Session) Upload(ctx context.Context, loader []byte) error {
	s.loader = loader

	if err := s.waitHello(ctx); err != nil {
		s.state = StateFailed
		return err
	}

	if err := s.sendHelloResp(ctx, wire.SaharaModeImageTxPending); err != nil {
		s.state = StateFailed
		return err
	}

	if err := s.authenticateIfRequested(ctx); err != nil {
		s.state = StateFailed
		return err
	}

	if err := s.serviceImageTransfer(ctx); err != nil {
		s.state = StateFailed
		return err
	}

	return nil
}

func (s *Session) waitHello(ctx context.Context) error {
	cmd, body, err := s.readPacket(ctx, helloRespTimeout)
	if err != nil {
		return fmt.Errorf("sahara: wait hello: %w", err)
	}
	if cmd != wire.SaharaCmdHello {
		return &ErrUnexpectedCommand{State: s.state, Command: cmd}
	}
	if err := s.hello.Unmarshal(body); err != nil {
		return fmt.Errorf("sahara: decode hello: %w", err)
	}
	s.log.Debugf("hello: version=%d min=%d mode=%d", s.hello.Version, s.hello.MinVersion, s.hello.Mode)
	s.state = StateSendHelloResp
	return nil
}

func (s *Session) sendHelloResp(ctx context.Context, mode uint32) error {
	resp := wire.SaharaHelloRespPacket{
		Version:    s.hello.Version,
		MinVersion: s.hello.MinVersion,
		Status:     0,
		Mode:       mode,
	}
	buf := make([]byte, 44)
	resp.Marshal(buf)
	if err := s.writePacket(ctx, wire.SaharaCmdHelloResp, buf); err != nil {
		return fmt.Errorf("sahara: send hello_resp: %w", err)
	}
	s.state = StateImageTransfer
	return nil
}

// authenticateIfRequested checks the HELLO mode bits (spec §4.3's
// authentication hook) and, when the device asked for a signed digest,
// reads its challenge, invokes the configured auth.Strategy, and queues
// the signature to be delivered as the first image chunk.
func (s *Session) authenticateIfRequested(ctx context.Context) error {
	if s.hello.Mode&wire.SaharaModeAuthRequired == 0 {
		return nil
	}

	challenge, err := s.t.Read(ctx, authChallengeLen, helloRespTimeout)
	if err != nil {
		return fmt.Errorf("sahara: read auth challenge: %w", err)
	}
	sig, err := s.Authenticate(ctx, challenge)
	if err != nil {
		return fmt.Errorf("sahara: authenticate: %w", err)
	}
	if len(sig) > maxAuthResponseLen {
		return fmt.Errorf("sahara: auth response %d bytes exceeds %d-byte limit", len(sig), maxAuthResponseLen)
	}
	s.pendingAuthResp = sig
	return nil
}

// serviceImageTransfer answers READ_DATA/READ_DATA_64 requests against
// the loader buffer until the device sends END_IMAGE_TX, then completes
// the DONE/DONE_RESP exchange. The first request is answered with the
// signed digest instead of loader bytes when authenticateIfRequested
// queued one.
func (s *Session) serviceImageTransfer(ctx context.Context) error {
	for {
		cmd, body, err := s.readPacket(ctx, 30*time.Second)
		if err != nil {
			return fmt.Errorf("sahara: image transfer: %w", err)
		}

		switch cmd {
		case wire.SaharaCmdReadData:
			var req wire.SaharaReadDataPacket
			if err := req.Unmarshal(body); err != nil {
				return err
			}
			if err := s.serveChunkOrAuth(ctx, uint64(req.Offset), uint64(req.Length)); err != nil {
				return err
			}

		case wire.SaharaCmdReadData64:
			var req wire.SaharaReadData64Packet
			if err := req.Unmarshal(body); err != nil {
				return err
			}
			if err := s.serveChunkOrAuth(ctx, req.Offset, req.Length); err != nil {
				return err
			}

		case wire.SaharaCmdEndImageTx:
			var end wire.SaharaEndImageTxPacket
			if err := end.Unmarshal(body); err != nil {
				return err
			}
			if end.Status != 0 {
				return &ErrLoaderRejected{Status: end.Status}
			}
			return s.finishHandoff(ctx)

		default:
			return &ErrUnexpectedCommand{State: s.state, Command: cmd}
		}
	}
}

// serveChunkOrAuth answers one READ_DATA request. When an auth response
// is pending, it is sent verbatim as this first chunk and cleared;
// every later request serves loader bytes as normal.
func (s *Session) serveChunkOrAuth(ctx context.Context, offset, length uint64) error {
	if s.pendingAuthResp != nil {
		resp := s.pendingAuthResp
		s.pendingAuthResp = nil
		return s.t.Write(ctx, resp)
	}
	if offset > uint64(len(s.loader)) || offset+length > uint64(len(s.loader)) {
		return fmt.Errorf("sahara: requested chunk [%d,%d) exceeds loader length %d", offset, offset+length, len(s.loader))
	}
	return s.t.Write(ctx, s.loader[offset:offset+length])
}

func (s *Session) finishHandoff(ctx context.Context) error {
	if err := s.writePacket(ctx, wire.SaharaCmdDone, nil); err != nil {
		return fmt.Errorf("sahara: send done: %w", err)
	}
	s.state = StateDone

	cmd, body, err := s.readPacket(ctx, helloRespTimeout)
	if err != nil {
		return fmt.Errorf("sahara: wait done_resp: %w", err)
	}
	if cmd != wire.SaharaCmdDoneResp {
		return &ErrUnexpectedCommand{State: s.state, Command: cmd}
	}
	var resp wire.SaharaDoneRespPacket
	if err := resp.Unmarshal(body); err != nil {
		return err
	}
	s.state = StateHandoff
	return nil
}

// Reset sends RESET and awaits RESET_RESP, the only recovery path when
// the device is found mid-session (spec §4.3).
func (s *Session) Reset(ctx context.Context) error {
	if err := s.writePacket(ctx, wire.SaharaCmdReset, nil); err != nil {
		return fmt.Errorf("sahara: send reset: %w", err)
	}
	cmd, _, err := s.readPacket(ctx, helloRespTimeout)
	if err != nil {
		return fmt.Errorf("sahara: wait reset_resp: %w", err)
	}
	if cmd != wire.SaharaCmdResetResp {
		return &ErrUnexpectedCommand{State: s.state, Command: cmd}
	}
	s.state = StateWaitHello
	return nil
}

// QueryIdentity switches the device into command mode and issues the
// identity sub-commands, populating Identity. Must be called before
// Upload, with a device whose HELLO advertised CommandMode support.
func (s *Session) QueryIdentity(ctx context.Context) (Identity, error) {
	if err := s.writePacket(ctx, wire.SaharaCmdSwitchMode, marshalU32(wire.SaharaModeCommandMode)); err != nil {
		return Identity{}, fmt.Errorf("sahara: switch mode: %w", err)
	}

	cmd, _, err := s.readPacket(ctx, helloRespTimeout)
	if err != nil {
		return Identity{}, fmt.Errorf("sahara: wait cmd_ready: %w", err)
	}
	if cmd != wire.SaharaCmdCmdReady {
		return Identity{}, &ErrUnexpectedCommand{State: s.state, Command: cmd}
	}
	s.state = StateCommandMode

	var id Identity
	for subCmd, dst := range map[uint32]*[]byte{
		wire.SaharaExecSerialNumRead: &id.SerialNum,
		wire.SaharaExecMSMHWIDRead:   &id.MSMHWID,
		wire.SaharaExecOEMPKHashRead: &id.OEMPKHash,
	} {
		data, err := s.execQuery(ctx, subCmd)
		if err != nil {
			return Identity{}, err
		}
		*dst = data
	}
	return id, nil
}

func (s *Session) execQuery(ctx context.Context, subCmd uint32) ([]byte, error) {
	if err := s.writePacket(ctx, wire.SaharaCmdExec, marshalU32(subCmd)); err != nil {
		return nil, err
	}
	cmd, body, err := s.readPacket(ctx, helloRespTimeout)
	if err != nil {
		return nil, err
	}
	if cmd != wire.SaharaCmdExecResp {
		return nil, &ErrUnexpectedCommand{State: s.state, Command: cmd}
	}
	var resp wire.SaharaCmdExecRespPacket
	if err := resp.Unmarshal(body); err != nil {
		return nil, err
	}

	if err := s.writePacket(ctx, wire.SaharaCmdExecData, marshalU32(subCmd)); err != nil {
		return nil, err
	}
	data, err := s.t.Read(ctx, int(resp.DataLen), helloRespTimeout)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Authenticate invokes the configured auth.Strategy with challenge and
// returns the signed blob, used by Upload when the HELLO mode bits
// request a signature as the loader's first image chunk (spec §4.3's
// authentication hook).
func (s *Session) Authenticate(ctx context.Context, challenge []byte) ([]byte, error) {
	if s.auth == nil {
		return nil, errors.New("sahara: device requested authentication but no strategy configured")
	}
	return s.auth.Authenticate(ctx, nil, challenge)
}

func marshalU32(v uint32) []byte {
	buf := make([]byte, 4)
	codec.PutUint32LE(buf, v)
	return buf
}
