package sahara

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edlkit/edl/internal/auth"
	"github.com/edlkit/edl/internal/codec"
	"github.com/edlkit/edl/internal/logging"
	"github.com/edlkit/edl/internal/transport"
	"github.com/edlkit/edl/internal/wire"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(&logging.Config{Level: logging.LevelError})
}

func packet(command uint32, body []byte) []byte {
	buf := make([]byte, 8+len(body))
	hdr := wire.SaharaHeader{Command: command, Length: uint32(8 + len(body))}
	hdr.Marshal(buf[0:8])
	copy(buf[8:], body)
	return buf
}

func helloBody(mode uint32) []byte {
	buf := make([]byte, 44)
	codec.PutUint32LE(buf[0:4], 2)  // version
	codec.PutUint32LE(buf[4:8], 1)  // min version
	codec.PutUint32LE(buf[8:12], 4096)
	codec.PutUint32LE(buf[12:16], mode)
	return buf
}

func TestUploadHappyPath(t *testing.T) {
	mt := transport.NewMockTransport("mock0")
	loader := []byte("loader-bytes-0123456789")

	mt.QueueRead(packet(wire.SaharaCmdHello, helloBody(wire.SaharaModeImageTxPending)))

	readReq := wire.SaharaReadDataPacket{ImageID: 0, Offset: 0, Length: uint32(len(loader))}
	reqBuf := make([]byte, 12)
	codec.PutUint32LE(reqBuf[0:4], readReq.ImageID)
	codec.PutUint32LE(reqBuf[4:8], readReq.Offset)
	codec.PutUint32LE(reqBuf[8:12], readReq.Length)
	mt.QueueRead(packet(wire.SaharaCmdReadData, reqBuf))

	endBuf := make([]byte, 8)
	codec.PutUint32LE(endBuf[0:4], 0)
	codec.PutUint32LE(endBuf[4:8], 0) // status 0 = accepted
	mt.QueueRead(packet(wire.SaharaCmdEndImageTx, endBuf))

	doneRespBuf := make([]byte, 4)
	codec.PutUint32LE(doneRespBuf[0:4], 0)
	mt.QueueRead(packet(wire.SaharaCmdDoneResp, doneRespBuf))

	sess := NewSession(mt, testLogger(), nil)
	err := sess.Upload(context.Background(), loader)
	require.NoError(t, err)
	assert.Equal(t, StateHandoff, sess.State())

	writes := mt.Writes()
	require.Len(t, writes, 3) // HELLO_RESP, loader chunk, DONE
	assert.Equal(t, loader, writes[1])
}

func TestUploadLoaderRejected(t *testing.T) {
	mt := transport.NewMockTransport("mock0")
	loader := []byte("x")

	mt.QueueRead(packet(wire.SaharaCmdHello, helloBody(wire.SaharaModeImageTxPending)))

	endBuf := make([]byte, 8)
	codec.PutUint32LE(endBuf[0:4], 0)
	codec.PutUint32LE(endBuf[4:8], 0xDEAD)
	mt.QueueRead(packet(wire.SaharaCmdEndImageTx, endBuf))

	sess := NewSession(mt, testLogger(), nil)
	err := sess.Upload(context.Background(), loader)

	var rejected *ErrLoaderRejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, uint32(0xDEAD), rejected.Status)
	assert.Equal(t, StateFailed, sess.State())
}

func TestUploadUnexpectedCommand(t *testing.T) {
	mt := transport.NewMockTransport("mock0")
	mt.QueueRead(packet(wire.SaharaCmdDone, nil)) // not HELLO

	sess := NewSession(mt, testLogger(), nil)
	err := sess.Upload(context.Background(), []byte("x"))
	assert.Error(t, err)
	assert.Equal(t, StateFailed, sess.State())
}

func TestResetRecovery(t *testing.T) {
	mt := transport.NewMockTransport("mock0")
	mt.QueueRead(packet(wire.SaharaCmdResetResp, nil))

	sess := NewSession(mt, testLogger(), nil)
	err := sess.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateWaitHello, sess.State())
}

func TestServeChunkOutOfBounds(t *testing.T) {
	mt := transport.NewMockTransport("mock0")
	loader := []byte("short")

	mt.QueueRead(packet(wire.SaharaCmdHello, helloBody(wire.SaharaModeImageTxPending)))
	reqBuf := make([]byte, 12)
	codec.PutUint32LE(reqBuf[0:4], 0)
	codec.PutUint32LE(reqBuf[4:8], 0)
	codec.PutUint32LE(reqBuf[8:12], 9999) // exceeds loader length
	mt.QueueRead(packet(wire.SaharaCmdReadData, reqBuf))

	sess := NewSession(mt, testLogger(), nil)
	err := sess.Upload(context.Background(), loader)
	assert.Error(t, err)
}

func TestQueryIdentity(t *testing.T) {
	mt := transport.NewMockTransport("mock0")
	mt.QueueRead(packet(wire.SaharaCmdCmdReady, nil))

	for i := 0; i < 3; i++ {
		execResp := make([]byte, 8)
		codec.PutUint32LE(execResp[0:4], 0)
		codec.PutUint32LE(execResp[4:8], 4)
		mt.QueueRead(packet(wire.SaharaCmdExecResp, execResp))
		mt.QueueRead([]byte{1, 2, 3, 4})
	}

	sess := NewSession(mt, testLogger(), nil)
	id, err := sess.QueryIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCommandMode, sess.State())
	assert.Len(t, id.SerialNum, 4)
	assert.Len(t, id.MSMHWID, 4)
	assert.Len(t, id.OEMPKHash, 4)
}

func TestAuthenticateNoStrategyConfigured(t *testing.T) {
	mt := transport.NewMockTransport("mock0")
	sess := NewSession(mt, testLogger(), nil)
	_, err := sess.Authenticate(context.Background(), []byte{1, 2, 3})
	assert.Error(t, err)
}

// stubStrategy echoes the challenge back reversed, so tests can assert
// exactly what Upload sent without any real crypto.
type stubStrategy struct {
	gotChallenge []byte
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Authenticate(_ context.Context, _ auth.Handle, challenge []byte) ([]byte, error) {
	s.gotChallenge = challenge
	sig := make([]byte, len(challenge))
	for i, b := range challenge {
		sig[len(challenge)-1-i] = b
	}
	return sig, nil
}

func TestUploadWithAuthRequest(t *testing.T) {
	mt := transport.NewMockTransport("mock0")
	loader := []byte("loader-bytes-0123456789")
	challenge := []byte("0123456789ABCDEF") // 16 bytes

	mt.QueueRead(packet(wire.SaharaCmdHello, helloBody(wire.SaharaModeImageTxPending|wire.SaharaModeAuthRequired)))
	mt.QueueRead(challenge)

	// First READ_DATA should be answered with the signature, not loader bytes.
	authReqBuf := make([]byte, 12)
	codec.PutUint32LE(authReqBuf[0:4], 0)
	codec.PutUint32LE(authReqBuf[4:8], 0)
	codec.PutUint32LE(authReqBuf[8:12], uint32(len(challenge)))
	mt.QueueRead(packet(wire.SaharaCmdReadData, authReqBuf))

	loaderReqBuf := make([]byte, 12)
	codec.PutUint32LE(loaderReqBuf[0:4], 0)
	codec.PutUint32LE(loaderReqBuf[4:8], 0)
	codec.PutUint32LE(loaderReqBuf[8:12], uint32(len(loader)))
	mt.QueueRead(packet(wire.SaharaCmdReadData, loaderReqBuf))

	endBuf := make([]byte, 8)
	codec.PutUint32LE(endBuf[0:4], 0)
	codec.PutUint32LE(endBuf[4:8], 0)
	mt.QueueRead(packet(wire.SaharaCmdEndImageTx, endBuf))

	doneRespBuf := make([]byte, 4)
	codec.PutUint32LE(doneRespBuf[0:4], 0)
	mt.QueueRead(packet(wire.SaharaCmdDoneResp, doneRespBuf))

	strategy := &stubStrategy{}
	sess := NewSession(mt, testLogger(), strategy)
	err := sess.Upload(context.Background(), loader)
	require.NoError(t, err)
	assert.Equal(t, StateHandoff, sess.State())
	assert.Equal(t, challenge, strategy.gotChallenge)

	writes := mt.Writes()
	require.Len(t, writes, 4) // HELLO_RESP, auth response, loader chunk, DONE

	wantSig := make([]byte, len(challenge))
	for i, b := range challenge {
		wantSig[len(challenge)-1-i] = b
	}
	assert.Equal(t, wantSig, writes[1])
	assert.Equal(t, loader, writes[2])
}
