package auth

import (
	"context"
	"encoding/binary"
	"fmt"
)

const (
	oplusVIPMaxDigestLen    = 4 * 1024
	oplusVIPMaxSignatureLen = 512
)

// OplusVIP uploads a digest and a pre-computed signature as a
// <firmwarewrite>-like command sent after configure but before any
// program command (spec §4.6). Digest and Signature are opaque vendor
// blobs; the core never computes or derives them.
type OplusVIP struct {
	Digest    []byte
	Signature []byte
}

func (o *OplusVIP) Name() string { return "oplus-vip" }

// Authenticate validates the size ceilings and concatenates the two
// blobs, length-prefixed, into the payload handle.SendBytes writes out
// as the firmwarewrite body.
func (o *OplusVIP) Authenticate(ctx context.Context, handle Handle, _ []byte) ([]byte, error) {
	if len(o.Digest) > oplusVIPMaxDigestLen {
		return nil, fmt.Errorf("%w: digest %d bytes exceeds %d-byte limit", ErrRejected, len(o.Digest), oplusVIPMaxDigestLen)
	}
	if len(o.Signature) > oplusVIPMaxSignatureLen {
		return nil, fmt.Errorf("%w: signature %d bytes exceeds %d-byte limit", ErrRejected, len(o.Signature), oplusVIPMaxSignatureLen)
	}

	payload := make([]byte, 0, 8+len(o.Digest)+len(o.Signature))
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(o.Digest)))
	payload = append(payload, lenBuf[:]...)
	payload = append(payload, o.Digest...)
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(o.Signature)))
	payload = append(payload, lenBuf[:]...)
	payload = append(payload, o.Signature...)

	if err := handle.SendBytes(ctx, payload); err != nil {
		return nil, fmt.Errorf("%w: send digest+signature: %v", ErrRejected, err)
	}
	resp, err := handle.ReadResponse(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRejected, err)
	}
	return resp, nil
}

var _ Strategy = (*OplusVIP)(nil)
