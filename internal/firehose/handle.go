package firehose

import (
	"context"
	"fmt"

	"github.com/edlkit/edl/internal/auth"
)

// SendXML implements auth.Handle by writing a pre-encoded command frame
// verbatim (used by strategies that build their own XML element rather
// than one of this package's typed command structs).
func (s *Session) SendXML(ctx context.Context, body []byte) error {
	return s.t.Write(ctx, body)
}

// ReadResponse implements auth.Handle by reading and ACK-checking the
// next response frame, returning its raw bytes on success.
func (s *Session) ReadResponse(ctx context.Context) ([]byte, error) {
	raw, err := s.t.ReadUntilSilence(ctx, commandTimeout, responseSilence)
	if err != nil {
		return nil, fmt.Errorf("firehose: read handle response: %w", err)
	}
	resp, err := ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("firehose: parse handle response: %w", err)
	}
	if err := resp.CheckAck(); err != nil {
		return raw, err
	}
	return raw, nil
}

// SendBytes implements auth.Handle by writing raw bytes, used for
// authentication payloads that are not XML (OPLUS VIP digest+signature).
func (s *Session) SendBytes(ctx context.Context, data []byte) error {
	return s.t.Write(ctx, data)
}

// ReadBytes implements auth.Handle by reading exactly n bytes.
func (s *Session) ReadBytes(ctx context.Context, n int) ([]byte, error) {
	return s.t.Read(ctx, n, bulkChunkTimeout)
}

var _ auth.Handle = (*Session)(nil)
