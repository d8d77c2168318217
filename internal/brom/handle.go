package brom

import (
	"context"
	"errors"

	"github.com/edlkit/edl/internal/auth"
)

// errNotXML is returned by the XML-shaped Handle methods, which the BROM
// wire format has no use for; DA-side Strategies (MtkSLA) never call
// them, but Session must still satisfy auth.Handle to be usable
// anywhere a Strategy is.
var errNotXML = errors.New("brom: session has no XML command layer")

// SendXML implements auth.Handle. BROM/DA has no XML framing; present
// for interface compliance only.
func (s *Session) SendXML(_ context.Context, _ []byte) error { return errNotXML }

// ReadResponse implements auth.Handle. See SendXML.
func (s *Session) ReadResponse(_ context.Context) ([]byte, error) { return nil, errNotXML }

// SendBytes implements auth.Handle by writing raw bytes to the
// transport, for byte-oriented strategies. MtkSLA uses neither the
// handle nor the Session: it only signs the challenge, and runAuthGate
// does the transport reads and writes around it.
func (s *Session) SendBytes(ctx context.Context, data []byte) error {
	return s.t.Write(ctx, data)
}

// ReadBytes implements auth.Handle by reading exactly n bytes.
func (s *Session) ReadBytes(ctx context.Context, n int) ([]byte, error) {
	return s.t.Read(ctx, n, queryTimeout)
}

var _ auth.Handle = (*Session)(nil)
