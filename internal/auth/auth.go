// Package auth implements the pluggable challenge/response handlers a
// protocol driver invokes at an authentication gate: OnePlus and Xiaomi
// tokens over Firehose, OPLUS VIP digest+signature upload, and MediaTek
// SLA signing. A Strategy never touches a Transport directly; it is
// handed a narrow Handle so re-entrancy into the driver's own state
// machine stays impossible (spec §4.6).
package auth

import (
	"context"
	"errors"
)

// ErrRejected is wrapped by a Strategy when the device or an external
// signer refuses a challenge.
var ErrRejected = errors.New("auth: rejected")

// Handle is the minimal capability set a Strategy needs, implemented by
// both the Firehose and BROM/DA drivers so a strategy is portable across
// protocols without depending on either one's concrete session type.
type Handle interface {
	SendXML(ctx context.Context, body []byte) error
	ReadResponse(ctx context.Context) ([]byte, error)
	SendBytes(ctx context.Context, data []byte) error
	ReadBytes(ctx context.Context, n int) ([]byte, error)
}

// Strategy authenticates a challenge issued by the device during
// loader/DA bring-up and returns the signed or encrypted blob to send
// back.
type Strategy interface {
	// Name identifies the strategy for logging and CLI selection.
	Name() string
	// Authenticate consumes challenge (nil where the protocol phase
	// itself carries no explicit challenge bytes, e.g. OPLUS VIP) and
	// returns the blob the driver should write back to the device.
	Authenticate(ctx context.Context, handle Handle, challenge []byte) ([]byte, error)
}
