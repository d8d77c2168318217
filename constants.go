package edl

import "github.com/edlkit/edl/internal/transport"

// Re-exported defaults for the public API, sourced from internal/transport
// so the session layer and the transport layer never disagree about what
// "default" means (spec §3's SessionOptions / §4.1).
const (
	DefaultBufferSize       = transport.DefaultBufferSize
	LargeTransferBufferSize = transport.LargeTransferBufferSize

	DefaultBaudQualcomm     = transport.DefaultBaudQualcomm
	DefaultBaudMtkHandshake = transport.DefaultBaudMtkHandshake
	DefaultBaudMtkBulk      = transport.DefaultBaudMtkBulk
)
