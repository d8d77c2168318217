// Package keystore supplies the vendor authentication secrets that
// internal/auth strategies sign or encrypt challenges with. The core
// never derives keys; lookup is kept behind an interface so keys can be
// supplied by file, resource, or network (spec §9).
package keystore

// KeyKind distinguishes the identifier space a key is looked up in: a
// MediaTek SLA key is keyed by hw_code, a OnePlus token key by proj_id,
// and so on.
type KeyKind int

const (
	KindHwCode KeyKind = iota
	KindProjID
	KindOplusVIP
	KindXiaomiProvider
)

func (k KeyKind) String() string {
	switch k {
	case KindHwCode:
		return "hw_code"
	case KindProjID:
		return "proj_id"
	case KindOplusVIP:
		return "oplus_vip"
	case KindXiaomiProvider:
		return "xiaomi_provider"
	default:
		return "unknown"
	}
}

// KeyStore resolves an opaque key blob for a (kind, id) pair. A missing
// entry is reported via the second return, never an error: callers treat
// it as "this device's keys are not configured" and surface
// Auth::Rejected rather than crash.
type KeyStore interface {
	Lookup(kind KeyKind, id string) ([]byte, bool)
}
