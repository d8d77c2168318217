package edl

import (
	"errors"
	"fmt"
)

// Error is the structured error every exported operation returns:
// protocol phase, failure kind and any device log text accumulated
// before the failure (spec §7).
type Error struct {
	Op    string    // operation that failed, e.g. "identify", "program", "read_partitions"
	Phase string    // protocol phase active at the time, e.g. "sahara", "firehose", "brom"
	Kind  ErrorKind // high-level failure category
	Log   []string  // device <log> text accumulated before the failure, if any
	Inner error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("edl: %s: %s: %s", e.Op, e.Phase, e.Kind)
	if e.Inner != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Inner)
	}
	if len(e.Log) > 0 {
		msg = fmt.Sprintf("%s (log: %s)", msg, joinLog(e.Log))
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// Is lets callers match on Kind with errors.Is(err, &edl.Error{Kind: ...}).
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

func joinLog(lines []string) string {
	out := lines[0]
	for _, l := range lines[1:] {
		out += "; " + l
	}
	return out
}

// ErrorKind enumerates exactly the failure taxonomy of spec §7.
type ErrorKind string

const (
	KindIoTimeout          ErrorKind = "io_timeout"
	KindDeviceDisappeared  ErrorKind = "device_disappeared"
	KindBadMagic           ErrorKind = "bad_magic"
	KindNak                ErrorKind = "nak"
	KindChecksumMismatch   ErrorKind = "checksum_mismatch"
	KindAuthRejected       ErrorKind = "auth_rejected"
	KindPartitionNotFound  ErrorKind = "partition_not_found"
	KindPartitionProtected ErrorKind = "partition_protected"
	KindBusy               ErrorKind = "busy"
	KindCancelled          ErrorKind = "cancelled"
)

// newError builds an *Error, the constructor every orchestrator method
// funnels through so Op/Phase are never forgotten on a return path.
func newError(op, phase string, kind ErrorKind, inner error) *Error {
	return &Error{Op: op, Phase: phase, Kind: kind, Inner: inner}
}

// withLog attaches accumulated device log lines to an error built by
// newError, used where a NAK response carries diagnostic text.
func withLog(err *Error, log []string) *Error {
	err.Log = log
	return err
}

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
