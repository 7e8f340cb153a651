// Package someiperr defines the error taxonomy shared by every decoding and
// reassembly stage: sentinel causes wrapped with github.com/pkg/errors so
// that call sites can attach packet-local context without losing the
// underlying classification.
package someiperr

import "github.com/pkg/errors"

// Sentinel causes. Every error produced by the decoding pipeline wraps one
// of these via errors.Wrap (directly, or through a package-level error such
// as someip.ErrShortPayload), so callers can classify with errors.Cause.
var (
	// ErrInvalidPacketFormat covers any layer decode failure: short buffer,
	// unknown EtherType/IP-protocol, or a length field overrunning the
	// buffer. Non-fatal; the packet is dropped.
	ErrInvalidPacketFormat = errors.New("invalid packet format")

	// ErrMissingField marks a required field absent from a decoded
	// structure. Non-fatal, packet-scoped.
	ErrMissingField = errors.New("missing field")

	// ErrTPSegment covers a malformed TP segment or a reassembly missing
	// its total size. Non-fatal; pending state is discarded.
	ErrTPSegment = errors.New("tp segment error")

	// ErrTCPStream covers a stream-level inconsistency. Non-fatal; the
	// stream may be reset.
	ErrTCPStream = errors.New("tcp stream error")

	// ErrMatrixFile covers a matrix document that cannot be parsed. Fatal
	// at startup.
	ErrMatrixFile = errors.New("matrix file error")

	// ErrConfig covers an invalid CLI argument combination or a missing
	// file. Fatal at startup.
	ErrConfig = errors.New("config error")
)

// Wrap attaches context to a sentinel cause, preserving it for errors.Cause.
func Wrap(cause error, context string) error {
	return errors.Wrap(cause, context)
}

// Wrapf attaches formatted context to a sentinel cause.
func Wrapf(cause error, format string, args ...interface{}) error {
	return errors.Wrapf(cause, format, args...)
}

// Is reports whether err's root cause is target.
func Is(err, target error) bool {
	return errors.Cause(err) == target
}
