// Package cryptoerr is the error-kind taxonomy of spec §7: behavior, not
// type names. The crypto-composition and worker layers classify every
// failure into one of six kinds. The receive and roster pipelines log and
// drop every kind except Precondition; façade methods return Precondition
// for caller misuse and also return the Transport and ProtocolViolation
// errors of their own server, directory and decode steps.
package cryptoerr

import "fmt"

// Kind is one of the six behaviors spec §7 names.
type Kind int

const (
	// Transport is a network/timeout failure, retried with backoff by
	// the originating loop.
	Transport Kind = iota
	// CryptoVerification is a bad signature, bad chain, or AEAD open
	// failure. The offending entry is silently dropped.
	CryptoVerification
	// ProtocolViolation is a malformed encoding, wrong tag, or mismatched
	// identifier. Same handling as CryptoVerification, plus diagnostics.
	ProtocolViolation
	// StoreConflict is a uniqueness violation on insert, treated as
	// idempotent success.
	StoreConflict
	// Authorization is an unauthorized management event, ignored by the
	// roster engine.
	Authorization
	// Precondition is a façade-RPC misuse (e.g. convo_send to an unknown
	// group). This is the only kind surfaced to the user as an RPC
	// failure.
	Precondition
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case CryptoVerification:
		return "crypto_verification"
	case ProtocolViolation:
		return "protocol_violation"
	case StoreConflict:
		return "store_conflict"
	case Authorization:
		return "authorization"
	case Precondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// Error is a classified error carrying its Kind alongside the usual
// message/wrapped-cause chain.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error.
func New(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Msg: msg, Err: cause}
}

// Dropped reports whether errors of this kind are silently dropped by the
// receive/roster pipelines rather than surfaced to a caller (every kind
// except Precondition).
func (k Kind) Dropped() bool { return k != Precondition }
