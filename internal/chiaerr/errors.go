// Package chiaerr defines the error taxonomy shared by the peer, pool and
// block-decoding packages. Each kind matches a distinct failure mode a
// caller needs to branch on; none of them carry the underlying transport
// or protocol library's own error type, so callers never need to import
// gorilla/websocket or crypto/tls to inspect a result.
package chiaerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories a caller can branch on.
type Kind int

const (
	_ Kind = iota
	KindTransport
	KindHandshakeRejected
	KindDecode
	KindPeerRejected
	KindDisconnected
	KindTimeout
	KindNoPeersAvailable
	KindBadInput
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "TransportError"
	case KindHandshakeRejected:
		return "HandshakeRejected"
	case KindDecode:
		return "DecodeError"
	case KindPeerRejected:
		return "PeerRejected"
	case KindDisconnected:
		return "Disconnected"
	case KindTimeout:
		return "Timeout"
	case KindNoPeersAvailable:
		return "NoPeersAvailable"
	case KindBadInput:
		return "BadInput"
	default:
		return "Unknown"
	}
}

// Error is the single error type the core surfaces to callers. Detail
// carries a human-readable cause; Unwrap exposes it so errors.Is/As still
// works against the underlying library error (e.g. a net.Error from a
// dial failure).
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, chiaerr.Timeout) match regardless of Detail/Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, cause error) *Error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// Sentinel values for errors.Is comparisons against a bare kind.
var (
	Transport        = &Error{Kind: KindTransport}
	HandshakeReject  = &Error{Kind: KindHandshakeRejected}
	Decode           = &Error{Kind: KindDecode}
	PeerRejected     = &Error{Kind: KindPeerRejected}
	Disconnected     = &Error{Kind: KindDisconnected}
	Timeout          = &Error{Kind: KindTimeout}
	NoPeersAvailable = &Error{Kind: KindNoPeersAvailable}
	BadInput         = &Error{Kind: KindBadInput}
)

// Of reports the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
