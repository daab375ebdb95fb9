// Package wire implements the framed message codec (spec.md §4.1): one
// byte of message kind, one presence flag for a correlation id, the
// optional two-byte correlation id, and the remaining bytes as payload.
package wire

import (
	"fmt"

	"github.com/dignetwork/chia-block-listener/internal/chiaerr"
)

// MessageKind tags the payload carried by a Message frame.
type MessageKind uint8

const (
	KindHandshake MessageKind = iota + 1
	KindNewPeak
	KindNewPeakWallet
	KindRequestBlock
	KindRespondBlock
	KindRejectBlock
	KindCoinStateUpdate

	// The remaining kinds are part of the real full-node wire protocol
	// but carry no payload type in this
	// package: the session's inbound dispatch logs and ignores them
	// (spec.md §4.4) rather than decoding their bodies.
	KindRequestBlocks
	KindRespondBlocks
	KindRejectBlocks
	KindRequestProofOfWeight
	KindRespondProofOfWeight
	KindRequestCompactVDF
	KindRespondCompactVDF
	KindNewCompactVDF
	KindRequestPeers
	KindRespondPeers
	KindNewSignagePoint
)

func (k MessageKind) String() string {
	switch k {
	case KindHandshake:
		return "HANDSHAKE"
	case KindNewPeak:
		return "NEW_PEAK"
	case KindNewPeakWallet:
		return "NEW_PEAK_WALLET"
	case KindRequestBlock:
		return "REQUEST_BLOCK"
	case KindRespondBlock:
		return "RESPOND_BLOCK"
	case KindRejectBlock:
		return "REJECT_BLOCK"
	case KindCoinStateUpdate:
		return "COIN_STATE_UPDATE"
	case KindRequestBlocks:
		return "REQUEST_BLOCKS"
	case KindRespondBlocks:
		return "RESPOND_BLOCKS"
	case KindRejectBlocks:
		return "REJECT_BLOCKS"
	case KindRequestProofOfWeight:
		return "REQUEST_PROOF_OF_WEIGHT"
	case KindRespondProofOfWeight:
		return "RESPOND_PROOF_OF_WEIGHT"
	case KindRequestCompactVDF:
		return "REQUEST_COMPACT_VDF"
	case KindRespondCompactVDF:
		return "RESPOND_COMPACT_VDF"
	case KindNewCompactVDF:
		return "NEW_COMPACT_VDF"
	case KindRequestPeers:
		return "REQUEST_PEERS"
	case KindRespondPeers:
		return "RESPOND_PEERS"
	case KindNewSignagePoint:
		return "NEW_SIGNAGE_POINT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// IsKnown reports whether k is one of the wire protocol's defined message
// kinds. A byte value outside this set is what Decode rejects as
// UnknownKind (spec.md §4.1); a value inside it but not one of the
// typed-payload kinds (KindHandshake...KindCoinStateUpdate) is what the
// session's inbound dispatch logs and ignores (spec.md §4.4).
func IsKnown(k MessageKind) bool {
	return k >= KindHandshake && k <= KindNewSignagePoint
}

// Message is one frame: a kind tag, an optional correlation id used to
// match a response to its request, and an opaque payload.
type Message struct {
	Kind          MessageKind
	CorrelationID *uint16
	Payload       []byte
}

// Encode serializes m per spec.md §4.1.
func Encode(m Message) []byte {
	w := newStreamWriter()
	w.u8(uint8(m.Kind))
	if m.CorrelationID != nil {
		w.u8(1)
		w.u16(*m.CorrelationID)
	} else {
		w.u8(0)
	}
	w.buf.Write(m.Payload)
	return w.Bytes()
}

// Decode parses a frame. A frame shorter than the 2-byte header fails
// with chiaerr.Decode{Truncated}; a correlation-id presence flag followed
// by fewer than 2 remaining bytes is likewise Truncated. A kind byte
// outside the set IsKnown accepts fails with chiaerr.Decode{UnknownKind}.
func Decode(frame []byte) (Message, error) {
	r := newStreamReader(frame)
	kindByte, err := r.u8()
	if err != nil {
		return Message{}, chiaerr.New(chiaerr.KindDecode, "truncated: missing kind byte")
	}
	if !IsKnown(MessageKind(kindByte)) {
		return Message{}, chiaerr.New(chiaerr.KindDecode, fmt.Sprintf("unknown message kind %d", kindByte))
	}
	hasID, err := r.boolean()
	if err != nil {
		return Message{}, chiaerr.New(chiaerr.KindDecode, "truncated: missing correlation-id flag")
	}
	var corrID *uint16
	if hasID {
		id, err := r.u16()
		if err != nil {
			return Message{}, chiaerr.New(chiaerr.KindDecode, "truncated: missing correlation id")
		}
		corrID = &id
	}
	return Message{
		Kind:          MessageKind(kindByte),
		CorrelationID: corrID,
		Payload:       append([]byte(nil), r.remaining()...),
	}, nil
}
