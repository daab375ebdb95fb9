package peer

import (
	"fmt"

	"github.com/dignetwork/chia-block-listener/internal/chiaerr"
	"github.com/dignetwork/chia-block-listener/internal/transport"
	"github.com/dignetwork/chia-block-listener/internal/wire"
)

const softwareVersionDefault = "chia-block-listener/0.1.0"

// performHandshake implements spec.md §4.3: send our handshake, read the
// first inbound frame, and reject unless it is a HANDSHAKE from a
// FULL_NODE on our configured network.
func performHandshake(conn transport.Conn, cfg Config) (wire.Handshake, error) {
	swVersion := cfg.SoftwareVersion
	if swVersion == "" {
		swVersion = softwareVersionDefault
	}
	ours := wire.OurHandshake(cfg.NetworkID, swVersion)
	msg := wire.Message{Kind: wire.KindHandshake, Payload: ours.Encode()}
	if err := conn.WriteBinary(wire.Encode(msg)); err != nil {
		return wire.Handshake{}, chiaerr.Wrap(chiaerr.KindTransport, err)
	}

	frame, err := conn.ReadFrame()
	if err != nil {
		return wire.Handshake{}, chiaerr.Wrap(chiaerr.KindTransport, err)
	}
	if frame.Type == transport.FrameClose {
		return wire.Handshake{}, chiaerr.New(chiaerr.KindHandshakeRejected, "peer closed connection before handshake")
	}

	reply, err := wire.Decode(frame.Data)
	if err != nil {
		return wire.Handshake{}, chiaerr.Wrap(chiaerr.KindDecode, err)
	}
	if reply.Kind != wire.KindHandshake {
		return wire.Handshake{}, chiaerr.New(chiaerr.KindHandshakeRejected, fmt.Sprintf("expected HANDSHAKE, got %s", reply.Kind))
	}

	theirs, err := wire.DecodeHandshake(reply.Payload)
	if err != nil {
		return wire.Handshake{}, chiaerr.Wrap(chiaerr.KindDecode, err)
	}
	if theirs.NodeType != wire.NodeTypeFullNode {
		return wire.Handshake{}, chiaerr.New(chiaerr.KindHandshakeRejected, "peer is not a full node")
	}
	if theirs.NetworkID != cfg.NetworkID {
		return wire.Handshake{}, chiaerr.New(chiaerr.KindHandshakeRejected, fmt.Sprintf("network id mismatch: want %q, got %q", cfg.NetworkID, theirs.NetworkID))
	}
	return theirs, nil
}
