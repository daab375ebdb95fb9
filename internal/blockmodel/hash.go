// Package blockmodel holds the data types shared across the wire codec,
// peer session, generator executor and block decoder: Hash32, Coin,
// CoinSpend, the subset of FullBlock fields the decoder touches (spec.md
// §3 treats FullBlock as opaque outside those fields), and the decoder's
// output, DecodedBlock.
package blockmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash32 is a fixed 32-byte opaque identifier, rendered as lowercase hex
// at external boundaries.
type Hash32 [32]byte

func (h Hash32) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h Hash32) String() string { return h.Hex() }

// Bytes returns a defensive copy of the underlying bytes.
func (h Hash32) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, h[:])
	return out
}

func (h Hash32) IsZero() bool {
	return h == Hash32{}
}

// HashFromBytes builds a Hash32 from exactly 32 bytes.
func HashFromBytes(b []byte) (Hash32, error) {
	var h Hash32
	if len(b) != 32 {
		return h, fmt.Errorf("blockmodel: expected 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex parses a lowercase or uppercase hex string, with or without
// a 0x prefix, into a Hash32.
func HashFromHex(s string) (Hash32, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash32{}, fmt.Errorf("blockmodel: invalid hex hash: %w", err)
	}
	return HashFromBytes(b)
}

// Sha256 hashes an arbitrary byte sequence into a Hash32, the primitive
// coin identity and tree-hash rely on.
func Sha256(parts ...[]byte) Hash32 {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash32
	copy(out[:], h.Sum(nil))
	return out
}
