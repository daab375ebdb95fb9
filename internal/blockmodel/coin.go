package blockmodel

// Coin is a UTXO-style record. Its identity is the sha256 of its parent
// id, puzzle hash and amount encoded as a minimal big-endian CLVM atom
// (spec.md §3); amount is non-negative and zero is a valid, nullifying
// coin.
type Coin struct {
	ParentID   Hash32
	PuzzleHash Hash32
	Amount     uint64
}

// ID computes the coin's identity hash.
func (c Coin) ID() Hash32 {
	return Sha256(c.ParentID[:], c.PuzzleHash[:], MinimalBigEndian(c.Amount))
}

// MinimalBigEndian encodes amount the way a CLVM atom encodes a
// non-negative integer: the shortest big-endian byte string that, read
// back as a two's-complement signed integer, reproduces amount. Because
// CLVM atoms are sign-significant, a leading 0x00 byte is prepended
// whenever the most significant bit of the trimmed representation would
// otherwise be mistaken for a sign bit. Zero encodes as the empty atom.
func MinimalBigEndian(amount uint64) []byte {
	if amount == 0 {
		return []byte{}
	}
	var buf [8]byte
	buf[0] = byte(amount >> 56)
	buf[1] = byte(amount >> 48)
	buf[2] = byte(amount >> 40)
	buf[3] = byte(amount >> 32)
	buf[4] = byte(amount >> 24)
	buf[5] = byte(amount >> 16)
	buf[6] = byte(amount >> 8)
	buf[7] = byte(amount)

	i := 0
	for i < len(buf)-1 && buf[i] == 0 {
		i++
	}
	trimmed := buf[i:]
	if trimmed[0]&0x80 != 0 {
		out := make([]byte, len(trimmed)+1)
		copy(out[1:], trimmed)
		return out
	}
	out := make([]byte, len(trimmed))
	copy(out, trimmed)
	return out
}

// SourceTag records how a CoinSpend was produced: by executing the
// block's generator (the only path the decoder currently exercises) or
// by the static pattern-matching helper in package generator, which is
// diagnostic only (see SPEC_FULL.md §12.2) and never emitted on the
// decode path.
type SourceTag string

const (
	SourceGeneratorExecuted SourceTag = "generator-executed"
	SourcePatternMatched    SourceTag = "pattern-matched"
)

// CoinSpend is one spend extracted from a block's generator: the coin
// being spent, the puzzle and solution that were evaluated, the coins it
// created, and how it was produced. ByteOffset is always 0 on the decode
// path; the executor does not record a position for the spend.
type CoinSpend struct {
	Coin         Coin
	PuzzleReveal []byte
	Solution     []byte
	CreatedCoins []Coin
	SourceTag    SourceTag
	ByteOffset   uint32
}
