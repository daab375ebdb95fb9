package blockmodel

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinimalBigEndianZeroIsEmptyAtom(t *testing.T) {
	require.Equal(t, []byte{}, MinimalBigEndian(0))
}

func TestMinimalBigEndianTrimsLeadingZeroBytes(t *testing.T) {
	require.Equal(t, []byte{0x01}, MinimalBigEndian(1))
	require.Equal(t, []byte{0x01, 0x00}, MinimalBigEndian(256))
}

func TestMinimalBigEndianPrependsSignByteWhenMSBSet(t *testing.T) {
	// 0x80 alone would read back as -128 in two's complement; the atom
	// encoding must prepend 0x00 to keep it non-negative.
	require.Equal(t, []byte{0x00, 0x80}, MinimalBigEndian(0x80))
	require.Equal(t, []byte{0x7f}, MinimalBigEndian(0x7f))
}

func TestMinimalBigEndianMaxUint64(t *testing.T) {
	got := MinimalBigEndian(^uint64(0))
	require.Equal(t, []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, got)
}

func TestCoinIDMatchesSha256OfParentPuzzleAmount(t *testing.T) {
	c := Coin{
		ParentID:   Hash32{1, 2, 3},
		PuzzleHash: Hash32{4, 5, 6},
		Amount:     42,
	}

	h := sha256.New()
	h.Write(c.ParentID[:])
	h.Write(c.PuzzleHash[:])
	h.Write(MinimalBigEndian(42))
	var want Hash32
	copy(want[:], h.Sum(nil))

	require.Equal(t, want, c.ID())
}

func TestCoinIDIsSensitiveToEveryField(t *testing.T) {
	base := Coin{ParentID: Hash32{1}, PuzzleHash: Hash32{2}, Amount: 7}
	diffParent := base
	diffParent.ParentID = Hash32{9}
	diffPuzzle := base
	diffPuzzle.PuzzleHash = Hash32{9}
	diffAmount := base
	diffAmount.Amount = 8

	require.NotEqual(t, base.ID(), diffParent.ID())
	require.NotEqual(t, base.ID(), diffPuzzle.ID())
	require.NotEqual(t, base.ID(), diffAmount.ID())
}

func TestCoinIDZeroAmountIsValid(t *testing.T) {
	c := Coin{ParentID: Hash32{1}, PuzzleHash: Hash32{2}, Amount: 0}
	require.False(t, c.ID().IsZero())
}
