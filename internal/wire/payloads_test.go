package wire

import (
	"testing"

	"github.com/dignetwork/chia-block-listener/internal/blockmodel"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestNewPeakWalletRoundTrip(t *testing.T) {
	want := NewPeakWallet{
		HeaderHash:            blockmodel.Hash32{1, 2, 3},
		Height:                100,
		Weight:                uint256.NewInt(123456789),
		ForkPointWithPrevPeak: 99,
	}
	got, err := DecodeNewPeakWallet(want.Encode())
	require.NoError(t, err)
	require.Equal(t, want.HeaderHash, got.HeaderHash)
	require.Equal(t, want.Height, got.Height)
	require.True(t, want.Weight.Eq(got.Weight))
	require.Equal(t, want.ForkPointWithPrevPeak, got.ForkPointWithPrevPeak)
}

func TestRespondBlockRoundTrip(t *testing.T) {
	block := blockmodel.FullBlock{
		RewardChainBlock: blockmodel.RewardChainBlock{
			Height: 5,
			Weight: uint256.NewInt(999),
		},
		Foliage: blockmodel.Foliage{
			PrevBlockHash:   blockmodel.Hash32{9},
			RewardBlockHash: blockmodel.Hash32{8},
			FoliageBlockData: blockmodel.FoliageBlockData{
				FarmerRewardPuzzleHash: blockmodel.Hash32{1},
				PoolTarget:             blockmodel.PoolTarget{PuzzleHash: blockmodel.Hash32{2}},
			},
			Raw: []byte("foliage-bytes"),
		},
		FoliageTransactionBlock: &blockmodel.FoliageTransactionBlock{Timestamp: 1700000000},
		TransactionsInfo: &blockmodel.TransactionsInfo{
			RewardClaimsIncorporated: []blockmodel.Coin{
				{ParentID: blockmodel.Hash32{3}, PuzzleHash: blockmodel.Hash32{4}, Amount: 7},
			},
		},
		TransactionsGenerator:        []byte{0xff, 0x80, 0x01},
		TransactionsGeneratorRefList: []uint32{1, 2, 3},
	}
	want := RespondBlock{Block: block}
	got, err := DecodeRespondBlock(want.Encode())
	require.NoError(t, err)
	require.Equal(t, block.RewardChainBlock.Height, got.Block.RewardChainBlock.Height)
	require.True(t, block.RewardChainBlock.Weight.Eq(got.Block.RewardChainBlock.Weight))
	require.Equal(t, block.Foliage.PrevBlockHash, got.Block.Foliage.PrevBlockHash)
	require.Equal(t, block.Foliage.Raw, got.Block.Foliage.Raw)
	require.Equal(t, block.FoliageTransactionBlock.Timestamp, got.Block.FoliageTransactionBlock.Timestamp)
	require.Equal(t, block.TransactionsInfo.RewardClaimsIncorporated, got.Block.TransactionsInfo.RewardClaimsIncorporated)
	require.Equal(t, block.TransactionsGenerator, got.Block.TransactionsGenerator)
	require.Equal(t, block.TransactionsGeneratorRefList, got.Block.TransactionsGeneratorRefList)
}

func FuzzDecodeNeverPanics(f *testing.F) {
	id := uint16(3)
	f.Add(Encode(Message{Kind: KindRequestBlock, CorrelationID: &id, Payload: []byte("abc")}))
	f.Add(Encode(Message{Kind: KindNewPeakWallet, Payload: nil}))
	f.Fuzz(func(t *testing.T, frame []byte) {
		// Decode must never panic, regardless of input.
		_, _ = Decode(frame)
	})
}
