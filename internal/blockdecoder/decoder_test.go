package blockdecoder

import (
	"testing"

	"github.com/dignetwork/chia-block-listener/internal/blockmodel"
	"github.com/dignetwork/chia-block-listener/internal/clvm"
	"github.com/dignetwork/chia-block-listener/internal/clvm/clvmtest"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func baseBlock() blockmodel.FullBlock {
	return blockmodel.FullBlock{
		RewardChainBlock: blockmodel.RewardChainBlock{Height: 10, Weight: uint256.NewInt(12345)},
		Foliage: blockmodel.Foliage{
			PrevBlockHash:   blockmodel.Hash32{1},
			RewardBlockHash: blockmodel.Hash32{2},
			FoliageBlockData: blockmodel.FoliageBlockData{
				FarmerRewardPuzzleHash: blockmodel.Hash32{3},
				PoolTarget:             blockmodel.PoolTarget{PuzzleHash: blockmodel.Hash32{4}},
			},
			Raw: []byte("foliage-bytes"),
		},
	}
}

func TestDecodeNonTransactionBlockHasNoRewardsOrTimestamp(t *testing.T) {
	d := New(clvmtest.New(), 1_000_000, 1<<20)
	out := d.Decode(baseBlock(), nil)

	require.Equal(t, uint32(10), out.Height)
	require.Equal(t, "12345", out.Weight)
	require.Nil(t, out.Timestamp)
	require.Empty(t, out.CoinAdditions)
	require.False(t, out.HasGenerator)
}

func TestDecodeTransactionBlockWithoutGeneratorSeedsRewards(t *testing.T) {
	b := baseBlock()
	b.FoliageTransactionBlock = &blockmodel.FoliageTransactionBlock{Timestamp: 1700000000}
	d := New(clvmtest.New(), 1_000_000, 1<<20)
	out := d.Decode(b, nil)

	require.NotNil(t, out.Timestamp)
	require.Equal(t, uint32(1700000000), *out.Timestamp)
	require.Len(t, out.CoinAdditions, 2)
	require.Equal(t, blockmodel.FarmerRewardAmount, out.CoinAdditions[0].Amount)
	require.Equal(t, blockmodel.Hash32{2}, out.CoinAdditions[0].ParentID)
	require.Equal(t, blockmodel.PoolRewardAmount, out.CoinAdditions[1].Amount)
	require.False(t, out.HasGenerator)
}

func TestDecodeTransactionBlockWithGeneratorAppendsCreations(t *testing.T) {
	b := baseBlock()
	b.FoliageTransactionBlock = &blockmodel.FoliageTransactionBlock{Timestamp: 1700000000}

	puzzle := clvmtest.Atom([]byte("puzzle"))
	solution := clvmtest.Atom([]byte("solution"))
	parent := make([]byte, 32)
	parent[31] = 7
	amount := clvmtest.Atom(blockmodel.MinimalBigEndian(555))
	spendQuad := clvmtest.List(clvmtest.Atom(parent), puzzle, amount, solution)
	program := clvmtest.List(clvmtest.List(spendQuad))

	interp := clvmtest.New()
	var coinID [32]byte
	coinID[0] = 0x99
	interp.RunBlockGeneratorFunc = func(bytecode []byte, refs [][]byte, maxCost uint64) (clvm.SpendBundleConditions, error) {
		return clvm.SpendBundleConditions{Spends: []clvm.SpendConditions{
			{CoinID: coinID, CreateCoins: []clvm.CreateCoinCondition{{PuzzleHash: [32]byte{9}, Amount: 100}}},
		}}, nil
	}

	b.TransactionsGenerator = clvmtest.Encode(program)
	b.TransactionsGeneratorRefList = []uint32{1, 2}

	d := New(interp, 1_000_000, 1<<20)
	out := d.Decode(b, func(refs []uint32) [][]byte { return nil })

	require.True(t, out.HasGenerator)
	require.NotNil(t, out.GeneratorSize)
	require.Equal(t, uint32(len(b.TransactionsGenerator)), *out.GeneratorSize)
	require.Len(t, out.CoinSpends, 1)
	require.Len(t, out.CoinCreations, 1)
	// reward coins (2) + generator creation (1)
	require.Len(t, out.CoinAdditions, 3)
	require.Equal(t, blockmodel.Hash32(coinID), out.CoinCreations[0].ParentID)
	require.Equal(t, []uint32{1, 2}, out.GeneratorRefList)
}

func TestDecodeGeneratorParseFailureLeavesEmptySpends(t *testing.T) {
	b := baseBlock()
	b.FoliageTransactionBlock = &blockmodel.FoliageTransactionBlock{Timestamp: 1}
	b.TransactionsGenerator = []byte{0xff, 0xff, 0xff}

	interp := clvmtest.New()
	interp.DeserializeFunc = func(data []byte) (*clvmtest.Node, error) {
		return nil, errTest("unparseable")
	}
	d := New(interp, 1000, 1024)
	out := d.Decode(b, nil)

	require.True(t, out.HasGenerator)
	require.Empty(t, out.CoinSpends)
	require.Empty(t, out.CoinCreations)
	require.Len(t, out.CoinAdditions, 2)
}

type errTest string

func (e errTest) Error() string { return string(e) }
