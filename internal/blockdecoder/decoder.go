// Package blockdecoder implements decode(FullBlock) -> DecodedBlock
// (spec.md §4.7): reward-coin seeding, generator execution via package
// generator, and header-hash computation.
package blockdecoder

import (
	"encoding/hex"

	"github.com/dignetwork/chia-block-listener/internal/blockmodel"
	"github.com/dignetwork/chia-block-listener/internal/clvm"
	"github.com/dignetwork/chia-block-listener/internal/generator"
	"github.com/holiman/uint256"
)

// Decoder ties a CLVM interpreter binding and consensus constants to
// Decode. It holds no per-block state and is safe for concurrent use.
type Decoder struct {
	Interp       clvm.Interpreter
	MaxBlockCost uint64
	MaxHeapSize  uint64
}

func New(interp clvm.Interpreter, maxBlockCost, maxHeapSize uint64) *Decoder {
	return &Decoder{Interp: interp, MaxBlockCost: maxBlockCost, MaxHeapSize: maxHeapSize}
}

// Decode normalizes b into a DecodedBlock (spec.md §4.7 steps 1-6).
// refResolver supplies the raw bytes for each entry of
// b.TransactionsGeneratorRefList (spec.md §9 open question: resolving
// the ref list against prior blocks requires an external block store;
// this core treats an absent resolver as "no references available" and
// passes an empty list, per spec.md's "for this spec, the list may be
// empty").
func (d *Decoder) Decode(b blockmodel.FullBlock, refResolver func(refs []uint32) [][]byte) blockmodel.DecodedBlock {
	out := blockmodel.DecodedBlock{
		Height:           b.RewardChainBlock.Height,
		Weight:           weightString(b.RewardChainBlock.Weight),
		HeaderHash:       headerHash(b.Foliage).Hex(),
		PrevHeaderHash:   b.Foliage.PrevBlockHash,
		GeneratorRefList: b.TransactionsGeneratorRefList,
		CoinAdditions:    []blockmodel.Coin{},
		CoinRemovals:     []blockmodel.Coin{},
		CoinSpends:       []blockmodel.CoinSpend{},
		CoinCreations:    []blockmodel.Coin{},
	}

	if b.FoliageTransactionBlock != nil {
		ts := uint32(b.FoliageTransactionBlock.Timestamp)
		out.Timestamp = &ts

		farmerReward := blockmodel.Coin{
			ParentID:   b.Foliage.RewardBlockHash,
			PuzzleHash: b.Foliage.FoliageBlockData.FarmerRewardPuzzleHash,
			Amount:     blockmodel.FarmerRewardAmount,
		}
		poolReward := blockmodel.Coin{
			ParentID:   b.Foliage.RewardBlockHash,
			PuzzleHash: b.Foliage.FoliageBlockData.PoolTarget.PuzzleHash,
			Amount:     blockmodel.PoolRewardAmount,
		}
		out.CoinAdditions = append(out.CoinAdditions, farmerReward, poolReward)
	}

	if b.TransactionsInfo != nil {
		out.CoinRemovals = append(out.CoinRemovals, b.TransactionsInfo.RewardClaimsIncorporated...)
	}

	if b.TransactionsGenerator != nil {
		out.HasGenerator = true
		size := uint32(len(b.TransactionsGenerator))
		out.GeneratorSize = &size
		hexStr := hex.EncodeToString(b.TransactionsGenerator)
		out.GeneratorBytecodeHex = &hexStr

		var refs [][]byte
		if refResolver != nil {
			refs = refResolver(b.TransactionsGeneratorRefList)
		}

		result := generator.Execute(d.Interp, generator.Inputs{
			Bytecode:     b.TransactionsGenerator,
			RefPayloads:  refs,
			MaxBlockCost: d.MaxBlockCost,
			MaxHeapSize:  d.MaxHeapSize,
		})

		out.CoinRemovals = append(out.CoinRemovals, result.Removals...)
		out.CoinSpends = result.Spends
		out.CoinCreations = append(out.CoinCreations, result.Creations...)
		out.CoinAdditions = append(out.CoinAdditions, result.Creations...)
	}

	return out
}

// headerHash computes sha256 over the streamable serialization of the
// foliage field (spec.md §4.7 step 2). Foliage.Raw carries that
// serialization verbatim (see blockmodel.Foliage doc comment).
func headerHash(f blockmodel.Foliage) blockmodel.Hash32 {
	return blockmodel.Sha256(f.Raw)
}

func weightString(w *uint256.Int) string {
	if w == nil {
		return "0"
	}
	return w.Dec()
}
