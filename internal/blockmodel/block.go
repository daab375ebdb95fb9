package blockmodel

import "github.com/holiman/uint256"

// FullBlock mirrors the subset of a Chia full-node FullBlock that the
// decoder touches (spec.md §3 treats the rest as opaque). A real binding
// layer is expected to populate this from the node's own streamable
// FullBlock type; nothing here claims to be a complete block schema.
type FullBlock struct {
	RewardChainBlock             RewardChainBlock
	Foliage                      Foliage
	FoliageTransactionBlock      *FoliageTransactionBlock
	TransactionsInfo             *TransactionsInfo
	TransactionsGenerator        []byte // nil when the block carries no generator
	TransactionsGeneratorRefList []uint32
}

type RewardChainBlock struct {
	Height uint32
	Weight *uint256.Int // u128 range; rendered as a decimal string in DecodedBlock
}

type Foliage struct {
	PrevBlockHash    Hash32
	RewardBlockHash  Hash32
	FoliageBlockData FoliageBlockData

	// Raw is the streamable serialization of this field, used verbatim
	// to compute DecodedBlock.HeaderHash (spec.md §4.7 step 2). A real
	// binding supplies this alongside the decoded fields above because
	// recomputing the exact streamable encoding of the full foliage
	// structure (including sub-fields this decoder never inspects) is
	// outside this core's scope.
	Raw []byte
}

type FoliageBlockData struct {
	FarmerRewardPuzzleHash Hash32
	PoolTarget             PoolTarget
}

type PoolTarget struct {
	PuzzleHash Hash32
}

type FoliageTransactionBlock struct {
	Timestamp uint64
}

type TransactionsInfo struct {
	RewardClaimsIncorporated []Coin
}

// Reward amounts fixed by consensus (spec.md §4.7 step 3), in mojos.
const (
	FarmerRewardAmount uint64 = 250_000_000_000
	PoolRewardAmount   uint64 = 1_750_000_000_000
)

// DecodedBlock is the normalized record returned to callers.
type DecodedBlock struct {
	Height   uint32
	Weight   string // decimal string: u128 values exceed 64 bits
	HeaderHash string

	Timestamp *uint32

	CoinAdditions []Coin
	CoinRemovals  []Coin
	CoinSpends    []CoinSpend
	CoinCreations []Coin

	HasGenerator         bool
	GeneratorSize        *uint32
	GeneratorBytecodeHex *string

	PrevHeaderHash   Hash32
	GeneratorRefList []uint32
}
