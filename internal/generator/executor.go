// Package generator implements the two-pass generator execution
// algorithm (spec.md §4.6): a structural walk over the generator
// program's result for puzzle reveals and solutions, joined positionally
// with the consensus-rules cost-engine run for canonical coin ids and
// CREATE_COIN conditions. Neither pass re-implements CLVM evaluation;
// both are delegated to internal/clvm.Interpreter.
package generator

import (
	"compress/zlib"
	"io"

	"github.com/dignetwork/chia-block-listener/internal/blockmodel"
	"github.com/dignetwork/chia-block-listener/internal/clvm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/klauspost/compress/zstd"
)

// Result is the executor's output (spec.md §4.6): the coins consumed,
// the spends extracted from the structural walk joined with their
// cost-engine creations, and the flattened list of all created coins.
type Result struct {
	Removals  []blockmodel.Coin
	Spends    []blockmodel.CoinSpend
	Creations []blockmodel.Coin
}

// Inputs bundles a generator run's arguments (spec.md §4.6).
type Inputs struct {
	Bytecode     []byte
	RefPayloads  [][]byte
	MaxBlockCost uint64
	MaxHeapSize  uint64
}

var zstdDecoder *zstd.Decoder

func init() {
	d, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	zstdDecoder = d
}

// decompressRef undoes zstd or zlib framing a resolver may have applied
// to a prior-generator payload (SPEC_FULL.md §11: "Chia full nodes may
// serve these compressed"). A payload with neither magic is returned
// unchanged.
func decompressRef(b []byte) []byte {
	if len(b) >= 4 && b[0] == 0x28 && b[1] == 0xb5 && b[2] == 0x2f && b[3] == 0xfd {
		out, err := zstdDecoder.DecodeAll(b, nil)
		if err == nil {
			return out
		}
		log.Debug("generator: zstd ref decompression failed, using raw bytes", "err", err)
		return b
	}
	if len(b) >= 2 && b[0] == 0x78 {
		r, err := zlib.NewReader(newByteReader(b))
		if err == nil {
			defer r.Close()
			if out, err := io.ReadAll(r); err == nil {
				return out
			}
		}
	}
	return b
}

func newByteReader(b []byte) io.Reader { return &sliceReader{b: b} }

type sliceReader struct {
	b   []byte
	pos int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.b) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.pos:])
	s.pos += n
	return n, nil
}

// Execute runs the two-pass algorithm over in using interp. Any failure
// in parsing or Pass A short-circuits to an empty Result, matching
// spec.md §4.6 step 2's and the "Failure policy" paragraph's
// non-fatal-to-the-block contract. A Pass B failure only empties
// creations, per step 5.
func Execute(interp clvm.Interpreter, in Inputs) Result {
	empty := Result{Removals: []blockmodel.Coin{}, Spends: []blockmodel.CoinSpend{}, Creations: []blockmodel.Coin{}}

	if len(in.Bytecode) == 0 {
		return empty
	}

	heap := interp.NewHeap(in.MaxHeapSize)

	program, err := interp.DeserializeWithBackrefs(heap, in.Bytecode)
	if err != nil {
		log.Debug("generator: deserialize failed, treating block as spendless", "err", err)
		return empty
	}

	refs := make([][]byte, len(in.RefPayloads))
	for i, r := range in.RefPayloads {
		refs[i] = decompressRef(r)
	}

	args, err := interp.BuildGeneratorArgs(heap, refs)
	if err != nil {
		log.Debug("generator: building argument tuple failed", "err", err)
		return empty
	}

	spends, err := runPassA(interp, heap, program, args, in.MaxBlockCost)
	if err != nil {
		log.Debug("generator: pass A failed", "err", err)
		return empty
	}

	conds, err := interp.RunBlockGenerator(heap, in.Bytecode, refs, in.MaxBlockCost, clvm.FlagDontValidateSignature, nil, clvm.Constants{MaxBlockCost: in.MaxBlockCost})
	if err != nil {
		log.Debug("generator: pass B failed, spends carry no creations", "err", err)
		conds = clvm.SpendBundleConditions{}
	}

	joinCreations(spends, conds)

	out := Result{Spends: spends}
	for _, sp := range spends {
		out.Removals = append(out.Removals, sp.Coin)
		out.Creations = append(out.Creations, sp.CreatedCoins...)
	}
	if out.Removals == nil {
		out.Removals = []blockmodel.Coin{}
	}
	if out.Creations == nil {
		out.Creations = []blockmodel.Coin{}
	}
	return out
}

// runPassA is spec.md §4.6 step 4: run the program, take the first
// element of the result as the coin-spend quadruple list, and decode
// each quadruple.
func runPassA(interp clvm.Interpreter, heap clvm.Heap, program, args clvm.Node, maxCost uint64) ([]blockmodel.CoinSpend, error) {
	_, result, err := interp.RunProgram(heap, program, args, maxCost)
	if err != nil {
		return nil, err
	}

	quadList, err := interp.First(heap, result)
	if err != nil {
		return nil, err
	}

	var spends []blockmodel.CoinSpend
	cur := quadList
	for !interp.IsNil(heap, cur) {
		quad, err := interp.First(heap, cur)
		if err != nil {
			return nil, err
		}
		spend, err := decodeQuad(interp, heap, quad)
		if err != nil {
			return nil, err
		}
		spends = append(spends, spend)

		cur, err = interp.Rest(heap, cur)
		if err != nil {
			return nil, err
		}
	}
	if spends == nil {
		spends = []blockmodel.CoinSpend{}
	}
	return spends, nil
}

// decodeQuad decodes one (parent_id, puzzle, amount, solution) element
// (spec.md §4.6 step 4).
func decodeQuad(interp clvm.Interpreter, heap clvm.Heap, quad clvm.Node) (blockmodel.CoinSpend, error) {
	var sp blockmodel.CoinSpend

	parentNode, err := interp.First(heap, quad)
	if err != nil {
		return sp, err
	}
	rest1, err := interp.Rest(heap, quad)
	if err != nil {
		return sp, err
	}
	puzzleNode, err := interp.First(heap, rest1)
	if err != nil {
		return sp, err
	}
	rest2, err := interp.Rest(heap, rest1)
	if err != nil {
		return sp, err
	}
	amountNode, err := interp.First(heap, rest2)
	if err != nil {
		return sp, err
	}
	rest3, err := interp.Rest(heap, rest2)
	if err != nil {
		return sp, err
	}
	solutionNode, err := interp.First(heap, rest3)
	if err != nil {
		return sp, err
	}

	parentBytes, err := interp.Atom(heap, parentNode)
	if err != nil {
		return sp, err
	}
	parentID, err := blockmodel.HashFromBytes(parentBytes)
	if err != nil {
		return sp, err
	}

	puzzleHash := interp.TreeHash(heap, puzzleNode)

	amountBytes, err := interp.Atom(heap, amountNode)
	if err != nil {
		return sp, err
	}
	amount, err := interp.U64FromBytes(amountBytes)
	if err != nil {
		return sp, err
	}

	puzzleBytes, err := interp.Serialize(heap, puzzleNode)
	if err != nil {
		return sp, err
	}
	solutionBytes, err := interp.Serialize(heap, solutionNode)
	if err != nil {
		return sp, err
	}

	sp.Coin = blockmodel.Coin{ParentID: parentID, PuzzleHash: blockmodel.Hash32(puzzleHash), Amount: amount}
	sp.PuzzleReveal = puzzleBytes
	sp.Solution = solutionBytes
	sp.SourceTag = blockmodel.SourceGeneratorExecuted
	sp.ByteOffset = 0
	return sp, nil
}

// joinCreations attaches Pass B's created-coin list to each spend by
// position (spec.md §4.6 step 6): trailing spends beyond len(conds.Spends)
// get no creations, and each created coin's parent_id is Pass B's
// canonical coin id for that spend. Pass B's coin_id is authoritative
// (spec.md §4.6: "the authoritative post-evaluation coin creations and
// canonical coin ids"); Coin.ID() is only used here to cross-check it,
// never to override it, since Pass A decoded the same parent_id,
// puzzle_hash and amount independently.
func joinCreations(spends []blockmodel.CoinSpend, conds clvm.SpendBundleConditions) {
	for i := range spends {
		if i >= len(conds.Spends) {
			spends[i].CreatedCoins = []blockmodel.Coin{}
			continue
		}
		entry := conds.Spends[i]
		coinID := blockmodel.Hash32(entry.CoinID)
		if want := spends[i].Coin.ID(); want != coinID {
			log.Warn("generator: pass A/B coin id mismatch", "index", i, "pass_a", want.Hex(), "pass_b", coinID.Hex())
		}
		created := make([]blockmodel.Coin, len(entry.CreateCoins))
		for j, cc := range entry.CreateCoins {
			created[j] = blockmodel.Coin{
				ParentID:   coinID,
				PuzzleHash: blockmodel.Hash32(cc.PuzzleHash),
				Amount:     cc.Amount,
			}
		}
		spends[i].CreatedCoins = created
	}
}
