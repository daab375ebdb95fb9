// Package clvm defines the narrow interface the generator executor
// (package generator) consumes from an external CLVM interpreter and
// consensus-rules block-cost engine (spec.md §6). Neither is part of
// this core: the core calls them through this interface, the same way
// spec.md §1 scopes them as external collaborators. A real binding
// wires this interface to the target chain's actual CLVM implementation;
// package clvmtest provides a deterministic fake for this module's own
// tests.
package clvm

// Node is an opaque handle into a Heap. Its zero value is never a valid
// node; interpreters return concrete, implementation-specific values
// satisfying this interface.
type Node any

// Heap is a bounded CLVM allocator. Its capacity is set by NewHeap's
// maxSize argument (spec.md §4.6 step 1: "Allocate a bounded CLVM heap").
type Heap interface {
	// Size reports the heap's current atom-byte usage, mostly useful for
	// diagnostics and tests.
	Size() uint64
}

// RunFlags configures RunBlockGenerator.
type RunFlags uint32

const (
	// FlagDontValidateSignature skips BLS signature validation (spec.md
	// §6: "Flag DONT_VALIDATE_SIGNATURE is set"). This core never
	// verifies signatures (spec.md §1 Non-goals).
	FlagDontValidateSignature RunFlags = 1 << iota
)

// Constants carries the subset of consensus constants RunBlockGenerator
// needs.
type Constants struct {
	MaxBlockCost uint64
}

// CreateCoinCondition is one CREATE_COIN condition attached to a spend by
// the cost engine (spec.md §4.6 Pass B).
type CreateCoinCondition struct {
	PuzzleHash [32]byte
	Amount     uint64
	Hint       []byte // optional; absent hints decode as a nil/empty slice
}

// SpendConditions is one entry of a SpendBundleConditions result: the
// canonical post-evaluation coin id for a spend and the CREATE_COIN
// conditions it produced.
type SpendConditions struct {
	CoinID      [32]byte
	CreateCoins []CreateCoinCondition
}

// SpendBundleConditions is Pass B's output (spec.md §4.6 step 5).
type SpendBundleConditions struct {
	Spends []SpendConditions
}

// Interpreter is the external CLVM + consensus-rules contract spec.md §6
// requires. Every method that can fail returns an error; the generator
// executor treats any of them failing as spec.md §4.6's "any executor
// exception" and short-circuits to empty results.
type Interpreter interface {
	NewHeap(maxSize uint64) Heap

	// DeserializeWithBackrefs parses CLVM bytecode that may reference
	// earlier nodes via back-references (spec.md §9: "CLVM
	// back-references. The back-reference-aware deserializer is required
	// for the generator").
	DeserializeWithBackrefs(h Heap, data []byte) (Node, error)

	Serialize(h Heap, n Node) ([]byte, error)

	// RunProgram evaluates program applied to args, bounded by maxCost.
	RunProgram(h Heap, program, args Node, maxCost uint64) (cost uint64, result Node, err error)

	TreeHash(h Heap, n Node) [32]byte

	// BuildGeneratorArgs assembles the generator's argument tuple from
	// the resolver-supplied prior-generator payloads (spec.md §4.6 step
	// 3).
	BuildGeneratorArgs(h Heap, refs [][]byte) (Node, error)

	// RunBlockGenerator is Pass B (spec.md §4.6 step 5): the full
	// consensus-rules block generator run, producing canonical coin ids
	// and CREATE_COIN conditions without re-implementing puzzle
	// evaluation in this core.
	RunBlockGenerator(h Heap, bytecode []byte, refs [][]byte, maxCost uint64, flags RunFlags, signature []byte, constants Constants) (SpendBundleConditions, error)

	// List/atom helpers (spec.md §6).
	First(h Heap, n Node) (Node, error)
	Rest(h Heap, n Node) (Node, error)
	IsNil(h Heap, n Node) bool
	Atom(h Heap, n Node) ([]byte, error)
	U64FromBytes(b []byte) (uint64, error)
}
