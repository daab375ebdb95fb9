package generator

import (
	"testing"

	"github.com/dignetwork/chia-block-listener/internal/blockmodel"
	"github.com/dignetwork/chia-block-listener/internal/clvm"
	"github.com/dignetwork/chia-block-listener/internal/clvm/clvmtest"
	"github.com/stretchr/testify/require"
)

func parentAtom(b byte) *clvmtest.Node {
	buf := make([]byte, 32)
	buf[31] = b
	return clvmtest.Atom(buf)
}

// quad builds a (parent_id puzzle amount solution) CLVM list.
func quad(parent byte, puzzle *clvmtest.Node, amount uint64, solution *clvmtest.Node) *clvmtest.Node {
	amt := blockmodel.MinimalBigEndian(amount)
	return clvmtest.List(parentAtom(parent), puzzle, clvmtest.Atom(amt), solution)
}

func TestExecuteJoinsPassAAndPassB(t *testing.T) {
	puzzle1 := clvmtest.Atom([]byte("puzzle-one"))
	puzzle2 := clvmtest.Atom([]byte("puzzle-two"))
	solution1 := clvmtest.Atom([]byte("sol-one"))
	solution2 := clvmtest.Atom([]byte("sol-two"))

	spendList := clvmtest.List(
		quad(1, puzzle1, 1000, solution1),
		quad(2, puzzle2, 2000, solution2),
	)
	// RunProgram returns "program" unchanged by default; First(result)
	// must yield spendList, so the program's structure is (spendList).
	program := clvmtest.List(spendList)

	interp := clvmtest.New()
	var coin0ID, coin1ID [32]byte
	coin0ID[0] = 0xaa
	coin1ID[0] = 0xbb
	interp.RunBlockGeneratorFunc = func(bytecode []byte, refs [][]byte, maxCost uint64) (clvm.SpendBundleConditions, error) {
		return clvm.SpendBundleConditions{
			Spends: []clvm.SpendConditions{
				{CoinID: coin0ID, CreateCoins: []clvm.CreateCoinCondition{
					{PuzzleHash: [32]byte{1}, Amount: 500},
				}},
				{CoinID: coin1ID, CreateCoins: []clvm.CreateCoinCondition{
					{PuzzleHash: [32]byte{2}, Amount: 700},
					{PuzzleHash: [32]byte{3}, Amount: 800},
				}},
			},
		}, nil
	}

	bytecode := clvmtest.Encode(program)
	result := Execute(interp, Inputs{Bytecode: bytecode, MaxBlockCost: 1_000_000, MaxHeapSize: 1 << 20})

	require.Len(t, result.Spends, 2)
	require.Equal(t, blockmodel.SourceGeneratorExecuted, result.Spends[0].SourceTag)
	require.Equal(t, uint64(1000), result.Spends[0].Coin.Amount)
	require.Equal(t, uint64(2000), result.Spends[1].Coin.Amount)

	require.Len(t, result.Spends[0].CreatedCoins, 1)
	require.Equal(t, blockmodel.Hash32(coin0ID), result.Spends[0].CreatedCoins[0].ParentID)
	require.Equal(t, uint64(500), result.Spends[0].CreatedCoins[0].Amount)

	require.Len(t, result.Spends[1].CreatedCoins, 2)
	require.Equal(t, blockmodel.Hash32(coin1ID), result.Spends[1].CreatedCoins[0].ParentID)

	require.Len(t, result.Removals, 2)
	require.Len(t, result.Creations, 3)
}

func TestExecuteParseFailureReturnsEmpty(t *testing.T) {
	interp := clvmtest.New()
	interp.DeserializeFunc = func(data []byte) (*clvmtest.Node, error) {
		return nil, assertError("bad bytecode")
	}
	result := Execute(interp, Inputs{Bytecode: []byte{0xff}, MaxBlockCost: 1000, MaxHeapSize: 1024})
	require.Empty(t, result.Spends)
	require.Empty(t, result.Removals)
	require.Empty(t, result.Creations)
}

func TestExecutePassBFailureLeavesSpendsWithoutCreations(t *testing.T) {
	puzzle := clvmtest.Atom([]byte("p"))
	solution := clvmtest.Atom([]byte("s"))
	spendList := clvmtest.List(quad(9, puzzle, 42, solution))
	program := clvmtest.List(spendList)

	interp := clvmtest.New()
	interp.RunBlockGeneratorFunc = func(bytecode []byte, refs [][]byte, maxCost uint64) (clvm.SpendBundleConditions, error) {
		return clvm.SpendBundleConditions{}, assertError("pass B exploded")
	}

	bytecode := clvmtest.Encode(program)
	result := Execute(interp, Inputs{Bytecode: bytecode, MaxBlockCost: 1000, MaxHeapSize: 1024})

	require.Len(t, result.Spends, 1)
	require.Empty(t, result.Spends[0].CreatedCoins)
	require.Empty(t, result.Creations)
	require.Len(t, result.Removals, 1)
}

func TestExecuteNoSpendsIsEmptyNotNil(t *testing.T) {
	program := clvmtest.List(clvmtest.Nil)
	interp := clvmtest.New()
	bytecode := clvmtest.Encode(program)
	result := Execute(interp, Inputs{Bytecode: bytecode, MaxBlockCost: 1000, MaxHeapSize: 1024})
	require.NotNil(t, result.Spends)
	require.NotNil(t, result.Removals)
	require.NotNil(t, result.Creations)
	require.Empty(t, result.Spends)
}

func TestExecuteEmptyBytecodeNeverInvokesInterpreter(t *testing.T) {
	interp := clvmtest.New()
	interp.DeserializeFunc = func(data []byte) (*clvmtest.Node, error) {
		t.Fatal("interpreter should not be invoked for empty generator bytecode")
		return nil, nil
	}
	result := Execute(interp, Inputs{Bytecode: nil, MaxBlockCost: 1000, MaxHeapSize: 1024})
	require.Empty(t, result.Spends)
	require.Empty(t, result.Removals)
	require.Empty(t, result.Creations)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertError(msg string) error { return simpleError(msg) }
