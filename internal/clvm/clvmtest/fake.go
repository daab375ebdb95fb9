// Package clvmtest is a deterministic, pure-Go stand-in for the real
// CLVM interpreter and consensus-rules block-cost engine that
// internal/clvm.Interpreter abstracts over (spec.md §6). It does not
// evaluate real CLVM bytecode; it gives package generator's tests a way
// to construct exactly the node trees and Pass B results a scenario
// needs, with overridable hooks for the failure paths spec.md §8 names.
package clvmtest

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/dignetwork/chia-block-listener/internal/clvm"
)

// Node is the fake interpreter's tree representation: either an atom
// (Pair == false) or a cons pair of two further nodes.
type Node struct {
	Pair  bool
	Atom  []byte
	First *Node
	Rest  *Node
}

// Nil is the canonical empty-list/false atom.
var Nil = &Node{Atom: []byte{}}

func Atom(b []byte) *Node { return &Node{Atom: append([]byte(nil), b...)} }

func Cons(first, rest *Node) *Node { return &Node{Pair: true, First: first, Rest: rest} }

// List builds a proper list terminated by Nil, as CLVM programs expect.
func List(items ...*Node) *Node {
	out := Nil
	for i := len(items) - 1; i >= 0; i-- {
		out = Cons(items[i], out)
	}
	return out
}

type heap struct {
	max  uint64
	size uint64
}

func (h *heap) Size() uint64 { return h.size }

// Interpreter is the fake. DeserializeWithBackrefs and RunProgram default
// to an identity evaluation model: the "program" bytes this fake
// deserializes from ARE the result RunProgram returns, letting tests
// express "the generator evaluates to this result" directly instead of
// authoring real CLVM opcodes. RunBlockGeneratorFunc and
// DeserializeFunc/RunProgramFunc let a test override either stage to
// exercise the failure paths spec.md §8 names (parse failure, Pass B
// failure).
type Interpreter struct {
	// DeserializeFunc overrides DeserializeWithBackrefs. Defaults to
	// decoding the tiny self-describing format Encode produces.
	DeserializeFunc func(data []byte) (*Node, error)

	// RunProgramFunc overrides RunProgram. Defaults to returning program
	// unchanged (cost 1), i.e. "program" already IS the result tree.
	RunProgramFunc func(program, args *Node, maxCost uint64) (uint64, *Node, error)

	// RunBlockGeneratorFunc overrides Pass B. Defaults to returning an
	// empty SpendBundleConditions with no error, so every spend gets empty
	// created_coins through the positional join's count mismatch: the same
	// outcome as spec.md §4.6 step 5's failure fallback, without taking
	// the failure path. A test sets this to return an error to exercise
	// the "Pass A succeeds, Pass B fails" boundary.
	RunBlockGeneratorFunc func(bytecode []byte, refs [][]byte, maxCost uint64) (clvm.SpendBundleConditions, error)
}

func New() *Interpreter { return &Interpreter{} }

func (i *Interpreter) NewHeap(maxSize uint64) clvm.Heap { return &heap{max: maxSize} }

func (i *Interpreter) DeserializeWithBackrefs(h clvm.Heap, data []byte) (clvm.Node, error) {
	if i.DeserializeFunc != nil {
		n, err := i.DeserializeFunc(data)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	n, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (i *Interpreter) Serialize(h clvm.Heap, n clvm.Node) ([]byte, error) {
	node, ok := n.(*Node)
	if !ok {
		return nil, fmt.Errorf("clvmtest: not a Node")
	}
	return Encode(node), nil
}

func (i *Interpreter) RunProgram(h clvm.Heap, program, args clvm.Node, maxCost uint64) (uint64, clvm.Node, error) {
	p, ok := program.(*Node)
	if !ok {
		return 0, nil, fmt.Errorf("clvmtest: program is not a Node")
	}
	a, _ := args.(*Node)
	if i.RunProgramFunc != nil {
		cost, result, err := i.RunProgramFunc(p, a, maxCost)
		return cost, result, err
	}
	return 1, p, nil
}

func (i *Interpreter) TreeHash(h clvm.Heap, n clvm.Node) [32]byte {
	node, ok := n.(*Node)
	if !ok {
		return [32]byte{}
	}
	return treeHash(node)
}

func treeHash(n *Node) [32]byte {
	if n.Pair {
		fh := treeHash(n.First)
		rh := treeHash(n.Rest)
		return sha256.Sum256(append(append([]byte{2}, fh[:]...), rh[:]...))
	}
	return sha256.Sum256(append([]byte{1}, n.Atom...))
}

func (i *Interpreter) BuildGeneratorArgs(h clvm.Heap, refs [][]byte) (clvm.Node, error) {
	items := make([]*Node, len(refs))
	for idx, r := range refs {
		items[idx] = Atom(r)
	}
	return Cons(List(items...), Nil), nil
}

func (i *Interpreter) RunBlockGenerator(h clvm.Heap, bytecode []byte, refs [][]byte, maxCost uint64, flags clvm.RunFlags, signature []byte, constants clvm.Constants) (clvm.SpendBundleConditions, error) {
	if i.RunBlockGeneratorFunc != nil {
		return i.RunBlockGeneratorFunc(bytecode, refs, maxCost)
	}
	return clvm.SpendBundleConditions{}, nil
}

func (i *Interpreter) First(h clvm.Heap, n clvm.Node) (clvm.Node, error) {
	node, ok := n.(*Node)
	if !ok || !node.Pair {
		return nil, fmt.Errorf("clvmtest: first of non-pair")
	}
	return node.First, nil
}

func (i *Interpreter) Rest(h clvm.Heap, n clvm.Node) (clvm.Node, error) {
	node, ok := n.(*Node)
	if !ok || !node.Pair {
		return nil, fmt.Errorf("clvmtest: rest of non-pair")
	}
	return node.Rest, nil
}

func (i *Interpreter) IsNil(h clvm.Heap, n clvm.Node) bool {
	node, ok := n.(*Node)
	return ok && !node.Pair && len(node.Atom) == 0
}

func (i *Interpreter) Atom(h clvm.Heap, n clvm.Node) ([]byte, error) {
	node, ok := n.(*Node)
	if !ok || node.Pair {
		return nil, fmt.Errorf("clvmtest: atom of non-atom")
	}
	return node.Atom, nil
}

func (i *Interpreter) U64FromBytes(b []byte) (uint64, error) {
	if len(b) > 8 {
		return 0, fmt.Errorf("clvmtest: atom too large for u64")
	}
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return binary.BigEndian.Uint64(buf[:]), nil
}

// Encode/Decode implement the tiny self-describing format
// DeserializeWithBackrefs/Serialize use by default: one tag byte (0 =
// atom, 1 = pair), an atom's 4-byte length prefix and bytes, or a pair's
// two recursively encoded children. It has nothing to do with the real
// chain's CLVM serialization; it only needs to round-trip within this
// fake.
func Encode(n *Node) []byte {
	if n.Pair {
		out := []byte{1}
		out = append(out, Encode(n.First)...)
		out = append(out, Encode(n.Rest)...)
		return out
	}
	out := []byte{0}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(n.Atom)))
	out = append(out, lenBuf[:]...)
	out = append(out, n.Atom...)
	return out
}

func Decode(data []byte) (*Node, []byte, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("clvmtest: unexpected end of input")
	}
	tag := data[0]
	rest := data[1:]
	switch tag {
	case 0:
		if len(rest) < 4 {
			return nil, nil, fmt.Errorf("clvmtest: truncated atom length")
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < n {
			return nil, nil, fmt.Errorf("clvmtest: truncated atom")
		}
		return Atom(rest[:n]), rest[n:], nil
	case 1:
		first, rest, err := Decode(rest)
		if err != nil {
			return nil, nil, err
		}
		second, rest, err := Decode(rest)
		if err != nil {
			return nil, nil, err
		}
		return Cons(first, second), rest, nil
	default:
		return nil, nil, fmt.Errorf("clvmtest: unknown tag %d", tag)
	}
}
