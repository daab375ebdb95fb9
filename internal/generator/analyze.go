package generator

import "math"

// Analysis is a diagnostic summary of a generator's raw bytecode,
// computed without executing it. It is purely informational: the decode
// path (spec.md §4.6) always runs Execute unconditionally when a
// generator is present and never consults Analysis to decide control
// flow (SPEC_FULL.md §12.2).
type Analysis struct {
	Size           int
	Empty          bool
	LooksLikeCLVM  bool
	HasCreateCoin  bool
	ShannonEntropy float64
}

// clvmPairTag is the byte that starts a serialized CLVM cons pair; as
// the first byte of a program produced by the reference compiler it is
// effectively universal for a non-trivial program.
const clvmPairTag = 0xff

// createCoinOpcode is CREATE_COIN's condition opcode as a CLVM small
// atom (51 decimal, 0x33), matched as a byte-pattern heuristic only.
const createCoinOpcode = 0x33

// Analyze computes size, emptiness and coarse byte-pattern heuristics
// over bytecode (SPEC_FULL.md §12.2, grounded on the dropped Rust
// analyze_generator pass). It never returns an error: any input is
// "analyzable" in the sense that every field has a well-defined value
// for it, including the empty slice.
func Analyze(bytecode []byte) Analysis {
	a := Analysis{Size: len(bytecode), Empty: len(bytecode) == 0}
	if a.Empty {
		return a
	}
	a.LooksLikeCLVM = bytecode[0] == clvmPairTag
	a.HasCreateCoin = containsByte(bytecode, createCoinOpcode)
	a.ShannonEntropy = shannonEntropy(bytecode)
	return a
}

func containsByte(b []byte, target byte) bool {
	for _, v := range b {
		if v == target {
			return true
		}
	}
	return false
}

func shannonEntropy(b []byte) float64 {
	var counts [256]int
	for _, v := range b {
		counts[v]++
	}
	n := float64(len(b))
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
