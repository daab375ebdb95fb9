package generator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeEmpty(t *testing.T) {
	a := Analyze(nil)
	require.True(t, a.Empty)
	require.Equal(t, 0, a.Size)
	require.False(t, a.LooksLikeCLVM)
}

func TestAnalyzeCLVMShaped(t *testing.T) {
	bytecode := []byte{0xff, 0x01, 0x33, 0x02}
	a := Analyze(bytecode)
	require.False(t, a.Empty)
	require.Equal(t, 4, a.Size)
	require.True(t, a.LooksLikeCLVM)
	require.True(t, a.HasCreateCoin)
	require.Greater(t, a.ShannonEntropy, 0.0)
}

func TestAnalyzeNonCLVM(t *testing.T) {
	a := Analyze([]byte{0x00, 0x01, 0x02})
	require.False(t, a.LooksLikeCLVM)
	require.False(t, a.HasCreateCoin)
}
