package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	id := uint16(7)
	cases := []Message{
		{Kind: KindHandshake, CorrelationID: nil, Payload: []byte("hello")},
		{Kind: KindRequestBlock, CorrelationID: &id, Payload: []byte{1, 2, 3}},
		{Kind: KindRespondBlock, CorrelationID: &id, Payload: []byte{}},
		{Kind: KindCoinStateUpdate, CorrelationID: nil, Payload: nil},
	}
	for _, want := range cases {
		got, err := Decode(Encode(want))
		require.NoError(t, err)
		require.Equal(t, want.Kind, got.Kind)
		require.Equal(t, want.CorrelationID, got.CorrelationID)
		if len(want.Payload) == 0 {
			require.Empty(t, got.Payload)
		} else {
			require.Equal(t, want.Payload, got.Payload)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode(nil)
	require.Error(t, err)

	id := uint16(1)
	frame := Encode(Message{Kind: KindHandshake, CorrelationID: &id})
	_, err = Decode(frame[:len(frame)-1])
	require.Error(t, err)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte{0xFF, 0})
	require.Error(t, err)
}

func TestHandshakeRoundTrip(t *testing.T) {
	h := OurHandshake("mainnet", "chia-block-listener/0.1.0")
	got, err := DecodeHandshake(h.Encode())
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestRequestBlockRoundTrip(t *testing.T) {
	want := RequestBlock{Height: 123456, IncludeTransactionBlock: true}
	got, err := DecodeRequestBlock(want.Encode())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRejectBlockRoundTrip(t *testing.T) {
	want := RejectBlock{Height: 42}
	got, err := DecodeRejectBlock(want.Encode())
	require.NoError(t, err)
	require.Equal(t, want, got)
}
