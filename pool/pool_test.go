package pool

import (
	"context"
	"testing"
	"time"

	"github.com/dignetwork/chia-block-listener/internal/blockmodel"
	"github.com/dignetwork/chia-block-listener/internal/clvm/clvmtest"
	"github.com/dignetwork/chia-block-listener/internal/peer"
	"github.com/dignetwork/chia-block-listener/internal/transport"
	"github.com/dignetwork/chia-block-listener/internal/wire"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeDialer hands back sessions wired to an in-memory Conn, recording
// the remote-side handle so tests can script replies, standing in for
// peer.Connect's real TLS dial + handshake.
type fakeDialer struct {
	remotes map[string]transport.Conn
}

func newFakeDialer() *fakeDialer { return &fakeDialer{remotes: map[string]transport.Conn{}} }

func (d *fakeDialer) dial(ctx context.Context, host string, port uint16, cfg peer.Config, onTip func(peer.TipUpdate)) (*peer.Session, error) {
	a, b := transport.NewFakePair()
	d.remotes[peerKey(host, port)] = b
	return peer.NewFromConn(a, host, port, cfg, onTip), nil
}

func newTestPool(t *testing.T, retryOnDifferentPeer bool) (*Pool, *fakeDialer) {
	t.Helper()
	dialer := newFakeDialer()
	p := newPool(Config{NetworkID: "testnet", RetryOnDifferentPeer: retryOnDifferentPeer}, clvmtest.New(), dialer.dial)
	return p, dialer
}

func serveOneBlock(t *testing.T, conn transport.Conn, height uint32) {
	t.Helper()
	frame, err := conn.ReadFrame()
	require.NoError(t, err)
	msg, err := wire.Decode(frame.Data)
	require.NoError(t, err)
	require.Equal(t, wire.KindRequestBlock, msg.Kind)

	block := blockmodel.FullBlock{RewardChainBlock: blockmodel.RewardChainBlock{Height: height, Weight: uint256.NewInt(1)}}
	resp := wire.RespondBlock{Block: block}
	require.NoError(t, conn.WriteBinary(wire.Encode(wire.Message{Kind: wire.KindRespondBlock, CorrelationID: msg.CorrelationID, Payload: resp.Encode()})))
}

func TestPoolGetBlockByHeightHappyPath(t *testing.T) {
	p, dialer := newTestPool(t, false)
	defer p.Shutdown()

	_, err := p.AddPeer(context.Background(), "peer1", 8444)
	require.NoError(t, err)

	conn := dialer.remotes[peerKey("peer1", 8444)]
	done := make(chan struct{})
	var block blockmodel.DecodedBlock
	var resultErr error
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		block, resultErr = p.GetBlockByHeight(ctx, 123)
		close(done)
	}()

	serveOneBlock(t, conn, 123)
	<-done
	require.NoError(t, resultErr)
	require.Equal(t, uint32(123), block.Height)
}

func TestPoolEvictsPeerAfterRepeatedFailures(t *testing.T) {
	p, dialer := newTestPool(t, false)
	defer p.Shutdown()

	id, err := p.AddPeer(context.Background(), "flaky", 8444)
	require.NoError(t, err)

	conn := dialer.remotes[peerKey("flaky", 8444)]
	events := p.Events()

	for i := 0; i < p.cfg.FailureThreshold; i++ {
		done := make(chan struct{})
		go func(height uint32) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_, err := p.GetBlockByHeight(ctx, height)
			require.Error(t, err)
			close(done)
		}(uint32(i))

		frame, err := conn.ReadFrame()
		require.NoError(t, err)
		msg, err := wire.Decode(frame.Data)
		require.NoError(t, err)
		reject := wire.RejectBlock{Height: uint32(i)}
		require.NoError(t, conn.WriteBinary(wire.Encode(wire.Message{Kind: wire.KindRejectBlock, CorrelationID: msg.CorrelationID, Payload: reject.Encode()})))
		<-done
	}

	var sawDisconnect bool
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case ev := <-events:
			if ev.Type == EventPeerDisconnected && ev.PeerID == id {
				sawDisconnect = true
				break loop
			}
		case <-deadline:
			break loop
		}
	}
	require.True(t, sawDisconnect)
}

func TestPoolShutdownDrainsWithoutLeaks(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	p, dialer := newTestPool(t, false)
	_, err := p.AddPeer(context.Background(), "peer1", 8444)
	require.NoError(t, err)
	_ = dialer

	p.Shutdown()
}

func TestAwaitPeakReturnsOnceATipArrives(t *testing.T) {
	p, _ := newTestPool(t, false)
	defer p.Shutdown()

	_, err := p.AddPeer(context.Background(), "peer1", 8444)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.onTip(p.GetConnectedPeers()[0], peer.TipUpdate{NewHeight: 77})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h, err := p.AwaitPeak(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(77), h)
}
