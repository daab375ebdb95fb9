package transport

import (
	"sync"

	"github.com/dignetwork/chia-block-listener/internal/chiaerr"
)

// fakeConn is an in-memory Conn used by peer and pool tests, the same
// role net.Pipe plays for tests that don't need real sockets but do need
// two independently driven ends.
type fakeConn struct {
	send     chan Frame
	recv     chan Frame
	closeMu  sync.Mutex
	closed   bool
	closedCh chan struct{}
}

// NewFakePair returns two connected Conn implementations: frames written
// to one are read from the other.
func NewFakePair() (a, b Conn) {
	c1to2 := make(chan Frame, 64)
	c2to1 := make(chan Frame, 64)
	closed := make(chan struct{})
	fa := &fakeConn{send: c1to2, recv: c2to1, closedCh: closed}
	fb := &fakeConn{send: c2to1, recv: c1to2, closedCh: closed}
	return fa, fb
}

func (f *fakeConn) ReadFrame() (Frame, error) {
	select {
	case fr, ok := <-f.recv:
		if !ok {
			return Frame{Type: FrameClose}, nil
		}
		return fr, nil
	case <-f.closedCh:
		return Frame{Type: FrameClose}, nil
	}
}

func (f *fakeConn) WriteBinary(data []byte) error {
	f.closeMu.Lock()
	defer f.closeMu.Unlock()
	if f.closed {
		return chiaerr.New(chiaerr.KindDisconnected, "fake connection closed")
	}
	select {
	case f.send <- Frame{Type: FrameBinary, Data: data}:
		return nil
	case <-f.closedCh:
		return chiaerr.New(chiaerr.KindDisconnected, "fake connection closed")
	}
}

func (f *fakeConn) Close() error {
	f.closeMu.Lock()
	defer f.closeMu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	select {
	case <-f.closedCh:
	default:
		close(f.closedCh)
	}
	return nil
}
