// Package peer implements the handshake, single-threaded session loop
// and block fetcher (spec.md §4.3-§4.5): one goroutine owns a Conn and
// multiplexes inbound frames, outbound request commands and shutdown,
// the same structure the teacher's p2p peer loop uses for its own read
// pump.
package peer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dignetwork/chia-block-listener/internal/blockmodel"
	"github.com/dignetwork/chia-block-listener/internal/chiaerr"
	"github.com/dignetwork/chia-block-listener/internal/transport"
	"github.com/dignetwork/chia-block-listener/internal/wire"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"
)

// DefaultMaxSkippedFrames is the default for Config.MaxSkippedFrames: how
// many non-matching frames request_block tolerates before giving up
// (spec.md §4.4 "Interleaving contract"; §9 open question: a safety cap,
// not a protocol value).
const DefaultMaxSkippedFrames = 100

// DefaultRequestRateLimit is the default for Config.RequestRateLimit: the
// per-session minimum spacing between requests (spec.md §4.4 "Rate
// limiting").
const DefaultRequestRateLimit = 200 * time.Millisecond

// TipUpdate is forwarded to the pool whenever a NEW_PEAK_WALLET frame
// arrives (spec.md §4.4).
type TipUpdate struct {
	OldHeight uint32
	NewHeight uint32
}

// request is one outbound command accepted by the session loop.
type request struct {
	height      uint32
	includeTxs  bool
	reply       chan requestResult
}

type requestResult struct {
	block blockmodel.FullBlock
	err   error
}

// Session owns one peer connection and runs its event loop in its own
// goroutine (spec.md §4.4, §5: "the task is the only mutator of its
// session state").
type Session struct {
	conn       transport.Conn
	host       string
	port       uint16
	networkID  string
	handshake  wire.Handshake

	requests chan request
	done     chan struct{}
	closed   chan struct{}

	onTip func(TipUpdate)

	limiter    *rate.Limiter
	maxSkipped int

	lastRespondedHeight atomic.Uint32
}

// Config carries what Dial/Handshake/the session loop need beyond
// host:port (RequestRateLimit and MaxSkippedFrames surface config.Config's
// tested knobs of the same name through to the session that actually
// enforces them).
type Config struct {
	NetworkID        string
	SoftwareVersion  string
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	RequestRateLimit time.Duration
	MaxSkippedFrames int
}

func (c Config) withDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.RequestRateLimit == 0 {
		c.RequestRateLimit = DefaultRequestRateLimit
	}
	if c.MaxSkippedFrames == 0 {
		c.MaxSkippedFrames = DefaultMaxSkippedFrames
	}
	return c
}

// Connect dials host:port, performs the handshake (spec.md §4.3) and
// returns a Session whose loop is already running. onTip, if non-nil, is
// invoked (never while holding any internal lock, per spec.md §5) for
// every NEW_PEAK_WALLET frame.
func Connect(ctx context.Context, host string, port uint16, cfg Config, onTip func(TipUpdate)) (*Session, error) {
	cfg = cfg.withDefaults()
	conn, err := transport.Dial(ctx, host, port, cfg.DialTimeout)
	if err != nil {
		return nil, err
	}

	hs, err := performHandshake(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	s := &Session{
		conn:       conn,
		host:       host,
		port:       port,
		networkID:  cfg.NetworkID,
		handshake:  hs,
		requests:   make(chan request),
		done:       make(chan struct{}),
		closed:     make(chan struct{}),
		onTip:      onTip,
		limiter:    rate.NewLimiter(rate.Every(cfg.RequestRateLimit), 1),
		maxSkipped: cfg.MaxSkippedFrames,
	}
	go s.loop()
	return s, nil
}

// NewFromConn wires a Session around an already-handshaken Conn,
// bypassing Connect's dial and handshake. It exists for tests (this
// package's own, and package pool's) that drive the session loop
// directly against transport.NewFakePair.
func NewFromConn(conn transport.Conn, host string, port uint16, cfg Config, onTip func(TipUpdate)) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		conn:       conn,
		host:       host,
		port:       port,
		requests:   make(chan request),
		done:       make(chan struct{}),
		closed:     make(chan struct{}),
		onTip:      onTip,
		limiter:    rate.NewLimiter(rate.Every(cfg.RequestRateLimit), 1),
		maxSkipped: cfg.MaxSkippedFrames,
	}
	go s.loop()
	return s
}

func newTestSession(conn transport.Conn, onTip func(TipUpdate)) *Session {
	return NewFromConn(conn, "", 0, Config{}, onTip)
}

// Close signals the loop to shut down and waits for it to exit.
func (s *Session) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	<-s.closed
}

// RequestBlock implements the block fetcher (spec.md §4.5):
// get_block_by_height with include_transaction_block=true.
func (s *Session) RequestBlock(ctx context.Context, height uint32) (blockmodel.FullBlock, error) {
	reply := make(chan requestResult, 1)
	req := request{height: height, includeTxs: true, reply: reply}

	select {
	case s.requests <- req:
	case <-s.done:
		return blockmodel.FullBlock{}, chiaerr.New(chiaerr.KindDisconnected, "session closed")
	case <-ctx.Done():
		return blockmodel.FullBlock{}, chiaerr.Wrap(chiaerr.KindTimeout, ctx.Err())
	}

	select {
	case res := <-reply:
		return res.block, res.err
	case <-ctx.Done():
		return blockmodel.FullBlock{}, chiaerr.Wrap(chiaerr.KindTimeout, ctx.Err())
	}
}

// loop is the single-threaded cooperative event loop (spec.md §4.4).
// Only this goroutine touches session state past construction.
func (s *Session) loop() {
	defer close(s.closed)
	defer s.conn.Close()

	frames := make(chan wire.Message, 1)
	frameErrs := make(chan error, 1)
	go s.readPump(frames, frameErrs)

	var awaiting *request
	var skipped int

	finish := func(err error) {
		if awaiting != nil {
			awaiting.reply <- requestResult{err: err}
			awaiting = nil
		}
	}

	for {
		select {
		case <-s.done:
			finish(chiaerr.New(chiaerr.KindDisconnected, "session shutting down"))
			return

		case err := <-frameErrs:
			log.Debug("peer session: transport closed", "host", s.host, "port", s.port, "err", err)
			finish(chiaerr.Wrap(chiaerr.KindDisconnected, err))
			return

		case msg := <-frames:
			s.handleFrame(msg, &awaiting, &skipped)
			if awaiting != nil && skipped > s.maxSkipped {
				awaiting.reply <- requestResult{err: chiaerr.New(chiaerr.KindTimeout, "skipped-frame budget exceeded")}
				awaiting = nil
				skipped = 0
			}

		case req := <-s.requests:
			if awaiting != nil {
				req.reply <- requestResult{err: chiaerr.New(chiaerr.KindBadInput, "request already in flight")}
				continue
			}
			if delay := s.limiter.Reserve().Delay(); delay > 0 {
				select {
				case <-time.After(delay):
				case <-s.done:
					req.reply <- requestResult{err: chiaerr.New(chiaerr.KindDisconnected, "session shutting down")}
					continue
				}
			}
			rb := wire.RequestBlock{Height: req.height, IncludeTransactionBlock: req.includeTxs}
			corrID := uint16(1)
			out := wire.Message{Kind: wire.KindRequestBlock, CorrelationID: &corrID, Payload: rb.Encode()}
			if err := s.conn.WriteBinary(wire.Encode(out)); err != nil {
				req.reply <- requestResult{err: chiaerr.Wrap(chiaerr.KindTransport, err)}
				continue
			}
			r := req
			awaiting = &r
			skipped = 0
		}
	}
}

func (s *Session) readPump(out chan<- wire.Message, errs chan<- error) {
	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			errs <- err
			return
		}
		if frame.Type == transport.FrameClose {
			errs <- chiaerr.New(chiaerr.KindDisconnected, "peer closed connection")
			return
		}
		msg, err := wire.Decode(frame.Data)
		if err != nil {
			log.Debug("peer session: dropping undecodable frame", "err", err)
			continue
		}
		out <- msg
	}
}

// handleFrame implements the inbound dispatch table (spec.md §4.4).
func (s *Session) handleFrame(msg wire.Message, awaiting **request, skipped *int) {
	switch msg.Kind {
	case wire.KindNewPeakWallet:
		peak, err := wire.DecodeNewPeakWallet(msg.Payload)
		if err != nil {
			log.Debug("peer session: bad NEW_PEAK_WALLET frame", "err", err)
			return
		}
		old := s.lastRespondedHeight.Load()
		s.lastRespondedHeight.Store(peak.Height)
		if s.onTip != nil {
			s.onTip(TipUpdate{OldHeight: old, NewHeight: peak.Height})
		}
		if *awaiting != nil {
			*skipped++
		}

	case wire.KindRespondBlock:
		if *awaiting == nil {
			return
		}
		rb, err := wire.DecodeRespondBlock(msg.Payload)
		if err != nil {
			(*awaiting).reply <- requestResult{err: chiaerr.Wrap(chiaerr.KindDecode, err)}
		} else {
			(*awaiting).reply <- requestResult{block: rb.Block}
		}
		*awaiting = nil
		*skipped = 0

	case wire.KindRejectBlock:
		if *awaiting == nil {
			return
		}
		(*awaiting).reply <- requestResult{err: chiaerr.New(chiaerr.KindPeerRejected, "peer rejected block request")}
		*awaiting = nil
		*skipped = 0

	default:
		// NEW_PEAK (full-node variant), COIN_STATE_UPDATE and any other
		// structurally-known-but-unhandled kind: log and ignore (spec.md
		// §4.4).
		if *awaiting != nil {
			*skipped++
		}
	}
}

// KnownTipHeight returns the height carried by the most recent
// NEW_PEAK_WALLET frame this session received, 0 if none yet. A later
// announcement of a lower height replaces a higher one.
func (s *Session) KnownTipHeight() uint32 { return s.lastRespondedHeight.Load() }

func (s *Session) Host() string { return s.host }
func (s *Session) Port() uint16 { return s.port }
