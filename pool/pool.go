// Package pool implements the peer pool (spec.md §4.8): a set of live
// sessions keyed by host:port, a single cooperative dispatcher loop that
// matches queued requests to eligible peers, and peak-height aggregation
// and failure-based eviction across them.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dignetwork/chia-block-listener/internal/blockdecoder"
	"github.com/dignetwork/chia-block-listener/internal/blockmodel"
	"github.com/dignetwork/chia-block-listener/internal/chiaerr"
	"github.com/dignetwork/chia-block-listener/internal/clvm"
	"github.com/dignetwork/chia-block-listener/internal/peer"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Status is a session's position in the per-session state machine
// (spec.md §4.8 state diagram).
type Status int

const (
	StatusDialing Status = iota
	StatusHandshaking
	StatusReady
	StatusAwaitingResponse
	StatusFailing
	StatusClosed
)

// failureThreshold is the default for Config.FailureThreshold: how many
// consecutive per-request failures evict a peer (spec.md §4.8 "Failure
// handling").
const failureThreshold = 3

// selectionRateLimit is the default for Config.PoolSelectionRateLimit:
// the pool-level minimum spacing between selections of the same peer
// (spec.md §4.8 dispatcher eligibility: "now - last_used >= 500ms").
const selectionRateLimit = 500 * time.Millisecond

// defaultQueueCapacity is the default for Config.RequestQueueCapacity
// (spec.md:171, "request queue is bounded (capacity 100)").
const defaultQueueCapacity = 100

// dispatchTick bounds the dispatcher's idle sleep (spec.md §4.8: "each
// tick (<= 50ms)").
const dispatchTick = 50 * time.Millisecond

// PeerID identifies a pool-managed peer, distinct from the wire-level
// correlation id (SPEC_FULL.md §11: uuid is used for this, not the
// host:port key, so callers never need to parse a peer id back into an
// address).
type PeerID string

// PeerInfo is the pool's public view of one managed peer.
type PeerInfo struct {
	ID                 PeerID
	Host               string
	Port               uint16
	Status             Status
	PeakHeight         uint32
	ConsecutiveFailures int
}

type peerEntry struct {
	info     PeerInfo
	session  *peer.Session
	lastUsed time.Time
	cancel   context.CancelFunc
}

// Config configures pool behavior (SPEC_FULL.md §10.3). The rate-limit,
// queue-capacity and failure-threshold fields mirror config.Config's
// tunables of the same name one-for-one; cmd/chia-block-listener's
// toPoolConfig copies them straight across instead of hardcoding
// defaults.
type Config struct {
	NetworkID        string
	SoftwareVersion  string
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	MaxBlockCost     uint64
	MaxHeapSize      uint64

	// RequestRateLimit and MaxSkippedFrames are passed through to every
	// session this pool dials (spec.md §4.4).
	RequestRateLimit time.Duration
	MaxSkippedFrames int

	// PoolSelectionRateLimit is the minimum spacing between dispatcher
	// selections of the same peer (spec.md §4.8, 500ms default).
	PoolSelectionRateLimit time.Duration
	// RequestQueueCapacity bounds the pending-request queue (spec.md:171,
	// 100 default).
	RequestQueueCapacity int
	// FailureThreshold is how many consecutive per-request failures evict
	// a peer (spec.md §4.8 "Failure handling", 3 default).
	FailureThreshold int

	// RetryOnDifferentPeer implements the supplemented retry-once
	// behavior (SPEC_FULL.md §12.3): on a failed request the dispatcher
	// requeues it once before surfacing the error to the caller. The
	// requeued request goes to whichever peer is eligible next, which can
	// be the peer that just failed it. withDefaults leaves it false;
	// config.Default() sets it true.
	RetryOnDifferentPeer bool
}

func (c Config) withDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.MaxBlockCost == 0 {
		c.MaxBlockCost = 11_000_000_000
	}
	if c.MaxHeapSize == 0 {
		c.MaxHeapSize = 1 << 28
	}
	if c.RequestRateLimit == 0 {
		c.RequestRateLimit = peer.DefaultRequestRateLimit
	}
	if c.MaxSkippedFrames == 0 {
		c.MaxSkippedFrames = peer.DefaultMaxSkippedFrames
	}
	if c.PoolSelectionRateLimit == 0 {
		c.PoolSelectionRateLimit = selectionRateLimit
	}
	if c.RequestQueueCapacity == 0 {
		c.RequestQueueCapacity = defaultQueueCapacity
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = failureThreshold
	}
	return c
}

type blockRequest struct {
	ctx      context.Context
	height   uint32
	reply    chan blockReply
	retried  bool
}

type blockReply struct {
	block blockmodel.DecodedBlock
	err   error
}

// Pool owns the set of live peer sessions and the request dispatcher.
type Pool struct {
	cfg     Config
	decoder *blockdecoder.Decoder

	mu    sync.RWMutex
	peers map[PeerID]*peerEntry
	byKey map[string]PeerID
	cursor []PeerID

	highestPeak uint32

	queue      chan blockRequest
	emitter    *emitter
	group      *errgroup.Group
	groupCtx   context.Context
	shutdownFn context.CancelFunc

	limiter *rate.Limiter

	// dialFunc creates a session for a newly added peer. It defaults to
	// peer.Connect; tests override it to drive the pool against
	// transport.NewFakePair without a real socket.
	dialFunc func(ctx context.Context, host string, port uint16, cfg peer.Config, onTip func(peer.TipUpdate)) (*peer.Session, error)
}

// New constructs a Pool bound to interp for generator execution and
// starts its dispatcher loop.
func New(cfg Config, interp clvm.Interpreter) *Pool {
	return newPool(cfg, interp, peer.Connect)
}

func newPool(cfg Config, interp clvm.Interpreter, dial func(ctx context.Context, host string, port uint16, cfg peer.Config, onTip func(peer.TipUpdate)) (*peer.Session, error)) *Pool {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	p := &Pool{
		cfg:        cfg,
		decoder:    blockdecoder.New(interp, cfg.MaxBlockCost, cfg.MaxHeapSize),
		peers:      make(map[PeerID]*peerEntry),
		byKey:      make(map[string]PeerID),
		queue:      make(chan blockRequest, cfg.RequestQueueCapacity),
		emitter:    newEmitter(),
		group:      g,
		groupCtx:   gctx,
		shutdownFn: cancel,
		limiter:    rate.NewLimiter(rate.Every(cfg.PoolSelectionRateLimit), 1),
		dialFunc:   dial,
	}
	p.group.Go(func() error {
		p.dispatchLoop(ctx)
		return nil
	})
	return p
}

// Events returns the channel pool-level events are published on
// (SPEC_FULL.md/spec.md §5: "Event emission without holding locks").
func (p *Pool) Events() <-chan Event { return p.emitter.out }

func peerKey(host string, port uint16) string { return fmt.Sprintf("%s:%d", host, port) }

// AddPeer dials and handshakes a new peer, spawning a worker that owns
// its session (spec.md §4.8 add_peer).
func (p *Pool) AddPeer(ctx context.Context, host string, port uint16) (PeerID, error) {
	key := peerKey(host, port)

	p.mu.Lock()
	if existing, ok := p.byKey[key]; ok {
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	id := PeerID(uuid.NewString())
	workerCtx, cancel := context.WithCancel(p.groupCtx)

	entry := &peerEntry{
		info:     PeerInfo{ID: id, Host: host, Port: port, Status: StatusDialing},
		lastUsed: time.Now().Add(-p.cfg.PoolSelectionRateLimit),
		cancel:   cancel,
	}

	p.mu.Lock()
	p.peers[id] = entry
	p.byKey[key] = id
	p.cursor = append(p.cursor, id)
	p.mu.Unlock()

	sessionCfg := peer.Config{
		NetworkID:        p.cfg.NetworkID,
		SoftwareVersion:  p.cfg.SoftwareVersion,
		DialTimeout:      p.cfg.DialTimeout,
		HandshakeTimeout: p.cfg.HandshakeTimeout,
		RequestRateLimit: p.cfg.RequestRateLimit,
		MaxSkippedFrames: p.cfg.MaxSkippedFrames,
	}
	sess, err := p.dialFunc(ctx, host, port, sessionCfg, func(u peer.TipUpdate) { p.onTip(id, u) })
	if err != nil {
		p.mu.Lock()
		delete(p.peers, id)
		delete(p.byKey, key)
		p.removeFromCursor(id)
		p.mu.Unlock()
		return "", err
	}

	p.mu.Lock()
	entry.session = sess
	entry.info.Status = StatusReady
	p.mu.Unlock()

	p.emitter.emit(Event{Type: EventPeerConnected, PeerID: id, Host: host, Port: port})

	p.group.Go(func() error {
		<-workerCtx.Done()
		sess.Close()
		return nil
	})

	return id, nil
}

// RemovePeer signals the owning worker to shut down (spec.md §4.8
// remove_peer).
func (p *Pool) RemovePeer(id PeerID, reason string) bool {
	p.mu.Lock()
	entry, ok := p.peers[id]
	if !ok {
		p.mu.Unlock()
		return false
	}
	entry.info.Status = StatusClosed
	delete(p.peers, id)
	delete(p.byKey, peerKey(entry.info.Host, entry.info.Port))
	p.removeFromCursor(id)
	p.mu.Unlock()

	entry.cancel()
	p.emitter.emit(Event{Type: EventPeerDisconnected, PeerID: id, Host: entry.info.Host, Port: entry.info.Port, Reason: reason})
	return true
}

// removeFromCursor must be called with p.mu held.
func (p *Pool) removeFromCursor(id PeerID) {
	for i, c := range p.cursor {
		if c == id {
			p.cursor = append(p.cursor[:i], p.cursor[i+1:]...)
			return
		}
	}
}

// GetConnectedPeers lists currently-tracked peer ids (spec.md §4.8
// get_connected_peers).
func (p *Pool) GetConnectedPeers() []PeerID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PeerID, 0, len(p.peers))
	for id := range p.peers {
		out = append(out, id)
	}
	return out
}

// GetHighestPeak reports the aggregate highest peak seen so far, ok=false
// if no peer has reported one yet (spec.md §4.8 get_highest_peak).
func (p *Pool) GetHighestPeak() (uint32, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.highestPeak == 0 {
		return 0, false
	}
	return p.highestPeak, true
}

// GetBlockByHeight enqueues a request and waits for the dispatcher to
// satisfy it, the generator having already been executed and the block
// decoded (spec.md §4.8 get_block_by_height, joined with §4.7).
func (p *Pool) GetBlockByHeight(ctx context.Context, height uint32) (blockmodel.DecodedBlock, error) {
	req := blockRequest{ctx: ctx, height: height, reply: make(chan blockReply, 1)}
	select {
	case p.queue <- req:
	case <-ctx.Done():
		return blockmodel.DecodedBlock{}, chiaerr.Wrap(chiaerr.KindTimeout, ctx.Err())
	case <-p.groupCtx.Done():
		return blockmodel.DecodedBlock{}, chiaerr.New(chiaerr.KindDisconnected, "pool shut down")
	}

	select {
	case res := <-req.reply:
		return res.block, res.err
	case <-ctx.Done():
		return blockmodel.DecodedBlock{}, chiaerr.Wrap(chiaerr.KindTimeout, ctx.Err())
	}
}

// AwaitPeak blocks until some session reports a tip, or ctx is done
// (SPEC_FULL.md §12.4, a thin probe over existing tip-tracking machinery).
func (p *Pool) AwaitPeak(ctx context.Context) (uint32, error) {
	if h, ok := p.GetHighestPeak(); ok {
		return h, nil
	}
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, chiaerr.Wrap(chiaerr.KindTimeout, ctx.Err())
		case <-ticker.C:
			if h, ok := p.GetHighestPeak(); ok {
				return h, nil
			}
		}
	}
}

// Shutdown signals every worker to stop and waits for them to drain
// (spec.md §4.8 shutdown, §5 Cancellation).
func (p *Pool) Shutdown() {
	p.shutdownFn()
	_ = p.group.Wait()
	p.emitter.close()
}

func (p *Pool) onTip(id PeerID, u peer.TipUpdate) {
	p.mu.Lock()
	entry, ok := p.peers[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	entry.info.PeakHeight = u.NewHeight
	old := p.highestPeak
	updated := false
	if u.NewHeight > p.highestPeak {
		p.highestPeak = u.NewHeight
		updated = true
	}
	host, port := entry.info.Host, entry.info.Port
	p.mu.Unlock()

	if updated {
		p.emitter.emit(Event{Type: EventNewPeak, PeerID: id, Host: host, Port: port, OldPeak: old, NewPeak: u.NewHeight})
	}
}

func (p *Pool) recordFailure(id PeerID) {
	p.mu.Lock()
	entry, ok := p.peers[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	entry.info.ConsecutiveFailures++
	evict := entry.info.ConsecutiveFailures >= p.cfg.FailureThreshold
	if evict {
		entry.info.Status = StatusFailing
	} else {
		entry.info.Status = StatusReady
	}
	host, port := entry.info.Host, entry.info.Port
	if evict {
		delete(p.peers, id)
		delete(p.byKey, peerKey(host, port))
		p.removeFromCursor(id)
	}
	p.mu.Unlock()

	if evict {
		log.Warn("pool: evicting peer after repeated failures", "peer", id, "host", host, "port", port)
		entry.cancel()
		p.emitter.emit(Event{Type: EventPeerDisconnected, PeerID: id, Host: host, Port: port, Reason: "consecutive_failures"})
	}
}

// markReady restores entry's eligibility without touching its failure
// count, for outcomes that are neither a success nor a peer fault (e.g.
// a "request already in flight" race).
func (p *Pool) markReady(id PeerID) {
	p.mu.Lock()
	if entry, ok := p.peers[id]; ok {
		entry.info.Status = StatusReady
	}
	p.mu.Unlock()
}

func (p *Pool) recordSuccess(id PeerID) {
	p.mu.Lock()
	if entry, ok := p.peers[id]; ok {
		entry.info.ConsecutiveFailures = 0
		entry.info.Status = StatusReady
	}
	p.mu.Unlock()
}

// pickEligible returns an eligible peer id and advances the round-robin
// cursor (spec.md §4.8 dispatcher: "scan peers in round-robin order
// starting from a rotating cursor; eligible iff status=ready and
// now-last_used >= 500ms"). The picked entry is marked
// StatusAwaitingResponse before it is returned, excluding it from
// eligibility until recordSuccess/recordFailure puts it back to
// StatusReady, so a peer already mid-request is never handed a second
// concurrent request.
func (p *Pool) pickEligible() (PeerID, *peerEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.cursor)
	if n == 0 {
		return "", nil, false
	}
	now := time.Now()
	for i := 0; i < n; i++ {
		id := p.cursor[i]
		entry := p.peers[id]
		if entry == nil {
			continue
		}
		if entry.info.Status == StatusReady && now.Sub(entry.lastUsed) >= p.cfg.PoolSelectionRateLimit {
			entry.lastUsed = now
			entry.info.Status = StatusAwaitingResponse
			// rotate so the next scan starts after this pick
			p.cursor = append(p.cursor[i+1:], p.cursor[:i+1]...)
			return id, entry, true
		}
	}
	return "", nil, false
}

// eligiblePeerSet reports which peers are currently selectable, as a
// github.com/deckarep/golang-set/v2 set (SPEC_FULL.md §11). It is a
// diagnostic view only: pickEligible does not use it, and nothing in this
// package calls it.
func (p *Pool) eligiblePeerSet() mapset.Set[PeerID] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := time.Now()
	set := mapset.NewThreadUnsafeSet[PeerID]()
	for id, entry := range p.peers {
		if entry.info.Status == StatusReady && now.Sub(entry.lastUsed) >= p.cfg.PoolSelectionRateLimit {
			set.Add(id)
		}
	}
	return set
}

// hasAnyPeers reports whether the pool currently tracks any peer at
// all, used to distinguish "no peers in the pool" (spec.md:240
// NoPeersAvailable) from "peers exist but none free yet" (ordinary
// Timeout) when a queued request's deadline expires.
func (p *Pool) hasAnyPeers() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.peers) > 0
}

// dispatchLoop is the single cooperative dispatcher (spec.md §4.8).
func (p *Pool) dispatchLoop(ctx context.Context) {
	var pending []blockRequest
	ticker := time.NewTicker(dispatchTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, req := range pending {
				req.reply <- blockReply{err: chiaerr.New(chiaerr.KindDisconnected, "pool shut down")}
			}
			for {
				select {
				case req := <-p.queue:
					req.reply <- blockReply{err: chiaerr.New(chiaerr.KindDisconnected, "pool shut down")}
				default:
					return
				}
			}

		case req := <-p.queue:
			pending = append(pending, req)

		case <-ticker.C:
			pending = p.drainPending(ctx, pending)
		}
	}
}

// drainPending attempts to assign every queued request to an eligible
// peer, returning the requests that remain queued.
func (p *Pool) drainPending(ctx context.Context, pending []blockRequest) []blockRequest {
	var remaining []blockRequest
	for _, req := range pending {
		select {
		case <-req.ctx.Done():
			if p.hasAnyPeers() {
				req.reply <- blockReply{err: chiaerr.Wrap(chiaerr.KindTimeout, req.ctx.Err())}
			} else {
				req.reply <- blockReply{err: chiaerr.New(chiaerr.KindNoPeersAvailable, "no peers in pool")}
			}
			continue
		default:
		}

		id, entry, ok := p.pickEligible()
		if !ok {
			remaining = append(remaining, req)
			continue
		}
		p.serve(ctx, id, entry, req)
	}
	return remaining
}

// serve runs one request against entry's session on its own goroutine so
// the dispatcher is never blocked on I/O (spec.md §4.8: "hand the
// request to that worker; the worker replies on the request's reply
// channel").
func (p *Pool) serve(ctx context.Context, id PeerID, entry *peerEntry, req blockRequest) {
	p.group.Go(func() error {
		block, err := entry.session.GetBlockByHeight(req.ctx, req.height)
		if err != nil {
			// "request already in flight" is a dispatcher/session race,
			// not a peer fault (a healthy peer still answered its prior
			// request fine); don't let it count toward eviction.
			if kind, ok := chiaerr.Of(err); !ok || kind != chiaerr.KindBadInput {
				p.recordFailure(id)
			} else {
				p.markReady(id)
			}
			if p.cfg.RetryOnDifferentPeer && !req.retried {
				retry := req
				retry.retried = true
				select {
				case p.queue <- retry:
					return nil
				case <-ctx.Done():
				}
			}
			req.reply <- blockReply{err: err}
			return nil
		}
		p.recordSuccess(id)
		decoded := p.decoder.Decode(block, nil)
		req.reply <- blockReply{block: decoded}
		return nil
	})
}
