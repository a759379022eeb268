package comm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-connectome/pkg/logging"
)

// Socket represents a messaging socket that can send and receive messages.
// This interface abstracts the underlying transport (NNG, ZMQ, or an
// in-memory fake for testing).
type Socket interface {
	io.Closer
	Send([]byte) error
	// Recv returns ErrRecvTimeout when the receive deadline expires.
	Recv() ([]byte, error)
	SetRecvDeadline(d time.Duration) error
	SetSendDeadline(d time.Duration) error
}

// ListenSocket is a socket that can bind to an address and accept connections.
type ListenSocket interface {
	Socket
	Listen(addr string) error
}

// DialSocket is a socket that can connect to a remote address.
type DialSocket interface {
	Socket
	Dial(addr string) error
}

// SocketFactory creates the push/pull sockets a SocketComm is built from
type SocketFactory interface {
	NewPushSocket() (DialSocket, error)
	NewPullSocket() (ListenSocket, error)
}

// SocketConfig configures a socket-backed communicator
type SocketConfig struct {
	Rank int
	// Peers holds one address per rank; rank i listens on Peers[i].
	Peers []string
	// CollectiveTimeout bounds every collective; zero waits forever.
	CollectiveTimeout time.Duration
	// SendTimeout bounds a single frame send.
	SendTimeout time.Duration
	// PollInterval is the receive deadline used to notice Close.
	PollInterval time.Duration
	Logger       logging.Logger
}

// SocketComm runs collectives over point-to-point push/pull sockets.
// Rank r owns one pull socket on Peers[r] and one push socket dialed to
// every other peer. A receive loop files incoming frames by round.
type SocketComm struct {
	cfg    SocketConfig
	pull   ListenSocket
	pushes []DialSocket
	logger logging.Logger

	seq uint64

	mu      sync.Mutex
	rounds  map[uint64]*socketRound
	recvErr error
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

type socketRound struct {
	frames   [][]byte
	ops      []op
	received int
	ready    chan struct{}
}

// NewSocketComm listens on this rank's address and dials every peer
func NewSocketComm(factory SocketFactory, cfg SocketConfig) (Communicator, error) {
	size := len(cfg.Peers)
	if size == 0 || cfg.Rank < 0 || cfg.Rank >= size {
		return nil, fmt.Errorf("%w: rank %d with %d peers", ErrInvalidArgument, cfg.Rank, size)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	sc := &SocketComm{
		cfg:    cfg,
		pushes: make([]DialSocket, size),
		logger: cfg.Logger.With(logging.Component("comm"), logging.Rank(cfg.Rank)),
		rounds: make(map[uint64]*socketRound),
		done:   make(chan struct{}),
	}

	pull, err := factory.NewPullSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create pull socket: %w", err)
	}
	if err := pull.SetRecvDeadline(cfg.PollInterval); err != nil {
		pull.Close()
		return nil, fmt.Errorf("failed to set receive deadline: %w", err)
	}
	if err := pull.Listen(cfg.Peers[cfg.Rank]); err != nil {
		pull.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Peers[cfg.Rank], err)
	}
	sc.pull = pull

	for p, addr := range cfg.Peers {
		if p == cfg.Rank {
			continue
		}
		push, err := factory.NewPushSocket()
		if err != nil {
			sc.closeSockets()
			return nil, fmt.Errorf("failed to create push socket for rank %d: %w", p, err)
		}
		if err := push.SetSendDeadline(cfg.SendTimeout); err != nil {
			push.Close()
			sc.closeSockets()
			return nil, fmt.Errorf("failed to set send deadline: %w", err)
		}
		if err := push.Dial(addr); err != nil {
			push.Close()
			sc.closeSockets()
			return nil, fmt.Errorf("failed to dial rank %d at %s: %w", p, addr, err)
		}
		sc.pushes[p] = push
	}

	sc.wg.Add(1)
	go sc.receiveLoop()

	sc.logger.Debug("communicator ready", logging.Int("peers", size))
	return &group{ex: sc, timeout: cfg.CollectiveTimeout}, nil
}

func (sc *SocketComm) rank() int { return sc.cfg.Rank }
func (sc *SocketComm) size() int { return len(sc.cfg.Peers) }

// round returns the bookkeeping for seq, creating it on first use.
// Callers hold sc.mu.
func (sc *SocketComm) round(seq uint64) *socketRound {
	r, ok := sc.rounds[seq]
	if !ok {
		r = &socketRound{
			frames: make([][]byte, sc.size()),
			ops:    make([]op, sc.size()),
			ready:  make(chan struct{}),
		}
		sc.rounds[seq] = r
	}
	return r
}

func (sc *SocketComm) receiveLoop() {
	defer sc.wg.Done()
	for {
		data, err := sc.pull.Recv()
		if err != nil {
			select {
			case <-sc.done:
				return
			default:
			}
			if errors.Is(err, ErrRecvTimeout) {
				continue
			}
			sc.fail(fmt.Errorf("receive failed: %w", err))
			return
		}

		h, body, err := decodeFrame(data)
		if err != nil {
			sc.logger.Warn("dropping malformed frame", logging.Error(err))
			continue
		}
		payload, err := snappy.Decode(nil, body)
		if err != nil {
			sc.logger.Warn("dropping undecodable frame", logging.Int("source", int(h.source)), logging.Error(err))
			continue
		}
		if int(h.source) >= sc.size() || int(h.source) == sc.rank() {
			sc.logger.Warn("dropping frame from unknown source", logging.Int("source", int(h.source)))
			continue
		}

		sc.mu.Lock()
		r := sc.round(h.seq)
		if r.ops[h.source].kind == 0 {
			r.frames[h.source] = payload
			r.ops[h.source] = h.op
			r.received++
			if r.received == sc.size()-1 {
				close(r.ready)
			}
		}
		sc.mu.Unlock()
	}
}

// fail records a fatal receive error and wakes every waiting round
func (sc *SocketComm) fail(err error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.recvErr == nil {
		sc.recvErr = err
		sc.logger.Error("receive loop stopped", logging.Error(err))
	}
	for _, r := range sc.rounds {
		select {
		case <-r.ready:
		default:
			close(r.ready)
		}
	}
}

func (sc *SocketComm) exchange(ctx context.Context, o op, sends [][]byte) ([][]byte, error) {
	seq := sc.seq
	sc.seq++

	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return nil, ErrClosed
	}
	if sc.recvErr != nil {
		err := sc.recvErr
		sc.mu.Unlock()
		return nil, err
	}
	r := sc.round(seq)
	if sc.size() == 1 {
		close(r.ready)
	}
	sc.mu.Unlock()

	for p, push := range sc.pushes {
		if p == sc.rank() {
			continue
		}
		frame := encodeFrame(frameHeader{seq: seq, source: uint32(sc.rank()), op: o}, snappy.Encode(nil, sends[p]))
		if err := push.Send(frame); err != nil {
			return nil, fmt.Errorf("round %d: send to rank %d: %w", seq, p, err)
		}
	}

	select {
	case <-r.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("round %d %s: %w", seq, o.kind, ctx.Err())
	case <-sc.done:
		return nil, ErrClosed
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.rounds, seq)
	if r.received < sc.size()-1 && sc.recvErr != nil {
		return nil, sc.recvErr
	}

	recv := make([][]byte, sc.size())
	for src := range recv {
		if src == sc.rank() {
			recv[src] = sends[src]
			continue
		}
		if r.ops[src] != o {
			return nil, mismatchError(seq, sc.rank(), o, r.ops[src])
		}
		recv[src] = r.frames[src]
	}
	return recv, nil
}

func (sc *SocketComm) closeSockets() {
	if sc.pull != nil {
		sc.pull.Close()
	}
	for _, push := range sc.pushes {
		if push != nil {
			push.Close()
		}
	}
}

func (sc *SocketComm) close() error {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return nil
	}
	sc.closed = true
	close(sc.done)
	sc.mu.Unlock()

	sc.closeSockets()
	sc.wg.Wait()
	return nil
}
