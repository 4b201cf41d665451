package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/feedwatch/internal/model"
	"github.com/tinytelemetry/feedwatch/internal/stats"
)

// ErrConnectTimeout is wrapped by Connect when no data arrived in time.
var ErrConnectTimeout = errors.New("subscriber: connect timeout")

// DefaultRedialBackoff is the pause between failed dial attempts.
const DefaultRedialBackoff = 500 * time.Millisecond

// Config holds the collaborators and tunables of a Subscriber.
type Config struct {
	Dialer   Dialer
	Handler  model.FeedHandler
	Registry *stats.Registry
	Archive  *Archive
	Logger   *zap.Logger

	ConnectTimeout time.Duration
	RecvTimeout    time.Duration
	RedialBackoff  time.Duration
	StatsMessage   string
	EventMessage   string
}

// Subscriber maintains one subscription to a snapshot feed. Connect starts a
// single worker goroutine that owns the socket for its whole life; Disconnect
// stops it and waits for it to exit.
//
// Handler callbacks run on the worker goroutine and fire only on liveness
// transitions.
type Subscriber struct {
	dialer         Dialer
	handler        model.FeedHandler
	registry       *stats.Registry
	archive        *Archive
	dispatcher     *Dispatcher
	log            *zap.Logger
	connectTimeout time.Duration
	recvTimeout    time.Duration
	redialBackoff  time.Duration

	// mu serializes Connect and Disconnect.
	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}

	target      atomic.Value // string
	active      atomic.Bool
	alive       atomic.Bool
	state       atomic.Int32
	messages    atomic.Uint64
	malformed   atomic.Uint64
	lastMessage atomic.Int64 // unix nanos
}

// New creates a disconnected subscriber. A nil Dialer uses ZeroMQ, a nil
// Registry or Archive gets a fresh one, and a nil Handler ignores callbacks.
func New(cfg Config) *Subscriber {
	if cfg.Dialer == nil {
		cfg.Dialer = NewZMQDialer()
	}
	if cfg.Handler == nil {
		cfg.Handler = NopHandler{}
	}
	if cfg.Registry == nil {
		cfg.Registry = stats.NewRegistry()
	}
	if cfg.Archive == nil {
		cfg.Archive = NewArchive()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = model.DefaultConnectTimeout
	}
	if cfg.RecvTimeout <= 0 {
		cfg.RecvTimeout = model.DefaultRecvTimeout
	}
	if cfg.RedialBackoff <= 0 {
		cfg.RedialBackoff = DefaultRedialBackoff
	}

	log := cfg.Logger.Named("subscriber")
	s := &Subscriber{
		dialer:         cfg.Dialer,
		handler:        cfg.Handler,
		registry:       cfg.Registry,
		archive:        cfg.Archive,
		dispatcher:     NewDispatcher(cfg.Registry, cfg.Handler, cfg.StatsMessage, cfg.EventMessage, log),
		log:            log,
		connectTimeout: cfg.ConnectTimeout,
		recvTimeout:    cfg.RecvTimeout,
		redialBackoff:  cfg.RedialBackoff,
	}
	s.target.Store("")
	return s
}

// Connect subscribes to server:port and blocks until the first message arrives
// or the connect timeout elapses. On timeout the connection is torn down and
// the returned error names the target. An existing connection is closed first.
func (s *Subscriber) Connect(ctx context.Context, server string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		s.disconnectLocked()
	}

	target := Target(server, port)
	s.target.Store(target)
	s.setState(model.StateConnecting)
	s.log.Info("connecting to publisher", zap.String("target", target))

	wctx, cancel := context.WithCancel(context.Background())
	firstMsg := make(chan struct{})
	s.cancel = cancel
	s.done = make(chan struct{})
	s.alive.Store(false)
	s.active.Store(true)
	s.connected = true

	go s.run(wctx, target, firstMsg, s.done)

	timer := time.NewTimer(s.connectTimeout)
	defer timer.Stop()

	select {
	case <-firstMsg:
		return nil
	case <-ctx.Done():
		s.disconnectLocked()
		return fmt.Errorf("subscriber: connect to %s: %w", target, ctx.Err())
	case <-timer.C:
	}

	s.disconnectLocked()
	return fmt.Errorf("subscriber: no data flow from server at %s: %w", target, ErrConnectTimeout)
}

// Disconnect stops the worker and waits for it to exit. It is a no-op when not
// connected. The subscriber can be connected again afterwards.
func (s *Subscriber) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
}

func (s *Subscriber) disconnectLocked() {
	if !s.connected {
		return
	}

	// Cancelling terminates the transport and unblocks a pending receive.
	s.cancel()
	s.active.Store(false)
	<-s.done

	s.connected = false
	s.alive.Store(false)
	s.setState(model.StateDisconnected)
}

// run is the worker. The socket is opened, used and closed here only.
func (s *Subscriber) run(ctx context.Context, target string, firstMsg chan struct{}, done chan struct{}) {
	defer close(done)

	log := s.log.With(zap.String("target", target))
	s.alive.Store(false)

	sock, err := s.open(ctx, target, log)
	if err != nil {
		return
	}
	defer func() {
		if cerr := sock.Close(); cerr != nil {
			log.Debug("closing socket", zap.Error(cerr))
		}
	}()
	s.setState(model.StateWaitingForData)

	var signalFirst sync.Once
	for s.active.Load() {
		payload, err := sock.Recv(ctx, s.recvTimeout)
		switch {
		case err == nil:
		case errors.Is(err, ErrRecvTimeout):
			s.markDead(log)
			continue
		case errors.Is(err, ErrTerminated):
			s.alive.Store(false)
			return
		default:
			log.Warn("receive failed, reopening socket", zap.Error(err))
			s.markDead(log)
			_ = sock.Close()
			sock = closedSocket{}
			if !s.sleep(ctx) {
				return
			}
			s.setState(model.StateConnecting)
			next, err := s.open(ctx, target, log)
			if err != nil {
				return
			}
			sock = next
			s.setState(model.StateWaitingForData)
			continue
		}

		s.markAlive(log)
		signalFirst.Do(func() { close(firstMsg) })
		s.handle(payload, log)
	}
}

// open dials until it succeeds or ctx is done.
func (s *Subscriber) open(ctx context.Context, target string, log *zap.Logger) (Socket, error) {
	for {
		sock, err := s.dialer.Dial(ctx, target)
		if err == nil {
			return sock, nil
		}
		if ctx.Err() != nil {
			return nil, ErrTerminated
		}
		log.Warn("dial failed", zap.Error(err))
		if !s.sleep(ctx) {
			return nil, ErrTerminated
		}
	}
}

func (s *Subscriber) sleep(ctx context.Context) bool {
	t := time.NewTimer(s.redialBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Subscriber) markAlive(log *zap.Logger) {
	if !s.alive.CompareAndSwap(false, true) {
		return
	}
	s.setState(model.StateAlive)
	log.Info("feed is alive")
	s.handler.OnFeedAlive()
}

func (s *Subscriber) markDead(log *zap.Logger) {
	if !s.alive.CompareAndSwap(true, false) {
		return
	}
	s.setState(model.StateDead)
	log.Warn("feed went dead", zap.Duration("recv_timeout", s.recvTimeout))
	s.handler.OnFeedDead()
}

func (s *Subscriber) handle(payload []byte, log *zap.Logger) {
	s.messages.Add(1)
	s.lastMessage.Store(time.Now().UnixNano())

	msg, err := DecodeMessage(payload)
	if err != nil {
		s.malformed.Add(1)
		log.Warn("skipping malformed message", zap.Int("bytes", len(payload)), zap.Error(err))
		return
	}

	s.archive.Put(msg.Name, msg.Data)
	s.dispatcher.Dispatch(msg)
}

func (s *Subscriber) setState(st model.ConnState) {
	s.state.Store(int32(st))
}

// State returns the current connection state.
func (s *Subscriber) State() model.ConnState {
	return model.ConnState(s.state.Load())
}

// Alive reports whether the feed produced a message within the last receive
// timeout.
func (s *Subscriber) Alive() bool {
	return s.alive.Load()
}

// Status summarizes the connection for read surfaces.
func (s *Subscriber) Status() model.FeedStatus {
	st := model.FeedStatus{
		Target:    s.target.Load().(string),
		State:     s.State(),
		Alive:     s.Alive(),
		Messages:  s.messages.Load(),
		Malformed: s.malformed.Load(),
	}
	if ns := s.lastMessage.Load(); ns != 0 {
		st.LastMessage = time.Unix(0, ns)
	}
	return st
}

// Stats returns the registry fed by this subscriber.
func (s *Subscriber) Stats() *stats.Registry {
	return s.registry
}

// GeneralStats returns the general stats window.
func (s *Subscriber) GeneralStats() *stats.Window {
	return s.registry.General()
}

// EntityStats returns the window for entity id, or false if never seen.
func (s *Subscriber) EntityStats(id int) (*stats.Window, bool) {
	return s.registry.Entity(id)
}

// RawSnapshot returns the last payload received under name.
func (s *Subscriber) RawSnapshot(name string) (json.RawMessage, bool) {
	return s.archive.Get(name)
}

// RawSnapshotNames lists the names with an archived payload.
func (s *Subscriber) RawSnapshotNames() []string {
	return s.archive.Names()
}

type closedSocket struct{}

func (closedSocket) Recv(context.Context, time.Duration) ([]byte, error) { return nil, ErrTerminated }
func (closedSocket) Close() error                                        { return nil }
