package subscriber

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
)

var (
	// ErrRecvTimeout is returned by Socket.Recv when no message arrived in time.
	ErrRecvTimeout = errors.New("subscriber: receive timeout")

	// ErrTerminated is returned once the transport has been told to shut down.
	ErrTerminated = errors.New("subscriber: transport terminated")
)

// Socket is a subscription endpoint. A Socket is created, used and closed by a
// single worker goroutine and is never handed to any other goroutine.
type Socket interface {
	// Recv waits up to timeout for the next message. It returns ErrRecvTimeout
	// when the wait elapses and ErrTerminated once ctx is done.
	Recv(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

// Dialer opens a Socket subscribed to every topic published at target.
type Dialer interface {
	Dial(ctx context.Context, target string) (Socket, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, target string) (Socket, error)

func (f DialerFunc) Dial(ctx context.Context, target string) (Socket, error) {
	return f(ctx, target)
}

// Target builds the subscription address for server and port.
func Target(server string, port int) string {
	return "tcp://" + net.JoinHostPort(server, strconv.Itoa(port))
}

// ZMQDialer dials ZeroMQ PUB endpoints with a SUB socket.
type ZMQDialer struct{}

// NewZMQDialer returns the ZeroMQ transport.
func NewZMQDialer() ZMQDialer {
	return ZMQDialer{}
}

// Dial connects a SUB socket to target with an empty topic filter. A single
// dial attempt is made; callers own the retry policy.
func (ZMQDialer) Dial(ctx context.Context, target string) (Socket, error) {
	sctx, cancel := context.WithCancel(ctx)
	sock := zmq4.NewSub(sctx, zmq4.WithDialerMaxRetries(0))

	if err := sock.Dial(target); err != nil {
		_ = sock.Close()
		cancel()
		return nil, fmt.Errorf("subscriber: dial %s: %w", target, err)
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		_ = sock.Close()
		cancel()
		return nil, fmt.Errorf("subscriber: subscribe %s: %w", target, err)
	}

	s := &zmqSocket{
		sock:   sock,
		cancel: cancel,
		msgs:   make(chan []byte),
		done:   make(chan struct{}),
	}
	go s.pump(sctx)
	return s, nil
}

// closeWait bounds how long Close waits for the receive pump to exit.
const closeWait = time.Second

// zmqSocket bounds the blocking zmq4 Recv with a timeout. The pump goroutine
// belongs to the socket and exits when the socket is closed.
type zmqSocket struct {
	sock   zmq4.Socket
	cancel context.CancelFunc
	msgs   chan []byte
	done   chan struct{}
	err    error

	closeOnce sync.Once
}

func (s *zmqSocket) pump(ctx context.Context) {
	defer close(s.done)
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			s.err = err
			return
		}
		var payload []byte
		for _, frame := range msg.Frames {
			payload = append(payload, frame...)
		}
		select {
		case s.msgs <- payload:
		case <-ctx.Done():
			s.err = ctx.Err()
			return
		}
	}
}

func (s *zmqSocket) Recv(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ErrTerminated
	case payload := <-s.msgs:
		return payload, nil
	case <-s.done:
		if ctx.Err() != nil {
			return nil, ErrTerminated
		}
		return nil, fmt.Errorf("subscriber: recv: %w", s.err)
	case <-timer.C:
		return nil, ErrRecvTimeout
	}
}

func (s *zmqSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.sock.Close()
		select {
		case <-s.done:
		case <-time.After(closeWait):
		}
	})
	return err
}
