package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

type step struct {
	payload []byte
	err     error
}

// fakeSocket replays queued steps, then blocks until the worker is cancelled.
type fakeSocket struct {
	steps  chan step
	closed atomic.Bool
}

func newFakeSocket(steps ...step) *fakeSocket {
	s := &fakeSocket{steps: make(chan step, len(steps)+8)}
	for _, st := range steps {
		s.steps <- st
	}
	return s
}

func (s *fakeSocket) Recv(ctx context.Context, _ time.Duration) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ErrTerminated
	case st := <-s.steps:
		return st.payload, st.err
	}
}

func (s *fakeSocket) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeDialer hands out sockets in order; once exhausted it keeps returning the last one.
type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	fail    int
	dials   int
	targets []string
}

func (d *fakeDialer) Dial(_ context.Context, target string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.targets = append(d.targets, target)
	if d.fail > 0 {
		d.fail--
		return nil, errors.New("connection refused")
	}
	s := d.sockets[0]
	if len(d.sockets) > 1 {
		d.sockets = d.sockets[1:]
	}
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type recordingHandler struct {
	alive atomic.Int32
	dead  atomic.Int32

	mu      sync.Mutex
	updates []model.Snapshot
	events  []string
}

func (h *recordingHandler) OnFeedAlive() { h.alive.Add(1) }
func (h *recordingHandler) OnFeedDead()  { h.dead.Add(1) }
func (h *recordingHandler) OnStatsUpdate(data model.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, data)
}
func (h *recordingHandler) OnEvent(eventType string, _ json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
}

func (h *recordingHandler) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func msg(s string) step { return step{payload: []byte(s)} }

func timeout() step { return step{err: ErrRecvTimeout} }

const statsMsg = `{"name":"stats","type":null,"data":{"rx_pps":100,"rx_pps-0":5,"label":"x"}}`

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestSubscriber(d Dialer, h model.FeedHandler, log *zap.Logger) *Subscriber {
	return New(Config{
		Dialer:         d,
		Handler:        h,
		Logger:         log,
		ConnectTimeout: 500 * time.Millisecond,
		RecvTimeout:    50 * time.Millisecond,
		RedialBackoff:  time.Millisecond,
	})
}

func TestConnect_FirstMessageUnblocks(t *testing.T) {
	sock := newFakeSocket(msg(statsMsg))
	d := &fakeDialer{sockets: []*fakeSocket{sock}}
	h := &recordingHandler{}
	s := newTestSubscriber(d, h, nil)
	defer s.Disconnect()

	if err := s.Connect(context.Background(), "localhost", 4500); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if d.targets[0] != "tcp://localhost:4500" {
		t.Fatalf("target = %q", d.targets[0])
	}

	waitFor(t, "stats update", func() bool {
		_, ok := s.GeneralStats().Get("rx_pps")
		return ok
	})
	if v, _ := s.GeneralStats().Get("rx_pps"); v != 100 {
		t.Fatalf("general rx_pps = %v, want 100", v)
	}
	w, ok := s.EntityStats(0)
	if !ok {
		t.Fatal("entity 0 window missing")
	}
	if v, _ := w.Get("rx_pps"); v != 5 {
		t.Fatalf("entity rx_pps = %v, want 5", v)
	}
	if _, ok := s.GeneralStats().Get("label"); ok {
		t.Fatal("non-numeric member should be skipped")
	}
	if s.State() != model.StateAlive || !s.Alive() {
		t.Fatalf("state = %v alive = %v", s.State(), s.Alive())
	}
	if raw, ok := s.RawSnapshot("stats"); !ok || !strings.Contains(string(raw), "rx_pps") {
		t.Fatalf("raw snapshot = %s %v", raw, ok)
	}
}

func TestLivenessEdgesFireOncePerTransition(t *testing.T) {
	sock := newFakeSocket(msg(statsMsg), timeout(), timeout(), timeout(), msg(statsMsg))
	d := &fakeDialer{sockets: []*fakeSocket{sock}}
	h := &recordingHandler{}
	s := newTestSubscriber(d, h, nil)
	defer s.Disconnect()

	if err := s.Connect(context.Background(), "localhost", 4500); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "second message", func() bool { return s.Status().Messages == 2 })

	if got := h.alive.Load(); got != 2 {
		t.Fatalf("alive callbacks = %d, want 2", got)
	}
	if got := h.dead.Load(); got != 1 {
		t.Fatalf("dead callbacks = %d, want 1", got)
	}
}

func TestConnect_TimeoutTearsDown(t *testing.T) {
	sock := newFakeSocket()
	d := &fakeDialer{sockets: []*fakeSocket{sock}}
	h := &recordingHandler{}
	s := New(Config{Dialer: d, Handler: h, ConnectTimeout: 50 * time.Millisecond})

	err := s.Connect(context.Background(), "localhost", 4501)
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("err = %v, want ErrConnectTimeout", err)
	}
	if !strings.Contains(err.Error(), "no data flow from server at tcp://localhost:4501") {
		t.Fatalf("error does not name target: %v", err)
	}
	if !sock.closed.Load() {
		t.Fatal("socket not closed after failed connect")
	}
	if s.State() != model.StateDisconnected {
		t.Fatalf("state = %v, want disconnected", s.State())
	}
	if h.alive.Load() != 0 || h.dead.Load() != 0 {
		t.Fatal("no liveness callbacks expected")
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	d := &fakeDialer{sockets: []*fakeSocket{newFakeSocket()}}
	s := New(Config{Dialer: d, ConnectTimeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Connect(ctx, "localhost", 4500)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if s.State() != model.StateDisconnected {
		t.Fatalf("state = %v", s.State())
	}
}

func TestDialRetriesUntilSuccess(t *testing.T) {
	d := &fakeDialer{fail: 3, sockets: []*fakeSocket{newFakeSocket(msg(statsMsg))}}
	s := newTestSubscriber(d, nil, nil)
	defer s.Disconnect()

	if err := s.Connect(context.Background(), "localhost", 4500); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := d.dialCount(); got != 4 {
		t.Fatalf("dials = %d, want 4", got)
	}
}

func TestTransportErrorReopensSocket(t *testing.T) {
	first := newFakeSocket(msg(statsMsg), step{err: io.EOF})
	second := newFakeSocket(msg(statsMsg))
	d := &fakeDialer{sockets: []*fakeSocket{first, second}}
	h := &recordingHandler{}
	s := newTestSubscriber(d, h, nil)
	defer s.Disconnect()

	if err := s.Connect(context.Background(), "localhost", 4500); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "alive again", func() bool { return h.alive.Load() == 2 })

	if !first.closed.Load() {
		t.Fatal("failed socket not closed")
	}
	if h.dead.Load() != 1 {
		t.Fatalf("dead callbacks = %d, want 1", h.dead.Load())
	}
	if d.dialCount() != 2 {
		t.Fatalf("dials = %d, want 2", d.dialCount())
	}
}

func TestMalformedPayloadIsSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sock := newFakeSocket(msg("not json"), msg(`{"name":"stats","data":{}}`), msg(statsMsg))
	d := &fakeDialer{sockets: []*fakeSocket{sock}}
	s := newTestSubscriber(d, nil, zap.New(core))
	defer s.Disconnect()

	if err := s.Connect(context.Background(), "localhost", 4500); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "valid message", func() bool { return s.Status().Messages == 3 })

	st := s.Status()
	if st.Malformed != 2 {
		t.Fatalf("malformed = %d, want 2", st.Malformed)
	}
	if st.LastMessage.IsZero() {
		t.Fatal("last message time not recorded")
	}
	if n := logs.FilterMessage("skipping malformed message").Len(); n != 2 {
		t.Fatalf("malformed warnings = %d, want 2", n)
	}
	waitFor(t, "stats applied", func() bool {
		_, ok := s.GeneralStats().Get("rx_pps")
		return ok
	})
}

func TestEventsReachHandler(t *testing.T) {
	sock := newFakeSocket(
		msg(`{"name":"event","type":"port-state","data":{"port":0}}`),
		msg(`{"name":"other","type":1,"data":{}}`),
		msg(`{"name":"event","type":7,"data":{}}`),
	)
	d := &fakeDialer{sockets: []*fakeSocket{sock}}
	h := &recordingHandler{}
	s := newTestSubscriber(d, h, nil)
	defer s.Disconnect()

	if err := s.Connect(context.Background(), "localhost", 4500); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "events", func() bool { return len(h.eventTypes()) == 2 })

	got := h.eventTypes()
	if got[0] != "port-state" || got[1] != "7" {
		t.Fatalf("events = %v", got)
	}
	if names := s.RawSnapshotNames(); len(names) != 2 || names[0] != "event" || names[1] != "other" {
		t.Fatalf("archived names = %v", names)
	}
}

func TestReconnectClosesPreviousSocket(t *testing.T) {
	first := newFakeSocket(msg(statsMsg))
	second := newFakeSocket(msg(statsMsg))
	d := &fakeDialer{sockets: []*fakeSocket{first, second}}
	s := newTestSubscriber(d, nil, nil)

	if err := s.Connect(context.Background(), "localhost", 4500); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := s.Connect(context.Background(), "otherhost", 4600); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if !first.closed.Load() {
		t.Fatal("first socket still open")
	}
	if got := s.Status().Target; got != "tcp://otherhost:4600" {
		t.Fatalf("target = %q", got)
	}

	s.Disconnect()
	s.Disconnect()
	if !second.closed.Load() {
		t.Fatal("second socket still open")
	}
	if s.State() != model.StateDisconnected || s.Alive() {
		t.Fatalf("state = %v alive = %v", s.State(), s.Alive())
	}
}

func TestDisconnectWithoutConnect(t *testing.T) {
	s := New(Config{Dialer: &fakeDialer{}})
	s.Disconnect()
	if s.State() != model.StateDisconnected {
		t.Fatalf("state = %v", s.State())
	}
}

func TestTarget(t *testing.T) {
	tests := []struct {
		server string
		port   int
		want   string
	}{
		{"localhost", 4500, "tcp://localhost:4500"},
		{"10.0.0.1", 4501, "tcp://10.0.0.1:4501"},
		{"::1", 4500, "tcp://[::1]:4500"},
	}
	for _, tt := range tests {
		if got := Target(tt.server, tt.port); got != tt.want {
			t.Errorf("Target(%q, %d) = %q, want %q", tt.server, tt.port, got, tt.want)
		}
	}
}
