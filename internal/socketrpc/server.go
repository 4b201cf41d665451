package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

const (
	// scannerInitBufSize is the initial buffer size for the per-connection scanner (64 KB).
	scannerInitBufSize = 64 * 1024
	// scannerMaxTokenSize is the maximum token size the scanner will accept (4 MB).
	scannerMaxTokenSize = 4 * 1024 * 1024
)

// Server exposes a model.StatsAPI over a Unix domain socket using JSON-RPC 2.0.
type Server struct {
	socketPath string
	store      model.StatsAPI
	log        *zap.Logger
	listener   net.Listener
	wg         sync.WaitGroup
	quit       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a new socket RPC server. A nil logger discards output.
func NewServer(socketPath string, store model.StatsAPI, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		socketPath: socketPath,
		store:      store,
		log:        log.Named("socketrpc"),
		quit:       make(chan struct{}),
	}
}

// Start begins listening on the Unix socket and accepting connections.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	// Remove stale socket if it exists.
	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if dialErr != nil {
			// Socket file exists but nobody is listening.
			os.Remove(s.socketPath)
		} else {
			conn.Close()
			return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("listening", zap.String("socket", s.socketPath))
	return nil
}

// Stop closes the listener, waits for connections to drain, and removes the
// socket file. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.Warn("accept error", zap.Error(err))
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner on shutdown.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-s.quit:
			conn.Close()
		case <-stop:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp := Response{JSONRPC: "2.0", ID: 0, Error: &RPCError{Code: CodeParseError, Message: "parse error"}}
			encoder.Encode(resp)
			continue
		}

		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	marshalResult := func(v interface{}) Response {
		data, err := json.Marshal(v)
		if err != nil {
			resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}

	invalidParams := func(err error) Response {
		resp.Error = &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		return resp
	}

	notFound := func(format string, args ...interface{}) Response {
		resp.Error = &RPCError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
		return resp
	}

	switch req.Method {
	case "FeedStatus":
		return marshalResult(s.store.FeedStatus())

	case "GeneralStats":
		return marshalResult(s.store.GeneralStats())

	case "EntityIDs":
		return marshalResult(s.store.EntityIDs())

	case "EntityStats":
		var p struct{ ID int }
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		view, ok := s.store.EntityStats(p.ID)
		if !ok {
			return notFound("entity %d not found", p.ID)
		}
		return marshalResult(view)

	case "RawSnapshot":
		var p struct{ Name string }
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		raw, ok := s.store.RawSnapshot(p.Name)
		if !ok {
			return notFound("snapshot %q not found", p.Name)
		}
		resp.Result = raw
		return resp

	case "RawSnapshotNames":
		return marshalResult(s.store.RawSnapshotNames())

	case "RecentEvents":
		var p struct{ Limit int }
		// Allow empty/null params for defaults; only reject genuinely malformed JSON.
		if err := json.Unmarshal(req.Params, &p); err != nil && len(req.Params) > 0 {
			return invalidParams(err)
		}
		return marshalResult(s.store.RecentEvents(p.Limit))

	case "ResetBaselines":
		s.store.ResetBaselines()
		return marshalResult(true)

	default:
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}
