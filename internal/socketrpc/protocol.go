package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes model.StatsAPI over a Unix domain socket.
// Each method maps 1:1 to the interface.
//
//   Method              Params             Result
//   ────────────────    ───────────────    ─────────────────────────────
//   FeedStatus          (none)             FeedStatus
//   GeneralStats        (none)             WindowView
//   EntityIDs           (none)             []int
//   EntityStats         {ID: int}          WindowView (error if unknown)
//   RawSnapshot         {Name: string}     raw JSON object (error if unknown)
//   RawSnapshotNames    (none)             []string
//   RecentEvents        {Limit: int}       []Event, newest first
//   ResetBaselines      (none)             true
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error (unknown entity or snapshot)

const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/feedwatch/feedwatch.sock, falling back to
// ~/.local/state/feedwatch/feedwatch.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "feedwatch", "feedwatch.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/feedwatch.sock"
	}
	return filepath.Join(home, ".local", "state", "feedwatch", "feedwatch.sock")
}
