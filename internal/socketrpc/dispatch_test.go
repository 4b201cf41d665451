package socketrpc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

// stubStats returns fixed values for dispatch unit testing.
type stubStats struct {
	resets int
}

func (q *stubStats) FeedStatus() model.FeedStatus {
	return model.FeedStatus{Target: "tcp://localhost:4500", State: model.StateAlive, Alive: true, Messages: 3}
}
func (q *stubStats) GeneralStats() model.WindowView {
	return model.WindowView{Current: model.Snapshot{"cpu": 12}, Online: true}
}
func (q *stubStats) EntityIDs() []int { return []int{0, 3} }
func (q *stubStats) EntityStats(id int) (model.WindowView, bool) {
	if id != 0 && id != 3 {
		return model.WindowView{}, false
	}
	return model.WindowView{Current: model.Snapshot{"rx": float64(id)}}, true
}
func (q *stubStats) RawSnapshot(name string) (json.RawMessage, bool) {
	if name != "stats" {
		return nil, false
	}
	return json.RawMessage(`{"cpu":12}`), true
}
func (q *stubStats) RawSnapshotNames() []string { return []string{"stats"} }
func (q *stubStats) RecentEvents(limit int) []model.Event {
	return []model.Event{{Received: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Type: "port-up"}}
}
func (q *stubStats) ResetBaselines() { q.resets++ }

func newTestDispatcher() *Server {
	return NewServer("", &stubStats{}, nil)
}

func TestDispatch_AllMethods(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	tests := []struct {
		method string
		params string
	}{
		{"FeedStatus", `null`},
		{"GeneralStats", `null`},
		{"EntityIDs", `null`},
		{"EntityStats", `{"ID":3}`},
		{"RawSnapshot", `{"Name":"stats"}`},
		{"RawSnapshotNames", `null`},
		{"RecentEvents", `{"Limit":10}`},
		{"ResetBaselines", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			t.Parallel()
			req := Request{
				JSONRPC: "2.0",
				ID:      1,
				Method:  tt.method,
				Params:  json.RawMessage(tt.params),
			}
			resp := srv.dispatch(req)
			if resp.Error != nil {
				t.Fatalf("dispatch(%s) error: %s", tt.method, resp.Error.Message)
			}
			if resp.Result == nil {
				t.Fatalf("dispatch(%s) returned nil result", tt.method)
			}
			if resp.JSONRPC != "2.0" {
				t.Errorf("JSONRPC = %q, want 2.0", resp.JSONRPC)
			}
			if resp.ID != 1 {
				t.Errorf("ID = %d, want 1", resp.ID)
			}
		})
	}
}

func TestDispatch_MethodNotFound(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	resp := srv.dispatch(Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "TopWords",
		Params:  json.RawMessage(`{}`),
	})
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestDispatch_InvalidParams(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	for _, method := range []string{"EntityStats", "RawSnapshot", "RecentEvents"} {
		resp := srv.dispatch(Request{
			JSONRPC: "2.0",
			ID:      2,
			Method:  method,
			Params:  json.RawMessage(`not json`),
		})
		if resp.Error == nil {
			t.Fatalf("%s: expected error for malformed params", method)
		}
		if resp.Error.Code != CodeInvalidParams {
			t.Errorf("%s: error code = %d, want %d", method, resp.Error.Code, CodeInvalidParams)
		}
	}
}

func TestDispatch_NotFound(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	tests := []struct {
		method string
		params string
	}{
		{"EntityStats", `{"ID":7}`},
		{"RawSnapshot", `{"Name":"latency"}`},
	}
	for _, tt := range tests {
		resp := srv.dispatch(Request{JSONRPC: "2.0", ID: 1, Method: tt.method, Params: json.RawMessage(tt.params)})
		if resp.Error == nil || resp.Error.Code != CodeNotFound {
			t.Errorf("%s: got %+v, want not found", tt.method, resp.Error)
		}
	}
}

func TestDispatch_EmptyParamsOnRecentEvents(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	resp := srv.dispatch(Request{JSONRPC: "2.0", ID: 1, Method: "RecentEvents", Params: nil})
	if resp.Error != nil {
		t.Fatalf("dispatch with nil params: %s", resp.Error.Message)
	}
}

func TestDispatch_ResetBaselinesReachesStore(t *testing.T) {
	t.Parallel()
	store := &stubStats{}
	srv := NewServer("", store, nil)

	srv.dispatch(Request{JSONRPC: "2.0", ID: 1, Method: "ResetBaselines"})
	srv.dispatch(Request{JSONRPC: "2.0", ID: 2, Method: "ResetBaselines"})
	if store.resets != 2 {
		t.Fatalf("resets = %d, want 2", store.resets)
	}
}

func TestDispatch_PreservesRequestID(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	for _, id := range []int{0, 1, 42, 9999} {
		resp := srv.dispatch(Request{
			JSONRPC: "2.0",
			ID:      id,
			Method:  "EntityIDs",
		})
		if resp.ID != id {
			t.Errorf("request ID %d: response ID = %d", id, resp.ID)
		}
	}
}
