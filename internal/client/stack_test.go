package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/tinytelemetry/feedwatch/internal/client"
	"github.com/tinytelemetry/feedwatch/internal/httpserver"
	"github.com/tinytelemetry/feedwatch/internal/promexport"
	"github.com/tinytelemetry/feedwatch/internal/socketrpc"
	"github.com/tinytelemetry/feedwatch/internal/stats"
	"github.com/tinytelemetry/feedwatch/internal/subscriber"
)

// e2eStack wires a real publisher to the client and both read surfaces.
type e2eStack struct {
	pub     zmq4.Socket
	feed    *client.Client
	api     *httpserver.Server
	socket  *socketrpc.Server
	sock    string
	publish chan string
}

func startE2EStack(t *testing.T) *e2eStack {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pub := zmq4.NewPub(ctx)
	if err := pub.Listen("tcp://127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { pub.Close() })

	s := &e2eStack{pub: pub, publish: make(chan string, 16)}

	// Republish the latest payload so late subscribers still see it.
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		var last []string
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-s.publish:
				last = append(last, p)
			case <-ticker.C:
				for _, p := range last {
					_ = pub.Send(zmq4.NewMsgString(p))
				}
			}
		}
	}()

	s.feed = client.New(client.Config{
		Subscriber: subscriber.Config{
			Registry:       stats.NewRegistry(stats.RegistryConfig{EntityCount: 4}),
			ConnectTimeout: 5 * time.Second,
			RecvTimeout:    time.Second,
		},
	})
	t.Cleanup(s.feed.Disconnect)

	s.api = httpserver.NewServer("127.0.0.1:0", s.feed, promexport.Handler(promexport.NewRegistry(s.feed)))
	if err := s.api.Start(); err != nil {
		t.Fatalf("api start: %v", err)
	}
	t.Cleanup(func() { s.api.Stop() })

	s.sock = filepath.Join(t.TempDir(), "feedwatch.sock")
	s.socket = socketrpc.NewServer(s.sock, s.feed, nil)
	if err := s.socket.Start(); err != nil {
		t.Fatalf("socket start: %v", err)
	}
	t.Cleanup(s.socket.Stop)

	s.publish <- `{"name":"stats","type":null,"data":{"cpu":25,"rx_bps":1200,"rx_bps-0":700,"rx_bps-1":500,"rx_bps-9":1}}`

	port := pub.Addr().(*net.TCPAddr).Port
	if err := s.feed.Connect(ctx, "127.0.0.1", port); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s
}

func httpGet(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s = %d: %s", url, resp.StatusCode, body)
	}
	return string(body)
}

func TestE2E_PublisherToReadSurfaces(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end stack in short mode")
	}
	s := startE2EStack(t)

	rpc, err := socketrpc.Dial(s.sock)
	if err != nil {
		t.Fatalf("dial rpc: %v", err)
	}
	defer rpc.Close()

	st, err := rpc.FeedStatus()
	if err != nil {
		t.Fatal(err)
	}
	if !st.Alive || st.Messages == 0 {
		t.Fatalf("status = %+v", st)
	}

	general, err := rpc.GeneralStats()
	if err != nil {
		t.Fatal(err)
	}
	if general.Current["cpu"] != 25 || general.Current["rx_bps-9"] != 1 {
		t.Fatalf("general = %v", general.Current)
	}

	ids, err := rpc.EntityIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("entity ids = %v", ids)
	}

	var entity map[string]interface{}
	body := httpGet(t, "http://"+s.api.Addr()+"/api/stats/entities/0?formatted=true")
	if err := json.Unmarshal([]byte(body), &entity); err != nil {
		t.Fatal(err)
	}
	rx := entity["formatted"].(map[string]interface{})["rx_bps"].(map[string]interface{})
	if rx["value"] != "700.00 " {
		t.Fatalf("formatted rx_bps = %v", rx["value"])
	}

	metrics := httpGet(t, "http://"+s.api.Addr()+"/metrics")
	for _, want := range []string{
		`feedwatch_entity_value{entity="1",field="rx_bps"} 500`,
		`feedwatch_general_value{field="cpu"} 25`,
	} {
		if !strings.Contains(metrics, want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	s.publish <- `{"name":"event","type":"link-down","data":{"port":1}}`
	deadline := time.Now().Add(3 * time.Second)
	for {
		events, err := rpc.RecentEvents(1)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) == 1 && events[0].Type == "link-down" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event never reached the rpc surface")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := rpc.ResetBaselines(); err != nil {
		t.Fatal(err)
	}
	general, err = rpc.GeneralStats()
	if err != nil {
		t.Fatal(err)
	}
	if general.Relative["cpu"] != 0 {
		t.Fatalf("relative cpu after reset = %v", general.Relative["cpu"])
	}
}
