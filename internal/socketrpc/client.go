package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

// Client reads a daemon's stats over a Unix domain socket using JSON-RPC 2.0.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(method string, params interface{}, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	paramsData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("socketrpc: marshal params: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	c.conn.SetDeadline(time.Now().Add(10 * time.Second))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("socketrpc: response id %d, want %d", resp.ID, id)
	}

	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) FeedStatus() (model.FeedStatus, error) {
	var result model.FeedStatus
	err := c.call("FeedStatus", nil, &result)
	return result, err
}

func (c *Client) GeneralStats() (model.WindowView, error) {
	var result model.WindowView
	err := c.call("GeneralStats", nil, &result)
	return result, err
}

func (c *Client) EntityIDs() ([]int, error) {
	var result []int
	err := c.call("EntityIDs", nil, &result)
	return result, err
}

func (c *Client) EntityStats(id int) (model.WindowView, error) {
	var result model.WindowView
	err := c.call("EntityStats", map[string]interface{}{"ID": id}, &result)
	return result, err
}

func (c *Client) RawSnapshot(name string) (json.RawMessage, error) {
	var result json.RawMessage
	err := c.call("RawSnapshot", map[string]interface{}{"Name": name}, &result)
	return result, err
}

func (c *Client) RawSnapshotNames() ([]string, error) {
	var result []string
	err := c.call("RawSnapshotNames", nil, &result)
	return result, err
}

func (c *Client) RecentEvents(limit int) ([]model.Event, error) {
	var result []model.Event
	err := c.call("RecentEvents", map[string]interface{}{"Limit": limit}, &result)
	return result, err
}

func (c *Client) ResetBaselines() error {
	return c.call("ResetBaselines", nil, nil)
}
