package socketrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/lotus-live/internal/lifecycle"
	"github.com/tinytelemetry/lotus-live/internal/logtemplate"
	"github.com/tinytelemetry/lotus-live/internal/model"
	"github.com/tinytelemetry/lotus-live/internal/policy"
)

// Client calls a socket RPC server. It is what the editor plugin speaks,
// and what the lotus-live CLI subcommands use.
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
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
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
func (c *Client) call(method string, params any, dest any) error {
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

	c.conn.SetDeadline(time.Now().Add(30 * time.Second))
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

// ValidationError is returned by CreateInstrument and SaveInstrument when the
// draft is rejected. Status is the instrument as left in editing.
type ValidationError struct {
	Message string
	Status  lifecycle.Status
}

func (e *ValidationError) Error() string { return e.Message }

func (c *Client) saveCall(method string, params any) (lifecycle.Status, error) {
	var result lifecycle.Status
	err := c.call(method, params, &result)
	var rerr *RPCError
	if errors.As(err, &rerr) && rerr.Code == codeValidation {
		verr := &ValidationError{Message: rerr.Message}
		if len(rerr.Data) > 0 {
			json.Unmarshal(rerr.Data, &verr.Status)
		}
		return verr.Status, verr
	}
	return result, err
}

func (c *Client) CreateInstrument(d model.Draft) (lifecycle.Status, error) {
	return c.saveCall("CreateInstrument", map[string]any{"Draft": d})
}

func (c *Client) SaveInstrument(anchor string, d model.Draft) (lifecycle.Status, error) {
	return c.saveCall("SaveInstrument", map[string]any{"Anchor": anchor, "Draft": d})
}

func (c *Client) Status(anchor string) (lifecycle.Status, error) {
	var result lifecycle.Status
	err := c.call("Status", map[string]any{"Anchor": anchor}, &result)
	return result, err
}

func (c *Client) ListInstruments() ([]lifecycle.Status, error) {
	var result []lifecycle.Status
	err := c.call("ListInstruments", map[string]any{}, &result)
	return result, err
}

func (c *Client) DisposeInstrument(anchor string) error {
	return c.call("DisposeInstrument", map[string]any{"Anchor": anchor}, nil)
}

func (c *Client) ExpirationChoices() ([]policy.ExpirationChoice, error) {
	var result []policy.ExpirationChoice
	err := c.call("ExpirationChoices", map[string]any{}, &result)
	return result, err
}

func (c *Client) NormalizeTemplate(template string, variables []string) (logtemplate.Normalized, error) {
	var result logtemplate.Normalized
	err := c.call("NormalizeTemplate", map[string]any{"Template": template, "Variables": variables}, &result)
	return result, err
}
