package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client issues requests to a Server. Each call uses its own connection.
type Client struct {
	SocketPath string
	Timeout    time.Duration
}

// NewClient returns a client for the socket at path.
func NewClient(path string) *Client {
	return &Client{SocketPath: path, Timeout: 10 * time.Second}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.SocketPath, err)
	}
	return conn, nil
}

func (c *Client) send(conn net.Conn, method string, params any) (string, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return "", err
		}
		raw = b
	}
	req := Request{
		ID:     fmt.Sprintf("cli-%d", time.Now().UnixNano()),
		Type:   method,
		Params: raw,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return req.ID, WriteFrame(conn, payload)
}

func readResponse(conn net.Conn) (*Response, error) {
	respBytes, err := ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return &resp, resp.Error
	}
	return &resp, nil
}

// Call sends one request and decodes the result into out when out is non-nil.
// A structured failure is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if c.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	}
	if _, err := c.send(conn, method, params); err != nil {
		return err
	}
	resp, err := readResponse(conn)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Stream subscribes to method and invokes fn for every frame until ctx ends,
// the server closes the stream, or fn returns an error.
func (c *Client) Stream(ctx context.Context, method string, fn func([]byte) error) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	if _, err := c.send(conn, method, nil); err != nil {
		return err
	}
	if _, err := readResponse(conn); err != nil {
		return err
	}
	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}
