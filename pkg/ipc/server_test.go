package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, setup func(*Server)) *Client {
	t.Helper()
	dir, err := os.MkdirTemp("", "ipc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	socket := filepath.Join(dir, "s.sock")

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(nil)
	setup(srv)
	require.NoError(t, srv.Start(ctx, socket))
	t.Cleanup(func() {
		cancel()
		srv.Stop()
		srv.Wait()
	})
	return NewClient(socket)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"a":1}`)))
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}

func TestReadFrameRejectsOversize(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xff, 0xff, 0xff, 0x7f})
	_, err := ReadFrame(buf)
	assert.Error(t, err)
}

func TestCall(t *testing.T) {
	client := startServer(t, func(srv *Server) {
		srv.Register("echo", func(ctx context.Context, params json.RawMessage) (any, *Error) {
			var p struct {
				Word string `json:"word"`
			}
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, Errorf(CodeBadRequest, "invalid params", nil)
			}
			return map[string]string{"echo": p.Word}, nil
		})
		srv.Register("fail", func(ctx context.Context, params json.RawMessage) (any, *Error) {
			return nil, Errorf(CodeNotFound, "nothing here", map[string]any{"id": "x"})
		})
	})
	ctx := context.Background()

	var out struct {
		Echo string `json:"echo"`
	}
	require.NoError(t, client.Call(ctx, "echo", map[string]string{"word": "hi"}, &out))
	assert.Equal(t, "hi", out.Echo)

	err := client.Call(ctx, "fail", nil, nil)
	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, CodeNotFound, rpcErr.Code)
	assert.Equal(t, "x", rpcErr.Details["id"])

	err = client.Call(ctx, "nope", nil, nil)
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, CodeInvalidRequest, rpcErr.Code)
}

func TestStream(t *testing.T) {
	client := startServer(t, func(srv *Server) {
		srv.RegisterStream("ticks", func(ctx context.Context, params json.RawMessage) (<-chan []byte, *Error) {
			ch := make(chan []byte, 3)
			ch <- []byte("one")
			ch <- []byte("two")
			ch <- []byte("three")
			close(ch)
			return ch, nil
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []string
	err := client.Stream(ctx, "ticks", func(frame []byte) error {
		got = append(got, string(frame))
		return nil
	})
	// the server closes the connection once the channel is drained
	assert.Error(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, got)
}
