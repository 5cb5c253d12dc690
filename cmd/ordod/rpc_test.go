package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/ordo/pkg/core"
	"github.com/rexliu/ordo/pkg/ipc"
	"github.com/rexliu/ordo/pkg/logging"
	"github.com/rexliu/ordo/pkg/ordering"
	"github.com/rexliu/ordo/pkg/storage/memory"
	"github.com/rexliu/ordo/pkg/vcs/git"
)

type harness struct {
	d      *daemon
	client *ipc.Client
	dir    string
}

func newHarness(t *testing.T, setup ...func(*daemon)) *harness {
	t.Helper()
	// unix socket paths are length limited, so keep them short
	dir, err := os.MkdirTemp("", "ordod")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	logger := logging.Discard()
	d := newDaemon(dir, ordering.NewService(memory.New(), ordering.WithLogger(logger)), logger)
	for _, fn := range setup {
		fn(d)
	}
	srv := ipc.NewServer(logger)
	d.registerHandlers(srv)

	ctx, cancel := context.WithCancel(context.Background())
	socket := filepath.Join(dir, "ordo.sock")
	require.NoError(t, srv.Start(ctx, socket))
	t.Cleanup(func() {
		cancel()
		srv.Stop()
		d.events.close()
		srv.Wait()
	})
	return &harness{d: d, client: ipc.NewClient(socket), dir: dir}
}

type itemResult struct {
	Item core.Item `json:"item"`
}

type listResult struct {
	Items []core.Item `json:"items"`
}

func (h *harness) create(t *testing.T, detail string) core.Item {
	t.Helper()
	var res itemResult
	require.NoError(t, h.client.Call(context.Background(), "create_item", map[string]string{"detail": detail}, &res))
	return res.Item
}

func (h *harness) move(prev, id, next string) (core.Item, error) {
	var res itemResult
	err := h.client.Call(context.Background(), "move_item", core.MoveRequest{ItemID: id, PrevID: prev, NextID: next}, &res)
	return res.Item, err
}

func rpcCode(t *testing.T, err error) string {
	t.Helper()
	var rpcErr *ipc.Error
	require.True(t, errors.As(err, &rpcErr), "expected *ipc.Error, got %v", err)
	return rpcErr.Code
}

func TestCreateAndList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var empty listResult
	require.NoError(t, h.client.Call(ctx, "list_items", nil, &empty))
	assert.Empty(t, empty.Items)

	first := h.create(t, "test")
	assert.Equal(t, "1/1", first.Fraction.String())
	assert.Equal(t, 1.0, first.Order)
	assert.Equal(t, "i", first.Rank)
	assert.Equal(t, "test", first.Detail)

	second := h.create(t, "test2")
	assert.Equal(t, "2/1", second.Fraction.String())
	assert.Equal(t, "q", second.Rank)

	var byOrder, byRank listResult
	require.NoError(t, h.client.Call(ctx, "list_items", nil, &byOrder))
	require.NoError(t, h.client.Call(ctx, "list_by_rank", nil, &byRank))
	require.Len(t, byOrder.Items, 2)
	assert.Equal(t, first.ID, byOrder.Items[0].ID)
	assert.Equal(t, byOrder.Items[0].ID, byRank.Items[0].ID)
	assert.Equal(t, byOrder.Items[1].ID, byRank.Items[1].ID)
}

func TestMoveWireFormat(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "test")
	b := h.create(t, "test2")
	c := h.create(t, "test3")

	var raw json.RawMessage
	err := h.client.Call(context.Background(), "move_item", core.MoveRequest{ItemID: c.ID, PrevID: a.ID, NextID: b.ID}, &raw)
	require.NoError(t, err)

	var wire struct {
		Item map[string]any `json:"item"`
	}
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, c.ID, wire.Item["id"])
	assert.Equal(t, "test3", wire.Item["detail"])
	assert.Equal(t, 3.0, wire.Item["numerator"])
	assert.Equal(t, 2.0, wire.Item["denominator"])
	assert.Equal(t, 1.5, wire.Item["order"])
	assert.Equal(t, "m", wire.Item["rank"])
}

func TestMoveErrors(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "a")
	b := h.create(t, "b")
	c := h.create(t, "c")

	_, err := h.move("", c.ID, "")
	assert.Equal(t, ipc.CodeBadRequest, rpcCode(t, err))

	_, err = h.move(a.ID, "missing", "")
	assert.Equal(t, ipc.CodeNotFound, rpcCode(t, err))

	_, err = h.move("missing", c.ID, "")
	assert.Equal(t, ipc.CodeNotFound, rpcCode(t, err))

	err = h.client.Call(context.Background(), "move_item", nil, nil)
	assert.Equal(t, ipc.CodeInvalidRequest, rpcCode(t, err))

	_, err = h.move(a.ID, c.ID, b.ID)
	require.NoError(t, err)
	d := h.create(t, "d")
	_, err = h.move(a.ID, d.ID, b.ID)
	assert.Equal(t, ipc.CodeConflict, rpcCode(t, err))
	var rpcErr *ipc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, true, rpcErr.Details["retryable"])
}

func TestUpdateDeleteAndSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, "test")

	var updated itemResult
	require.NoError(t, h.client.Call(ctx, "update_item", map[string]string{"id": a.ID, "detail": "test_update"}, &updated))
	assert.Equal(t, "test_update", updated.Item.Detail)
	assert.Equal(t, "i", updated.Item.Rank)

	err := h.client.Call(ctx, "update_item", map[string]string{"id": "missing", "detail": "x"}, nil)
	assert.Equal(t, ipc.CodeNotFound, rpcCode(t, err))

	data, err := os.ReadFile(filepath.Join(h.dir, snapshotFile))
	require.NoError(t, err)
	var snap core.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	require.Equal(t, 1, snap.Count)
	assert.Equal(t, "test_update", snap.Items[0].Detail)

	var msg map[string]string
	require.NoError(t, h.client.Call(ctx, "delete_item", map[string]string{"id": a.ID}, &msg))
	assert.Equal(t, "item deleted", msg["message"])
	require.NoError(t, h.client.Call(ctx, "delete_item", map[string]string{"id": a.ID}, nil))

	var verify struct {
		OK    bool `json:"ok"`
		Count int  `json:"count"`
	}
	require.NoError(t, h.client.Call(ctx, "verify", nil, &verify))
	assert.True(t, verify.OK)
	assert.Zero(t, verify.Count)
}

func TestSnapshotFollowsConcurrentCreates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.client.Call(ctx, "create_item", map[string]string{"detail": "parallel"}, nil))
		}()
	}
	wg.Wait()

	var list listResult
	require.NoError(t, h.client.Call(ctx, "list_items", nil, &list))
	data, err := os.ReadFile(filepath.Join(h.dir, snapshotFile))
	require.NoError(t, err)
	var snap core.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, len(list.Items), snap.Count)
	assert.Len(t, snap.Items, len(list.Items))
}

func TestSubscribeEvents(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frames := make(chan []byte, 4)
	go h.client.Stream(ctx, "subscribe_events", func(frame []byte) error {
		frames <- frame
		return nil
	})
	require.Eventually(t, func() bool { return h.d.events.subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	item := h.create(t, "watched")
	select {
	case frame := <-frames:
		var ev itemsChanged
		require.NoError(t, json.Unmarshal(frame, &ev))
		assert.Equal(t, "items_changed", ev.Type)
		assert.Equal(t, "create", ev.Op)
		assert.Equal(t, item.ID, ev.ID)
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	cancel()
	require.Eventually(t, func() bool { return h.d.events.subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

type historyResult struct {
	Enabled bool        `json:"enabled"`
	Commits []git.Entry `json:"commits"`
}

func TestHistoryDisabled(t *testing.T) {
	h := newHarness(t)
	var res historyResult
	require.NoError(t, h.client.Call(context.Background(), "get_history", nil, &res))
	assert.False(t, res.Enabled)
	assert.Empty(t, res.Commits)
}

func TestHistoryRecordsMutations(t *testing.T) {
	h := newHarness(t, func(d *daemon) {
		repo, err := git.Open(d.profileDir, git.Options{AuthorName: "test", AuthorEmail: "test@localhost", Track: []string{snapshotFile}})
		require.NoError(t, err)
		d.history = repo
	})
	ctx := context.Background()
	a := h.create(t, "test")
	b := h.create(t, "test2")
	_, err := h.move("", b.ID, a.ID)
	require.NoError(t, err)

	var res historyResult
	require.NoError(t, h.client.Call(ctx, "get_history", map[string]int{"limit": 2}, &res))
	assert.True(t, res.Enabled)
	require.Len(t, res.Commits, 2)
	assert.Equal(t, "move "+b.ID, res.Commits[0].Message)
	assert.Equal(t, "create "+b.ID, res.Commits[1].Message)

	err = h.client.Call(ctx, "get_history", map[string]int{"limit": -1}, nil)
	assert.Equal(t, ipc.CodeBadRequest, rpcCode(t, err))
}
