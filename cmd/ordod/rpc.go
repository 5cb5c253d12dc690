package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rexliu/ordo/pkg/core"
	"github.com/rexliu/ordo/pkg/ipc"
)

func (d *daemon) registerHandlers(srv *ipc.Server) {
	srv.Register("ping", d.handlePing)
	srv.Register("create_item", d.handleCreate)
	srv.Register("list_items", d.handleListByOrder)
	srv.Register("list_by_rank", d.handleListByRank)
	srv.Register("get_item", d.handleGet)
	srv.Register("update_item", d.handleUpdate)
	srv.Register("delete_item", d.handleDelete)
	srv.Register("move_item", d.handleMove)
	srv.Register("verify", d.handleVerify)
	srv.Register("get_snapshot", d.handleSnapshot)
	srv.Register("get_history", d.handleHistory)
	srv.RegisterStream("subscribe_events", d.handleSubscribeEvents)
}

type idParams struct {
	ID string `json:"id"`
}

type detailParams struct {
	ID     string `json:"id,omitempty"`
	Detail string `json:"detail"`
}

// toRPCError maps service errors onto protocol codes.
func toRPCError(err error) *ipc.Error {
	switch {
	case errors.Is(err, core.ErrBadRequest):
		return ipc.Errorf(ipc.CodeBadRequest, err.Error(), nil)
	case errors.Is(err, core.ErrNotFound):
		return ipc.Errorf(ipc.CodeNotFound, err.Error(), nil)
	case errors.Is(err, core.ErrConflict):
		return ipc.Errorf(ipc.CodeConflict,
			"neighbors are stale or the order key is taken; reload neighbors and retry",
			map[string]any{"retryable": true, "cause": err.Error()})
	default:
		return ipc.Errorf(ipc.CodeStorage, err.Error(), nil)
	}
}

func decodeParams(params json.RawMessage, v any) *ipc.Error {
	if len(params) == 0 {
		return ipc.Errorf(ipc.CodeInvalidRequest, "params required", nil)
	}
	if err := json.Unmarshal(params, v); err != nil {
		return ipc.Errorf(ipc.CodeInvalidRequest, "invalid params", nil)
	}
	return nil
}

// afterMutation notifies subscribers, refreshes the on-disk snapshot and
// records it in history. Failures here never fail the request that already
// committed.
func (d *daemon) afterMutation(ctx context.Context, op, id string) {
	d.events.publish(op, id)
	d.snapMu.Lock()
	defer d.snapMu.Unlock()
	items, err := d.svc.ListByOrder(ctx)
	if err != nil {
		d.logger.Warn("snapshot list failed", "err", err)
		return
	}
	if err := writeSnapshot(d.profileDir, buildSnapshot(items)); err != nil {
		d.logger.Warn("snapshot write failed", "err", err)
		return
	}
	if d.history == nil {
		return
	}
	status, err := d.history.Commit(ctx, op+" "+id)
	if err != nil {
		d.logger.Warn("history commit failed", "err", err)
		return
	}
	d.logger.Debug("history committed", "hash", status.Hash, "committed", status.Committed)
}

func (d *daemon) handlePing(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	now := time.Now().UnixMilli()
	d.logger.Debug("received ping", "now", now)
	return map[string]any{"now": now, "uptimeMs": time.Since(d.started).Milliseconds()}, nil
}

func (d *daemon) handleCreate(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var p detailParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	item, err := d.svc.Create(ctx, p.Detail)
	if err != nil {
		return nil, toRPCError(err)
	}
	d.afterMutation(ctx, "create", item.ID)
	return map[string]any{"item": item}, nil
}

func (d *daemon) handleListByOrder(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	items, err := d.svc.ListByOrder(ctx)
	if err != nil {
		return nil, toRPCError(err)
	}
	return map[string]any{"items": items}, nil
}

func (d *daemon) handleListByRank(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	items, err := d.svc.ListByRank(ctx)
	if err != nil {
		return nil, toRPCError(err)
	}
	return map[string]any{"items": items}, nil
}

func (d *daemon) handleGet(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var p idParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	item, err := d.svc.Get(ctx, p.ID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return map[string]any{"item": item}, nil
}

func (d *daemon) handleUpdate(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var p detailParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	item, err := d.svc.Update(ctx, p.ID, p.Detail)
	if err != nil {
		return nil, toRPCError(err)
	}
	d.afterMutation(ctx, "update", item.ID)
	return map[string]any{"item": item}, nil
}

func (d *daemon) handleDelete(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var p idParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if err := d.svc.Delete(ctx, p.ID); err != nil {
		return nil, toRPCError(err)
	}
	d.afterMutation(ctx, "delete", p.ID)
	return map[string]any{"message": "item deleted"}, nil
}

func (d *daemon) handleMove(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var req core.MoveRequest
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	item, err := d.svc.Move(ctx, req)
	if err != nil {
		return nil, toRPCError(err)
	}
	d.afterMutation(ctx, "move", item.ID)
	return map[string]any{"item": item}, nil
}

func (d *daemon) handleVerify(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	n, err := d.svc.Verify(ctx)
	if err != nil {
		return map[string]any{"ok": false, "error": err.Error()}, nil
	}
	return map[string]any{"ok": true, "count": n}, nil
}

func (d *daemon) handleSnapshot(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	items, err := d.svc.ListByOrder(ctx)
	if err != nil {
		return nil, toRPCError(err)
	}
	return buildSnapshot(items), nil
}

type historyParams struct {
	Limit int `json:"limit"`
}

func (d *daemon) handleHistory(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var p historyParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, ipc.Errorf(ipc.CodeInvalidRequest, "invalid params", nil)
		}
	}
	if p.Limit < 0 {
		return nil, ipc.Errorf(ipc.CodeBadRequest, "limit must not be negative", nil)
	}
	if d.history == nil {
		return map[string]any{"enabled": false, "commits": []any{}}, nil
	}
	entries, err := d.history.Log(ctx, p.Limit)
	if err != nil {
		return nil, ipc.Errorf(ipc.CodeStorage, err.Error(), nil)
	}
	return map[string]any{"enabled": true, "commits": entries}, nil
}

func (d *daemon) handleSubscribeEvents(ctx context.Context, params json.RawMessage) (<-chan []byte, *ipc.Error) {
	client := d.events.register()
	go func() {
		<-ctx.Done()
		d.events.unregister(client)
	}()
	return client.send, nil
}
