// Package ordering maintains the order keys of items on create and move.
//
// Every item carries two independent keys: an exact fraction produced by mediant
// insertion and a rank string produced by character bisection. Both are recomputed
// from the new neighbors on a move and never touch any other item.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rexliu/ordo/pkg/core"
)

// Service sequences reads, key computation and writes against a Store.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for mutation records.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for timestamps and ids.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService returns a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create appends a new item after the current last item.
func (s *Service) Create(ctx context.Context, detail string) (core.Item, error) {
	if err := core.ValidateDetail(detail); err != nil {
		return core.Item{}, err
	}
	now := s.now()
	item := core.Item{
		ID:        core.NewItemID(now),
		Detail:    detail,
		CreatedAt: now.UnixMilli(),
		UpdatedAt: now.UnixMilli(),
	}
	err := s.store.WithTx(ctx, func(tx Tx) error {
		last, ok, err := tx.Last(ctx)
		if err != nil {
			return err
		}
		if ok {
			item.SetKeys(
				core.MidFraction(last.Fraction, core.FractionUpperBound()),
				core.MidRank(last.Rank, core.RankUpperBound),
			)
		} else {
			item.SetKeys(core.NewFraction(1, 1), core.RankInitial)
		}
		return tx.Insert(ctx, item)
	})
	if err != nil {
		return core.Item{}, fmt.Errorf("create item: %w", err)
	}
	s.logger.Info("item created", "id", item.ID, "fraction", item.Fraction.String(), "rank", item.Rank)
	return item, nil
}

// Move places an item between the requested neighbors and rewrites only its keys.
func (s *Service) Move(ctx context.Context, req core.MoveRequest) (core.Item, error) {
	if err := core.ValidateMove(req); err != nil {
		return core.Item{}, err
	}
	var moved core.Item
	err := s.store.WithTx(ctx, func(tx Tx) error {
		item, err := tx.Get(ctx, req.ItemID)
		if err != nil {
			return fmt.Errorf("item %s: %w", req.ItemID, err)
		}
		prev := core.Item{Fraction: core.FractionLowerBound(), Rank: core.RankLowerBound}
		if req.PrevID != "" {
			if prev, err = tx.Get(ctx, req.PrevID); err != nil {
				return fmt.Errorf("prev %s: %w", req.PrevID, err)
			}
		}
		next := core.Item{Fraction: core.FractionUpperBound(), Rank: core.RankUpperBound}
		if req.NextID != "" {
			if next, err = tx.Get(ctx, req.NextID); err != nil {
				return fmt.Errorf("next %s: %w", req.NextID, err)
			}
		}
		if err := core.ValidateNeighbors(prev, next); err != nil {
			return err
		}
		// A midpoint only agrees across both keys when nothing sits between
		// the neighbors, so a crowded gap means the caller's view is stale.
		other, crowded, err := tx.Between(ctx, prev, next, item.ID)
		if err != nil {
			return err
		}
		if crowded {
			return fmt.Errorf("%w: %s lies between the requested neighbors", core.ErrConflict, other.ID)
		}
		item.SetKeys(
			core.MidFraction(prev.Fraction, next.Fraction),
			core.MidRank(prev.Rank, next.Rank),
		)
		item.UpdatedAt = s.now().UnixMilli()
		if err := tx.Update(ctx, item); err != nil {
			return err
		}
		moved = item
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrConflict) {
			s.logger.Warn("move collided", "id", req.ItemID, "prev", req.PrevID, "next", req.NextID)
		}
		return core.Item{}, fmt.Errorf("move item: %w", err)
	}
	s.logger.Info("item moved",
		"id", moved.ID,
		"prev", req.PrevID,
		"next", req.NextID,
		"fraction", moved.Fraction.String(),
		"rank", moved.Rank,
	)
	return moved, nil
}

// Update replaces an item's detail. Its position is unchanged.
func (s *Service) Update(ctx context.Context, id, detail string) (core.Item, error) {
	if err := core.ValidateDetail(detail); err != nil {
		return core.Item{}, err
	}
	var updated core.Item
	err := s.store.WithTx(ctx, func(tx Tx) error {
		item, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		item.Detail = detail
		item.UpdatedAt = s.now().UnixMilli()
		if err := tx.Update(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return core.Item{}, fmt.Errorf("update item %s: %w", id, err)
	}
	s.logger.Info("item updated", "id", id)
	return updated, nil
}

// Delete removes an item. Deleting an unknown id is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	var removed bool
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		removed, err = tx.Delete(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	if removed {
		s.logger.Info("item deleted", "id", id)
	}
	return nil
}

// Get returns a single item.
func (s *Service) Get(ctx context.Context, id string) (core.Item, error) {
	return s.store.Get(ctx, id)
}

// ListByOrder returns all items by exact fraction.
func (s *Service) ListByOrder(ctx context.Context) ([]core.Item, error) {
	return s.store.ListByOrder(ctx)
}

// ListByRank returns all items by rank. The sequence equals ListByOrder.
func (s *Service) ListByRank(ctx context.Context) ([]core.Item, error) {
	return s.store.ListByRank(ctx)
}

// Verify checks that both keys order the collection identically and returns
// the number of items inspected.
func (s *Service) Verify(ctx context.Context) (int, error) {
	byOrder, err := s.store.ListByOrder(ctx)
	if err != nil {
		return 0, err
	}
	byRank, err := s.store.ListByRank(ctx)
	if err != nil {
		return 0, err
	}
	if len(byOrder) != len(byRank) {
		return 0, fmt.Errorf("order lists differ in length: %d vs %d", len(byOrder), len(byRank))
	}
	for i := range byOrder {
		if byOrder[i].ID != byRank[i].ID {
			return 0, fmt.Errorf("orders disagree at position %d: %s by fraction, %s by rank", i, byOrder[i].ID, byRank[i].ID)
		}
	}
	return len(byOrder), nil
}
