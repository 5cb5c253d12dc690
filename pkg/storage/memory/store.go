// Package memory is an in-process Store used by tests and ephemeral daemons.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/rexliu/ordo/pkg/core"
	"github.com/rexliu/ordo/pkg/ordering"
)

type state struct {
	byID   map[string]core.Item
	byFrac map[string]string // reduced fraction -> id
	byRank map[string]string
}

func newState() *state {
	return &state{
		byID:   make(map[string]core.Item),
		byFrac: make(map[string]string),
		byRank: make(map[string]string),
	}
}

func (st *state) clone() *state {
	out := &state{
		byID:   make(map[string]core.Item, len(st.byID)),
		byFrac: make(map[string]string, len(st.byFrac)),
		byRank: make(map[string]string, len(st.byRank)),
	}
	for k, v := range st.byID {
		out.byID[k] = v
	}
	for k, v := range st.byFrac {
		out.byFrac[k] = v
	}
	for k, v := range st.byRank {
		out.byRank[k] = v
	}
	return out
}

// Store keeps items in maps guarded by a single RWMutex. A transaction holds
// the write lock and works on a copy that replaces the live state on success.
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ ordering.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// WithTx runs fn against a private copy and commits it if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(ordering.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{st: s.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Get returns the item with id.
func (s *Store) Get(ctx context.Context, id string) (core.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.get(id)
}

// ListByOrder returns items sorted by exact fraction.
func (s *Store) ListByOrder(ctx context.Context) ([]core.Item, error) {
	items := s.snapshot(ctx)
	sort.SliceStable(items, func(i, j int) bool {
		if c := items[i].Fraction.Cmp(items[j].Fraction); c != 0 {
			return c < 0
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// ListByRank returns items sorted by rank.
func (s *Store) ListByRank(ctx context.Context) ([]core.Item, error) {
	items := s.snapshot(ctx)
	sort.Slice(items, func(i, j int) bool {
		return items[i].Rank < items[j].Rank
	})
	return items, nil
}

// Count returns the number of stored items.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.byID)
}

func (s *Store) snapshot(ctx context.Context) []core.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Item, 0, len(s.st.byID))
	for _, it := range s.st.byID {
		out = append(out, cloneItem(it))
	}
	return out
}

func (st *state) get(id string) (core.Item, error) {
	it, ok := st.byID[id]
	if !ok {
		return core.Item{}, core.ErrNotFound
	}
	return cloneItem(it), nil
}

type memTx struct {
	st *state
}

func (tx *memTx) Get(ctx context.Context, id string) (core.Item, error) {
	return tx.st.get(id)
}

func (tx *memTx) Last(ctx context.Context) (core.Item, bool, error) {
	var (
		last  core.Item
		found bool
	)
	for _, it := range tx.st.byID {
		if !found || it.Fraction.Cmp(last.Fraction) > 0 {
			last, found = it, true
		}
	}
	if !found {
		return core.Item{}, false, nil
	}
	return cloneItem(last), true, nil
}

func (tx *memTx) Between(ctx context.Context, prev, next core.Item, exclude string) (core.Item, bool, error) {
	for id, it := range tx.st.byID {
		if id != exclude && it.Within(prev, next) {
			return cloneItem(it), true, nil
		}
	}
	return core.Item{}, false, nil
}

func (tx *memTx) Insert(ctx context.Context, item core.Item) error {
	if _, ok := tx.st.byID[item.ID]; ok {
		return core.ErrConflict
	}
	if err := tx.claimKeys(item); err != nil {
		return err
	}
	tx.st.byID[item.ID] = cloneItem(item)
	return nil
}

func (tx *memTx) Update(ctx context.Context, item core.Item) error {
	old, ok := tx.st.byID[item.ID]
	if !ok {
		return core.ErrNotFound
	}
	delete(tx.st.byFrac, old.Fraction.Key())
	delete(tx.st.byRank, old.Rank)
	if err := tx.claimKeys(item); err != nil {
		return err
	}
	tx.st.byID[item.ID] = cloneItem(item)
	return nil
}

func (tx *memTx) Delete(ctx context.Context, id string) (bool, error) {
	old, ok := tx.st.byID[id]
	if !ok {
		return false, nil
	}
	delete(tx.st.byID, id)
	delete(tx.st.byFrac, old.Fraction.Key())
	delete(tx.st.byRank, old.Rank)
	return true, nil
}

func (tx *memTx) claimKeys(item core.Item) error {
	fk := item.Fraction.Key()
	if owner, ok := tx.st.byFrac[fk]; ok && owner != item.ID {
		return core.ErrConflict
	}
	if owner, ok := tx.st.byRank[item.Rank]; ok && owner != item.ID {
		return core.ErrConflict
	}
	tx.st.byFrac[fk] = item.ID
	tx.st.byRank[item.Rank] = item.ID
	return nil
}

func cloneItem(it core.Item) core.Item {
	if it.Fraction.Num != nil {
		it.Fraction.Num = new(big.Int).Set(it.Fraction.Num)
	}
	if it.Fraction.Den != nil {
		it.Fraction.Den = new(big.Int).Set(it.Fraction.Den)
	}
	return it
}
