package ordering

import (
	"context"

	"github.com/rexliu/ordo/pkg/core"
)

// Store is the persistence contract the service needs. Implementations enforce
// uniqueness of both ordering keys and report violations as core.ErrConflict.
type Store interface {
	// WithTx runs fn atomically. fn's error aborts and is returned unchanged.
	WithTx(ctx context.Context, fn func(Tx) error) error
	Get(ctx context.Context, id string) (core.Item, error)
	// ListByOrder returns items sorted by exact fraction value.
	ListByOrder(ctx context.Context) ([]core.Item, error)
	// ListByRank returns items sorted by byte-wise rank.
	ListByRank(ctx context.Context) ([]core.Item, error)
}

// Tx is the view of the store inside a transaction.
type Tx interface {
	Get(ctx context.Context, id string) (core.Item, error)
	// Last returns the item with the greatest fraction, if any.
	Last(ctx context.Context) (core.Item, bool, error)
	// Between returns an item other than exclude that lies strictly between
	// prev and next under either key, if any.
	Between(ctx context.Context, prev, next core.Item, exclude string) (core.Item, bool, error)
	Insert(ctx context.Context, item core.Item) error
	Update(ctx context.Context, item core.Item) error
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, id string) (bool, error)
}
