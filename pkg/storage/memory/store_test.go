package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/ordo/pkg/core"
	"github.com/rexliu/ordo/pkg/ordering"
)

func item(id string, num, den int64, rank string) core.Item {
	it := core.Item{ID: id, Detail: id}
	it.SetKeys(core.NewFraction(num, den), rank)
	return it
}

func TestTxCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.WithTx(ctx, func(tx ordering.Tx) error {
		return tx.Insert(ctx, item("a", 1, 1, "i"))
	}))
	assert.Equal(t, 1, s.Count())

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx ordering.Tx) error {
		if err := tx.Insert(ctx, item("b", 2, 1, "q")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Count(), "aborted insert must not be visible")
}

func TestUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.WithTx(ctx, func(tx ordering.Tx) error {
		return tx.Insert(ctx, item("a", 1, 1, "i"))
	}))

	for _, it := range []core.Item{
		item("b", 1, 1, "q"),
		item("b", 3, 3, "q"),
		item("b", 2, 1, "i"),
		item("a", 9, 1, "z"),
	} {
		err := s.WithTx(ctx, func(tx ordering.Tx) error { return tx.Insert(ctx, it) })
		assert.ErrorIs(t, err, core.ErrConflict, "insert %s %s %s", it.ID, it.Fraction, it.Rank)
	}
}

func TestUpdateReleasesOldKeys(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.WithTx(ctx, func(tx ordering.Tx) error {
		if err := tx.Insert(ctx, item("a", 1, 1, "i")); err != nil {
			return err
		}
		if err := tx.Update(ctx, item("a", 3, 2, "m")); err != nil {
			return err
		}
		return tx.Insert(ctx, item("b", 1, 1, "i"))
	}))

	err := s.WithTx(ctx, func(tx ordering.Tx) error {
		return tx.Update(ctx, item("ghost", 7, 1, "x"))
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestReturnedItemsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.WithTx(ctx, func(tx ordering.Tx) error {
		return tx.Insert(ctx, item("a", 1, 1, "i"))
	}))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Fraction.Num.SetInt64(42)

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1/1", again.Fraction.String())
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.WithTx(ctx, func(tx ordering.Tx) error {
		for _, it := range []core.Item{item("c", 2, 1, "q"), item("a", 1, 2, "L"), item("b", 3, 2, "m")} {
			if err := tx.Insert(ctx, it); err != nil {
				return err
			}
		}
		return nil
	}))
	byOrder, err := s.ListByOrder(ctx)
	require.NoError(t, err)
	byRank, err := s.ListByRank(ctx)
	require.NoError(t, err)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, byOrder[i].ID)
		assert.Equal(t, want, byRank[i].ID)
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New().WithTx(ctx, func(tx ordering.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBetween(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b, c := item("a", 1, 1, "i"), item("b", 2, 1, "q"), item("c", 3, 1, "u")
	require.NoError(t, s.WithTx(ctx, func(tx ordering.Tx) error {
		for _, it := range []core.Item{a, b, c} {
			if err := tx.Insert(ctx, it); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.WithTx(ctx, func(tx ordering.Tx) error {
		other, found, err := tx.Between(ctx, a, c, "")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "b", other.ID)

		_, found, err = tx.Between(ctx, a, c, "b")
		require.NoError(t, err)
		assert.False(t, found, "excluded item does not count")

		_, found, err = tx.Between(ctx, a, b, "")
		require.NoError(t, err)
		assert.False(t, found)

		upper := core.Item{Fraction: core.FractionUpperBound(), Rank: core.RankUpperBound}
		other, found, err = tx.Between(ctx, b, upper, "")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "c", other.ID)
		return nil
	}))
}
