package core

import (
	"encoding/json"
	"math/big"
)

// Item is a single entry in the ordered collection.
type Item struct {
	ID        string
	Detail    string
	Fraction  Fraction
	Order     float64
	Rank      string
	CreatedAt int64
	UpdatedAt int64
}

// itemJSON is the wire shape of Item; the fraction is flattened into
// numerator/denominator so clients see plain JSON numbers.
type itemJSON struct {
	ID          string   `json:"id"`
	Detail      string   `json:"detail"`
	Numerator   *big.Int `json:"numerator"`
	Denominator *big.Int `json:"denominator"`
	Order       float64  `json:"order"`
	Rank        string   `json:"rank"`
	CreatedAt   int64    `json:"createdAt"`
	UpdatedAt   int64    `json:"updatedAt"`
}

// MarshalJSON implements json.Marshaler.
func (it Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(itemJSON{
		ID:          it.ID,
		Detail:      it.Detail,
		Numerator:   it.Fraction.Num,
		Denominator: it.Fraction.Den,
		Order:       it.Order,
		Rank:        it.Rank,
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw itemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*it = Item{
		ID:        raw.ID,
		Detail:    raw.Detail,
		Fraction:  Fraction{Num: raw.Numerator, Den: raw.Denominator},
		Order:     raw.Order,
		Rank:      raw.Rank,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}
	return nil
}

// SetKeys assigns both ordering keys and refreshes the derived float order.
func (it *Item) SetKeys(frac Fraction, rank string) {
	it.Fraction = frac
	it.Order = frac.Float64()
	it.Rank = rank
}

// Within reports whether it lies strictly between prev and next under either key.
func (it Item) Within(prev, next Item) bool {
	if prev.Fraction.Cmp(it.Fraction) < 0 && it.Fraction.Cmp(next.Fraction) < 0 {
		return true
	}
	return prev.Rank < it.Rank && it.Rank < next.Rank
}

// MoveRequest places ItemID between PrevID and NextID.
// An empty PrevID means the start of the list, an empty NextID the end.
type MoveRequest struct {
	ItemID string `json:"id"`
	PrevID string `json:"prevId,omitempty"`
	NextID string `json:"nextId,omitempty"`
}

// Snapshot is the persisted view of the collection written after mutations.
type Snapshot struct {
	Version string `json:"version"`
	Count   int    `json:"count"`
	Items   []Item `json:"items"`
}
