package core

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewItemID returns a monotonic ULID for an item created at t. IDs minted in the
// same millisecond still sort in creation order.
func NewItemID(t time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), idEntropy).String()
}

// CheckItemID rejects identifiers that are not well formed ULIDs.
func CheckItemID(id string) error {
	if _, err := ulid.ParseStrict(id); err != nil {
		return fmt.Errorf("%w: invalid id %q", ErrBadRequest, id)
	}
	return nil
}
