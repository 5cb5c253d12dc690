package core

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNotFound indicates the referenced item or neighbor does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest indicates a malformed request rejected before any computation.
	ErrBadRequest = errors.New("bad request")
	// ErrConflict indicates a computed key collided with an existing item's key.
	// Callers should reload the neighbors and retry.
	ErrConflict = errors.New("conflict")
)

// MaxDetailLen bounds the opaque payload size in bytes.
const MaxDetailLen = 4096

// ValidateMove checks a move request before any neighbor is resolved.
func ValidateMove(req MoveRequest) error {
	if req.ItemID == "" {
		return fmt.Errorf("%w: item id required", ErrBadRequest)
	}
	if req.PrevID == "" && req.NextID == "" {
		return fmt.Errorf("%w: prevId or nextId must be present", ErrBadRequest)
	}
	if req.PrevID == req.ItemID || req.NextID == req.ItemID {
		return fmt.Errorf("%w: item cannot be its own neighbor", ErrBadRequest)
	}
	if req.PrevID != "" && req.PrevID == req.NextID {
		return fmt.Errorf("%w: prevId and nextId must differ", ErrBadRequest)
	}
	return nil
}

// ValidateDetail checks the payload of a create or update.
func ValidateDetail(detail string) error {
	if strings.TrimSpace(detail) == "" {
		return fmt.Errorf("%w: detail required", ErrBadRequest)
	}
	if len(detail) > MaxDetailLen {
		return fmt.Errorf("%w: detail exceeds %d bytes", ErrBadRequest, MaxDetailLen)
	}
	if !utf8.ValidString(detail) {
		return fmt.Errorf("%w: detail must be valid utf-8", ErrBadRequest)
	}
	return nil
}

// ValidateNeighbors checks that the resolved bounds are correctly ordered.
// Both key schemes must agree; a violation means the caller supplied neighbors
// in the wrong order and the midpoint would not sort between them.
func ValidateNeighbors(prev, next Item) error {
	if prev.Fraction.Cmp(next.Fraction) >= 0 {
		return fmt.Errorf("%w: prev %s is not before next %s", ErrBadRequest, prev.Fraction, next.Fraction)
	}
	if prev.Rank >= next.Rank {
		return fmt.Errorf("%w: prev rank %q is not before next rank %q", ErrBadRequest, prev.Rank, next.Rank)
	}
	return nil
}
