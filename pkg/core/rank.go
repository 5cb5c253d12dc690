package core

import "strings"

const (
	// RankLowerBound is the open lower bound used when an item has no predecessor.
	RankLowerBound = "0"
	// RankUpperBound is the open upper bound used when an item has no successor.
	RankUpperBound = "z"
	// RankInitial is assigned to the first item of an empty collection.
	RankInitial = "i"

	rankMinChar = '0'
	rankMaxChar = 'z'
)

// MidRank returns a rank that sorts strictly between prev and next, which must
// satisfy prev < next. Positions past the end of either input read as the
// lower or upper sentinel character respectively, so the loop always ends.
//
// When two characters are adjacent there is no room at that position; prev's
// character is copied and the search continues one position deeper. Repeated
// insertion into the same gap therefore grows the result by a character per step.
func MidRank(prev, next string) string {
	var b strings.Builder
	for i := 0; ; i++ {
		p := rankCharAt(prev, i, rankMinChar)
		n := rankCharAt(next, i, rankMaxChar)
		if p == n {
			b.WriteByte(p)
			continue
		}
		mid := midChar(p, n)
		if mid == p || mid == n {
			b.WriteByte(p)
			continue
		}
		b.WriteByte(mid)
		return b.String()
	}
}

func rankCharAt(s string, i int, fallback byte) byte {
	if i >= len(s) {
		return fallback
	}
	return s[i]
}

// midChar rounds toward a. Go's integer division truncates toward zero, which
// matches floor only for non-negative differences, so handle both signs.
func midChar(a, b byte) byte {
	diff := int(b) - int(a)
	half := diff / 2
	if diff < 0 && diff%2 != 0 {
		half--
	}
	return byte(int(a) + half)
}
