package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMidRank(t *testing.T) {
	tests := []struct {
		prev, next string
		want       string
	}{
		{RankLowerBound, RankUpperBound, "U"},
		{"i", RankUpperBound, "q"},
		{"q", RankUpperBound, "u"},
		{"u", RankUpperBound, "w"},
		{RankLowerBound, "i", "L"},
		{"i", "q", "m"},
		{"u", "w", "v"},
		{"a", "b", "aU"},
		{"a", "a1", "a0U"},
		{"az", "b", "azU"},
		{"y", RankUpperBound, "yU"},
		{"yU", RankUpperBound, "yg"},
	}
	for _, tt := range tests {
		t.Run(tt.prev+"_"+tt.next, func(t *testing.T) {
			got := MidRank(tt.prev, tt.next)
			assert.Equal(t, tt.want, got)
			assert.Less(t, tt.prev, got)
			assert.Less(t, got, tt.next)
		})
	}
}

func TestMidRankStrictlyBetween(t *testing.T) {
	alphabet := "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	var keys []string
	for i := 0; i < len(alphabet); i += 5 {
		keys = append(keys, alphabet[i:i+1])
		// nothing fits between "a" and "a0": past the end a key reads as '0'
		for j := 1; j < len(alphabet); j += 13 {
			keys = append(keys, alphabet[i:i+1]+alphabet[j:j+1])
		}
	}
	for _, a := range keys {
		for _, b := range keys {
			if a >= b {
				continue
			}
			mid := MidRank(a, b)
			require.Less(t, a, mid, "MidRank(%q, %q)", a, b)
			require.Less(t, mid, b, "MidRank(%q, %q)", a, b)
		}
	}
}

func TestMidRankDeterministic(t *testing.T) {
	assert.Equal(t, MidRank("i", "q"), MidRank("i", "q"))
}

func TestMidRankAppendSequence(t *testing.T) {
	want := []string{"i", "q", "u", "w", "x", "y", "yU", "yg"}
	got := []string{RankInitial}
	for len(got) < len(want) {
		got = append(got, MidRank(got[len(got)-1], RankUpperBound))
	}
	assert.Equal(t, want, got)
}

func TestMidRankGrowthUnderNarrowInsertion(t *testing.T) {
	prev := "i"
	next := "q"
	for i := 0; i < 100; i++ {
		mid := MidRank(prev, next)
		require.Less(t, prev, mid)
		require.Less(t, mid, next)
		next = mid
	}
	assert.GreaterOrEqual(t, len(next), 15)
}
