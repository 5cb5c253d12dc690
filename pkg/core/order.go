package core

import (
	"fmt"
	"math"
	"math/big"
)

// Fraction is a non-negative rational order key. Numerator and denominator are
// arbitrary precision because repeated insertion into one gap grows them without
// bound. The pair is not kept in lowest terms.
type Fraction struct {
	Num *big.Int
	Den *big.Int
}

// NewFraction builds a Fraction from machine integers.
func NewFraction(num, den int64) Fraction {
	return Fraction{Num: big.NewInt(num), Den: big.NewInt(den)}
}

// ParseFraction decodes base-10 numerator and denominator strings.
func ParseFraction(num, den string) (Fraction, error) {
	n, ok := new(big.Int).SetString(num, 10)
	if !ok {
		return Fraction{}, fmt.Errorf("invalid numerator %q", num)
	}
	d, ok := new(big.Int).SetString(den, 10)
	if !ok {
		return Fraction{}, fmt.Errorf("invalid denominator %q", den)
	}
	f := Fraction{Num: n, Den: d}
	if !f.Valid() {
		return Fraction{}, fmt.Errorf("invalid fraction %s/%s", num, den)
	}
	return f, nil
}

// FractionLowerBound is the open lower bound used when an item has no predecessor.
func FractionLowerBound() Fraction {
	return NewFraction(0, 1)
}

// FractionUpperBound is the open upper bound used when an item has no successor.
// Its zero denominator stands for infinity and only ever feeds a mediant sum.
func FractionUpperBound() Fraction {
	return NewFraction(1, 0)
}

// MidFraction returns the mediant of prev and next, which lies strictly between
// them whenever prev < next.
func MidFraction(prev, next Fraction) Fraction {
	return Fraction{
		Num: new(big.Int).Add(prev.Num, next.Num),
		Den: new(big.Int).Add(prev.Den, next.Den),
	}
}

// Valid reports whether f is a finite fraction with a positive denominator.
func (f Fraction) Valid() bool {
	return f.Num != nil && f.Den != nil && f.Num.Sign() >= 0 && f.Den.Sign() > 0
}

// Cmp compares f and o exactly by cross multiplication. Denominators are never
// negative, so the upper bound (1,0) compares greater than every finite fraction.
func (f Fraction) Cmp(o Fraction) int {
	left := new(big.Int).Mul(f.Num, o.Den)
	right := new(big.Int).Mul(o.Num, f.Den)
	return left.Cmp(right)
}

// Float64 evaluates the fraction. The result is approximate and only suitable
// as a coarse sort key.
func (f Fraction) Float64() float64 {
	if f.Den == nil || f.Den.Sign() == 0 {
		return math.Inf(1)
	}
	v, _ := new(big.Rat).SetFrac(f.Num, f.Den).Float64()
	return v
}

// Key returns the reduced form "a/b". Two fractions with equal value share a key.
func (f Fraction) Key() string {
	if f.Den == nil || f.Den.Sign() == 0 {
		return "inf"
	}
	return new(big.Rat).SetFrac(f.Num, f.Den).String()
}

// String renders the unreduced pair.
func (f Fraction) String() string {
	if f.Num == nil || f.Den == nil {
		return "<nil>"
	}
	return f.Num.String() + "/" + f.Den.String()
}
