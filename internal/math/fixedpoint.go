package math

import (
	"math/big"
	"sync"
)

// Ratio is an integer fraction Num/Den used for fees and rates.
type Ratio struct {
	Num int64
	Den int64
}

// Valid reports whether 0 < Num <= Den.
func (r Ratio) Valid() bool {
	return r.Den > 0 && r.Num > 0 && r.Num <= r.Den
}

// Scratch big.Ints for intermediate products
var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	bigPool.Put(v)
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding
	RoundDown
	RoundUp
)

// MulDiv returns a * b / denominator with the given rounding.
// Operands must be non-negative and denominator non-zero. The result is a
// fresh big.Int owned by the caller.
func MulDiv(a, b, denominator *big.Int, roundingMode RoundingMode) *big.Int {
	product := getBig()
	remainder := getBig()
	defer putBig(product)
	defer putBig(remainder)

	product.Mul(a, b)

	quotient := new(big.Int)
	quotient.QuoRem(product, denominator, remainder)

	if remainder.Sign() == 0 {
		return quotient
	}

	switch roundingMode {
	case RoundUp:
		quotient.Add(quotient, big.NewInt(1))
	case RoundHalfEven:
		// Compare 2*remainder against denominator
		twice := getBig()
		defer putBig(twice)
		twice.Lsh(remainder, 1)

		cmp := twice.Cmp(denominator)
		if cmp > 0 || (cmp == 0 && quotient.Bit(0) == 1) {
			quotient.Add(quotient, big.NewInt(1))
		}
	}

	return quotient
}

// Min returns the smaller of a and b (not a copy).
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// Clone returns a copy of v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
