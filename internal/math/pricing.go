package math

import (
	"errors"
	"math/big"
)

// ErrInvalidReserves is returned when pricing against an empty side.
var ErrInvalidReserves = errors.New("invalid reserves")

// DefaultFee keeps 0.3% of every input in the pool.
var DefaultFee = Ratio{Num: 997, Den: 1000}

// GetAmountOut prices a constant-product trade with the fee taken on the input:
//
//	out = in*num*reserveOut / (reserveIn*den + in*num)
//
// Zero input yields zero output.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, fee Ratio) (*big.Int, error) {
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInvalidReserves
	}
	if amountIn.Sign() == 0 {
		return new(big.Int), nil
	}

	inWithFee := getBig()
	denominator := getBig()
	defer putBig(inWithFee)
	defer putBig(denominator)

	inWithFee.Mul(amountIn, big.NewInt(fee.Num))

	denominator.Mul(reserveIn, big.NewInt(fee.Den))
	denominator.Add(denominator, inWithFee)

	return MulDiv(inWithFee, reserveOut, denominator, RoundDown), nil
}

// RequiredBase returns the base amount that keeps the pool ratio when
// quoteIn is added: ceil(quoteIn * baseReserve / quoteReserve).
func RequiredBase(quoteIn, baseReserve, quoteReserve *big.Int) *big.Int {
	return MulDiv(quoteIn, baseReserve, quoteReserve, RoundUp)
}

// ProRata returns floor(amount * part / total).
func ProRata(amount, part, total *big.Int) *big.Int {
	return MulDiv(amount, part, total, RoundDown)
}
