package pricing

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// MinDigits is the smallest precision an Engine accepts.
	MinDigits int32 = 34
	// DefaultDigits is the precision used when none is configured.
	DefaultDigits int32 = 40
)

var (
	bigOne = big.NewInt(1)
	bigTwo = big.NewInt(2)
	bigTen = big.NewInt(10)
)

// Engine turns exact integer ratios into decimals rounded to a fixed number
// of significant digits. Every price produced by this package goes through a
// single Engine rounding, so identical inputs give identical outputs.
type Engine struct {
	digits int32
}

// NewEngine builds an Engine keeping digits significant digits.
func NewEngine(digits int32) (Engine, error) {
	if digits < MinDigits {
		return Engine{}, fmt.Errorf("precision must be at least %d significant digits, got %d", MinDigits, digits)
	}
	return Engine{digits: digits}, nil
}

// DefaultEngine returns an Engine at DefaultDigits.
func DefaultEngine() Engine {
	return Engine{digits: DefaultDigits}
}

// Digits returns the configured significant-digit count.
func (e Engine) Digits() int32 {
	if e.digits == 0 {
		return DefaultDigits
	}
	return e.digits
}

// Ratio returns num/den rounded half away from zero to the engine precision.
func (e Engine) Ratio(num, den *big.Int) (decimal.Decimal, error) {
	if num == nil || den == nil {
		return decimal.Decimal{}, fmt.Errorf("ratio operand is nil")
	}
	if den.Sign() == 0 {
		return decimal.Decimal{}, fmt.Errorf("ratio denominator is zero")
	}
	if num.Sign() == 0 {
		return decimal.Zero, nil
	}

	negative := num.Sign() != den.Sign()
	n := new(big.Int).Abs(num)
	d := new(big.Int).Abs(den)

	// exp is floor(log10(n/d)), so 10^exp <= n/d < 10^(exp+1).
	exp := int32(len(n.String()) - len(d.String()))
	if lessThanScaled(n, d, exp) {
		exp--
	}

	scale := e.Digits() - 1 - exp
	if scale >= 0 {
		n.Mul(n, pow10(scale))
	} else {
		d.Mul(d, pow10(-scale))
	}

	// round(n/d) = floor((2n + d) / 2d)
	n.Mul(n, bigTwo).Add(n, d)
	d.Mul(d, bigTwo)
	q := n.Quo(n, d)
	if negative {
		q.Neg(q)
	}

	return decimal.NewFromBigInt(q, -scale), nil
}

// Quote rounds an exact price ratio oriented in the given direction.
func (e Engine) Quote(r PriceRatio, dir Direction) (decimal.Decimal, error) {
	oriented := r.Orient(dir)
	return e.Ratio(oriented.Num, oriented.Den)
}

// lessThanScaled reports whether n < d * 10^exp.
func lessThanScaled(n, d *big.Int, exp int32) bool {
	if exp >= 0 {
		return n.Cmp(new(big.Int).Mul(d, pow10(exp))) < 0
	}
	return new(big.Int).Mul(n, pow10(-exp)).Cmp(d) < 0
}

func pow10(n int32) *big.Int {
	if n == 0 {
		return new(big.Int).Set(bigOne)
	}
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}
