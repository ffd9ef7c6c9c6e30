package pricing

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MaxSqrtPriceBits is the width of the on-chain sqrtPriceX96 field.
const MaxSqrtPriceBits = 160

// q192 is (2^96)^2.
var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// Direction selects which token a price is quoted in.
type Direction int

const (
	// Token0PerToken1 is the amount of token0 per one token1, the direction
	// both normalizers produce.
	Token0PerToken1 Direction = iota
	// Token1PerToken0 is the reciprocal.
	Token1PerToken0
)

func (d Direction) String() string {
	switch d {
	case Token0PerToken1:
		return "token0_per_token1"
	case Token1PerToken0:
		return "token1_per_token0"
	default:
		return "unknown"
	}
}

// Orientation returns the direction that prices base in units of the other
// token, for a pool whose token0 is token0.
func Orientation(base, token0 common.Address) Direction {
	if base == token0 {
		return Token1PerToken0
	}
	return Token0PerToken1
}

// PriceRatio is an exact, unrounded price Num/Den in human units.
type PriceRatio struct {
	Num *big.Int
	Den *big.Int
}

// Inverse returns Den/Num.
func (r PriceRatio) Inverse() PriceRatio {
	return PriceRatio{Num: r.Den, Den: r.Num}
}

// Orient converts a Token0PerToken1 ratio into dir.
func (r PriceRatio) Orient(dir Direction) PriceRatio {
	if dir == Token1PerToken0 {
		return r.Inverse()
	}
	return r
}

// ReserveRatio returns (reserve0 / 10^d0) / (reserve1 / 10^d1) as an exact ratio.
func ReserveRatio(reserve0, reserve1 *uint256.Int, decimals0, decimals1 uint8) (PriceRatio, error) {
	if reserve0 == nil || reserve1 == nil || reserve0.IsZero() || reserve1.IsZero() {
		return PriceRatio{}, &InvalidReserveError{Reserve0: uintString(reserve0), Reserve1: uintString(reserve1)}
	}

	num := reserve0.ToBig()
	num.Mul(num, pow10(int32(decimals1)))
	den := reserve1.ToBig()
	den.Mul(den, pow10(int32(decimals0)))
	return PriceRatio{Num: num, Den: den}, nil
}

// SqrtPriceRatio returns 1 / (sqrtPriceX96 / 2^96)^2 scaled into human units,
// i.e. the amount of token0 per one token1.
func SqrtPriceRatio(sqrtPriceX96 *uint256.Int, decimals0, decimals1 uint8) (PriceRatio, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.IsZero() {
		return PriceRatio{}, &InvalidSqrtPriceError{SqrtPriceX96: uintString(sqrtPriceX96), Reason: "zero"}
	}
	if sqrtPriceX96.BitLen() > MaxSqrtPriceBits {
		return PriceRatio{}, &InvalidSqrtPriceError{SqrtPriceX96: sqrtPriceX96.Dec(), Reason: "exceeds 160 bits"}
	}

	sqrt := sqrtPriceX96.ToBig()
	num := new(big.Int).Mul(q192, pow10(int32(decimals1)))
	den := new(big.Int).Mul(sqrt, sqrt)
	den.Mul(den, pow10(int32(decimals0)))
	return PriceRatio{Num: num, Den: den}, nil
}

// NormalizeReservePrice converts a constant-product reserve pair into the
// amount of token0 per one token1.
func (e Engine) NormalizeReservePrice(reserve0, reserve1 *uint256.Int, decimals0, decimals1 uint8) (decimal.Decimal, error) {
	r, err := ReserveRatio(reserve0, reserve1, decimals0, decimals1)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return e.Quote(r, Token0PerToken1)
}

// NormalizeSqrtPrice converts a concentrated-liquidity sqrtPriceX96 into the
// amount of token0 per one token1.
func (e Engine) NormalizeSqrtPrice(sqrtPriceX96 *uint256.Int, decimals0, decimals1 uint8) (decimal.Decimal, error) {
	r, err := SqrtPriceRatio(sqrtPriceX96, decimals0, decimals1)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return e.Quote(r, Token0PerToken1)
}

func uintString(v *uint256.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.Dec()
}
