package pricing

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

func q96() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), 96)
}

func units(amount int64, decimals uint8) *uint256.Int {
	v := new(big.Int).Mul(big.NewInt(amount), pow10(int32(decimals)))
	return uint256.MustFromBig(v)
}

func TestNewEngineRejectsLowPrecision(t *testing.T) {
	if _, err := NewEngine(MinDigits - 1); err == nil {
		t.Fatalf("expected error for precision below %d", MinDigits)
	}
	engine, err := NewEngine(MinDigits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.Digits() != MinDigits {
		t.Fatalf("digits mismatch: %d", engine.Digits())
	}
	if (Engine{}).Digits() != DefaultDigits {
		t.Fatalf("zero engine should use default digits")
	}
}

func TestEngineRatioRounding(t *testing.T) {
	engine := DefaultEngine()

	tests := []struct {
		num  int64
		den  int64
		want string
	}{
		{1, 3, "0." + strings.Repeat("3", 40)},
		{2, 3, "0." + strings.Repeat("6", 39) + "7"},
		{-1, 4, "-0.25"},
		{10, 1, "10"},
		{7, 700000, "0.00001"},
		{0, 5, "0"},
	}

	for _, tt := range tests {
		got, err := engine.Ratio(big.NewInt(tt.num), big.NewInt(tt.den))
		if err != nil {
			t.Fatalf("ratio %d/%d: %v", tt.num, tt.den, err)
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Fatalf("ratio %d/%d = %s, want %s", tt.num, tt.den, got, tt.want)
		}
	}

	if _, err := engine.Ratio(big.NewInt(1), big.NewInt(0)); err == nil {
		t.Fatalf("expected error for zero denominator")
	}
}

func TestNormalizeReservePrice(t *testing.T) {
	engine := DefaultEngine()

	tests := []struct {
		name      string
		reserve0  *uint256.Int
		reserve1  *uint256.Int
		decimals0 uint8
		decimals1 uint8
		want      string
	}{
		{"equal decimals", units(1000, 18), units(2000000, 18), 18, 18, "0.0005"},
		{"inverse pair", units(2000000, 18), units(1000, 18), 18, 18, "2000"},
		{"usdc weth", units(4000000, 6), units(2000, 18), 6, 18, "2000"},
		{"raw units", uint256.NewInt(3), uint256.NewInt(4), 0, 0, "0.75"},
	}

	for _, tt := range tests {
		got, err := engine.NormalizeReservePrice(tt.reserve0, tt.reserve1, tt.decimals0, tt.decimals1)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Fatalf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestNormalizeReservePriceMatchesExactRatio(t *testing.T) {
	engine := DefaultEngine()
	tolerance := new(big.Rat).SetFrac(big.NewInt(1), pow10(engine.Digits()-1))

	pairs := [][2]string{
		{"123456789012345678901234567", "987654321098765432109"},
		{"5192296858534827628530496329220095", "1"},
		{"1", "5192296858534827628530496329220095"},
		{"31415926535897932384626", "27182818284590452353602"},
	}

	for _, pair := range pairs {
		r0 := uint256.MustFromDecimal(pair[0])
		r1 := uint256.MustFromDecimal(pair[1])

		got, err := engine.NormalizeReservePrice(r0, r1, 18, 6)
		if err != nil {
			t.Fatalf("normalize %v: %v", pair, err)
		}

		exact := new(big.Rat).SetFrac(
			new(big.Int).Mul(r0.ToBig(), pow10(6)),
			new(big.Int).Mul(r1.ToBig(), pow10(18)),
		)
		relErr := new(big.Rat).Sub(got.Rat(), exact)
		relErr.Abs(relErr)
		relErr.Quo(relErr, exact)
		if relErr.Cmp(tolerance) > 0 {
			t.Fatalf("normalize %v: relative error %s exceeds tolerance", pair, relErr.FloatString(50))
		}
	}
}

func TestNormalizeReservePriceZero(t *testing.T) {
	engine := DefaultEngine()

	cases := [][2]*uint256.Int{
		{uint256.NewInt(0), uint256.NewInt(5)},
		{uint256.NewInt(5), uint256.NewInt(0)},
		{nil, uint256.NewInt(5)},
	}
	for _, c := range cases {
		_, err := engine.NormalizeReservePrice(c[0], c[1], 18, 18)
		var target *InvalidReserveError
		if !errors.As(err, &target) {
			t.Fatalf("expected InvalidReserveError, got %v", err)
		}
	}
}

func TestNormalizeSqrtPriceParity(t *testing.T) {
	engine := DefaultEngine()

	got, err := engine.NormalizeSqrtPrice(q96(), 18, 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("parity price = %s, want 1", got)
	}

	double := new(uint256.Int).Lsh(q96(), 1)
	got, err = engine.NormalizeSqrtPrice(double, 18, 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("2*Q96 price = %s, want 0.25", got)
	}
}

func TestNormalizeSqrtPriceDecimals(t *testing.T) {
	engine := DefaultEngine()

	// token0 with 6 decimals, token1 with 18: raw parity is 1e12 token0 per token1.
	got, err := engine.NormalizeSqrtPrice(q96(), 6, 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("1000000000000")) {
		t.Fatalf("price = %s, want 1e12", got)
	}
}

func TestNormalizeSqrtPriceInvalid(t *testing.T) {
	engine := DefaultEngine()

	tooWide := new(uint256.Int).Lsh(uint256.NewInt(1), 160)
	maxValid := new(uint256.Int).Sub(tooWide, uint256.NewInt(1))

	for _, value := range []*uint256.Int{uint256.NewInt(0), nil, tooWide} {
		_, err := engine.NormalizeSqrtPrice(value, 18, 18)
		var target *InvalidSqrtPriceError
		if !errors.As(err, &target) {
			t.Fatalf("expected InvalidSqrtPriceError for %v, got %v", value, err)
		}
	}

	if _, err := engine.NormalizeSqrtPrice(maxValid, 18, 18); err != nil {
		t.Fatalf("2^160-1 should be accepted: %v", err)
	}
}

func TestNormalizersDeterministic(t *testing.T) {
	engine := DefaultEngine()
	sqrt := uint256.MustFromDecimal("1771595571142957112070504151223")

	first, err := engine.NormalizeSqrtPrice(sqrt, 18, 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.NormalizeSqrtPrice(sqrt, 18, 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.String() != second.String() || first.Exponent() != second.Exponent() ||
		first.Coefficient().Cmp(second.Coefficient()) != 0 {
		t.Fatalf("sqrt normalizer not deterministic: %s vs %s", first, second)
	}

	a, _ := engine.NormalizeReservePrice(units(7, 18), units(3, 18), 18, 18)
	b, _ := engine.NormalizeReservePrice(units(7, 18), units(3, 18), 18, 18)
	if a.String() != b.String() || a.Exponent() != b.Exponent() {
		t.Fatalf("reserve normalizer not deterministic: %s vs %s", a, b)
	}
}

// The reserve pair and the sqrt price below describe the same market: 1000
// token0 against 2,000,000 token1. Both sources must agree in either direction.
func TestReserveAndSqrtPriceAgree(t *testing.T) {
	engine := DefaultEngine()

	reserves, err := ReserveRatio(units(1000, 18), units(2000000, 18), 18, 18)
	if err != nil {
		t.Fatalf("reserve ratio: %v", err)
	}

	// sqrtPriceX96 = sqrt(token1/token0) * 2^96 = sqrt(2000 * 2^192)
	radicand := new(big.Int).Lsh(big.NewInt(2000), 192)
	sqrt := uint256.MustFromBig(new(big.Int).Sqrt(radicand))
	sqrtRatio, err := SqrtPriceRatio(sqrt, 18, 18)
	if err != nil {
		t.Fatalf("sqrt ratio: %v", err)
	}

	tolerance := decimal.New(1, -24)
	tests := []struct {
		dir  Direction
		want string
	}{
		{Token0PerToken1, "0.0005"},
		{Token1PerToken0, "2000"},
	}

	for _, tt := range tests {
		fromReserves, err := engine.Quote(reserves, tt.dir)
		if err != nil {
			t.Fatalf("%s: %v", tt.dir, err)
		}
		fromSqrt, err := engine.Quote(sqrtRatio, tt.dir)
		if err != nil {
			t.Fatalf("%s: %v", tt.dir, err)
		}

		if !fromReserves.Equal(decimal.RequireFromString(tt.want)) {
			t.Fatalf("%s: reserve price %s, want %s", tt.dir, fromReserves, tt.want)
		}
		if diff := Diff(fromReserves, fromSqrt); diff.GreaterThan(tolerance) {
			t.Fatalf("%s: sources disagree by %s (%s vs %s)", tt.dir, diff, fromReserves, fromSqrt)
		}
	}
}

// Pool A lists token A first, pool B lists token B first. Oriented quotes
// must still agree on the price of A in units of B.
func TestOrientationAgreesAcrossTokenOrder(t *testing.T) {
	engine := DefaultEngine()
	tokenA := common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenB := common.HexToAddress("0x2000000000000000000000000000000000000002")

	reserves, err := ReserveRatio(units(1000, 18), units(2000000, 18), 18, 18)
	if err != nil {
		t.Fatalf("reserve ratio: %v", err)
	}
	priceA, err := engine.Quote(reserves, Orientation(tokenA, tokenA))
	if err != nil {
		t.Fatalf("quote A: %v", err)
	}

	// pool B: token0 = B, token1 = A, token1/token0 = 1/2000
	radicand := new(big.Int).Div(new(big.Int).Lsh(big.NewInt(1), 192), big.NewInt(2000))
	sqrt := uint256.MustFromBig(new(big.Int).Sqrt(radicand))
	sqrtRatio, err := SqrtPriceRatio(sqrt, 18, 18)
	if err != nil {
		t.Fatalf("sqrt ratio: %v", err)
	}
	priceB, err := engine.Quote(sqrtRatio, Orientation(tokenA, tokenB))
	if err != nil {
		t.Fatalf("quote B: %v", err)
	}

	if !priceA.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("price A = %s, want 2000", priceA)
	}
	// the floored sqrt price is off by less than one unit, so compare relatively
	if rel := Diff(priceA, priceB).Div(priceA); rel.GreaterThan(decimal.New(1, -24)) {
		t.Fatalf("oriented prices disagree by %s relative (%s vs %s)", rel, priceA, priceB)
	}
}
