package model

import "github.com/holiman/uint256"

// PoolReserves is a constant-product pool's getReserves result.
type PoolReserves struct {
	Reserve0           *uint256.Int
	Reserve1           *uint256.Int
	BlockTimestampLast uint32
}

// SqrtPriceState holds the slot0 fields used for pricing.
type SqrtPriceState struct {
	SqrtPriceX96 *uint256.Int
	Tick         int32
}
