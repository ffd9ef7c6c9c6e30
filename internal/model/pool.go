package model

import "github.com/ethereum/go-ethereum/common"

// PoolKind names the pricing curve of a pool.
type PoolKind string

const (
	PoolKindConstantProduct       PoolKind = "constant_product"
	PoolKindConcentratedLiquidity PoolKind = "concentrated_liquidity"
)

// PoolIdentity is a pool resolved at startup. It never changes afterwards.
type PoolIdentity struct {
	Kind    PoolKind       `json:"kind"`
	Address common.Address `json:"address"`
	Token0  common.Address `json:"token0"`
	Token1  common.Address `json:"token1"`
	Fee     uint32         `json:"fee,omitempty"`
}
