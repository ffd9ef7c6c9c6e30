package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"spreadwatch/internal/model"
)

// StateReader reads per-block pool state.
type StateReader struct {
	caller ContractCaller
}

// NewStateReader builds a StateReader over caller.
func NewStateReader(caller ContractCaller) *StateReader {
	return &StateReader{caller: caller}
}

// FetchReserves reads getReserves from a constant-product pair. A nil block
// reads the latest state.
func (r *StateReader) FetchReserves(ctx context.Context, pool common.Address, block *big.Int) (model.PoolReserves, error) {
	pairABI, err := V2PairABI()
	if err != nil {
		return model.PoolReserves{}, fmt.Errorf("parse pair abi: %w", err)
	}

	values, err := callMethod(ctx, r.caller, pool, pairABI, "getReserves", block)
	if err != nil {
		return model.PoolReserves{}, err
	}
	if len(values) != 3 {
		return model.PoolReserves{}, fmt.Errorf("unexpected getReserves values: %d", len(values))
	}

	reserve0, err := asUint256(values[0])
	if err != nil {
		return model.PoolReserves{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asUint256(values[1])
	if err != nil {
		return model.PoolReserves{}, fmt.Errorf("reserve1: %w", err)
	}
	ts, err := asBigInt(values[2])
	if err != nil {
		return model.PoolReserves{}, fmt.Errorf("block timestamp: %w", err)
	}

	return model.PoolReserves{
		Reserve0:           reserve0,
		Reserve1:           reserve1,
		BlockTimestampLast: uint32(ts.Uint64()),
	}, nil
}

// FetchSqrtPrice reads slot0 from a concentrated-liquidity pool. A nil block
// reads the latest state.
func (r *StateReader) FetchSqrtPrice(ctx context.Context, pool common.Address, block *big.Int) (model.SqrtPriceState, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.SqrtPriceState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, r.caller, pool, poolABI, "slot0", block)
	if err != nil {
		return model.SqrtPriceState{}, err
	}
	if len(values) < 2 {
		return model.SqrtPriceState{}, fmt.Errorf("unexpected slot0 values: %d", len(values))
	}

	sqrtPrice, err := asUint256(values[0])
	if err != nil {
		return model.SqrtPriceState{}, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return model.SqrtPriceState{}, fmt.Errorf("tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.SqrtPriceState{}, fmt.Errorf("tick: %w", err)
	}

	return model.SqrtPriceState{SqrtPriceX96: sqrtPrice, Tick: tick}, nil
}
