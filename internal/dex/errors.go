package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"spreadwatch/internal/model"
)

// PoolNotFoundError means a factory has no pool for the requested pair.
type PoolNotFoundError struct {
	Kind    model.PoolKind
	Factory common.Address
	TokenA  common.Address
	TokenB  common.Address
	Fee     uint32
}

func (e *PoolNotFoundError) Error() string {
	if e.Kind == model.PoolKindConcentratedLiquidity {
		return fmt.Sprintf("no %s pool for %s/%s fee %d at factory %s",
			e.Kind, e.TokenA.Hex(), e.TokenB.Hex(), e.Fee, e.Factory.Hex())
	}
	return fmt.Sprintf("no %s pool for %s/%s at factory %s",
		e.Kind, e.TokenA.Hex(), e.TokenB.Hex(), e.Factory.Hex())
}
