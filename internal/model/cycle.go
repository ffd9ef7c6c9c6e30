package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Cycle is the outcome of one monitoring pass over a block.
type Cycle struct {
	BlockNumber uint64          `json:"block_number"`
	BlockHash   common.Hash     `json:"block_hash"`
	Pair        string          `json:"pair"`
	PriceA      decimal.Decimal `json:"price_a"`
	PriceB      decimal.Decimal `json:"price_b"`
	Diff        decimal.Decimal `json:"diff"`
	SpreadBps   decimal.Decimal `json:"spread_bps"`
	ObservedAt  time.Time       `json:"observed_at"`
}
