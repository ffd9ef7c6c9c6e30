package model

import "github.com/ethereum/go-ethereum/common"

// Market is the read-only context shared by every component: the quoted
// token pair and the two pools trading it. Prices are always token A in
// units of token B.
type Market struct {
	ChainID uint64       `json:"chain_id"`
	TokenA  TokenMeta    `json:"token_a"`
	TokenB  TokenMeta    `json:"token_b"`
	PoolA   PoolIdentity `json:"pool_a"`
	PoolB   PoolIdentity `json:"pool_b"`
}

// Token returns metadata for one of the two market tokens.
func (m Market) Token(address common.Address) (TokenMeta, bool) {
	switch address {
	case m.TokenA.Address:
		return m.TokenA, true
	case m.TokenB.Address:
		return m.TokenB, true
	default:
		return TokenMeta{}, false
	}
}

// Decimals returns token0 and token1 decimals for a pool of this market.
func (m Market) Decimals(pool PoolIdentity) (uint8, uint8) {
	t0, _ := m.Token(pool.Token0)
	t1, _ := m.Token(pool.Token1)
	return t0.Decimals, t1.Decimals
}

// PairLabel renders the quote as "A/B".
func (m Market) PairLabel() string {
	return m.TokenA.Label() + "/" + m.TokenB.Label()
}
