package model

import "github.com/ethereum/go-ethereum/common"

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
}

// Label returns the symbol, or the address when the token has none.
func (t TokenMeta) Label() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}
