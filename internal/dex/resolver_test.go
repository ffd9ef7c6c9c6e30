package dex

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"spreadwatch/internal/model"
)

var (
	daiAddr  = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	wethAddr = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	pairAddr = common.HexToAddress("0xc3d03e4f041fd4cd388c549ee2a29a9e5075882f")
	poolAddr = common.HexToAddress("0xc2e9f25be6257c210d7adf0d4cd6e3e881ba25f8")
)

// fakeCaller answers eth_call by target address and method selector.
type fakeCaller struct {
	mu        sync.Mutex
	responses map[string][]byte
	blocks    []*big.Int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: make(map[string][]byte)}
}

func callKey(to common.Address, selector []byte) string {
	return to.Hex() + ":" + hex.EncodeToString(selector)
}

func (f *fakeCaller) respond(t *testing.T, to common.Address, parsed abi.ABI, method string, outputs ...interface{}) {
	t.Helper()
	m, ok := parsed.Methods[method]
	if !ok {
		t.Fatalf("unknown method %s", method)
	}
	data, err := m.Outputs.Pack(outputs...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	f.mu.Lock()
	f.responses[callKey(to, m.ID)] = data
	f.mu.Unlock()
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("malformed call")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, blockNumber)
	resp, ok := f.responses[callKey(*msg.To, msg.Data[:4])]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return resp, nil
}

func mustABI(t *testing.T, get func() (abi.ABI, error)) abi.ABI {
	t.Helper()
	parsed, err := get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	return parsed
}

func seedToken(t *testing.T, caller *fakeCaller, token common.Address, decimals uint8, symbol, name string) {
	erc20 := mustABI(t, ERC20ABI)
	caller.respond(t, token, erc20, "decimals", decimals)
	caller.respond(t, token, erc20, "symbol", symbol)
	caller.respond(t, token, erc20, "name", name)
}

func seedMarket(t *testing.T, caller *fakeCaller) {
	caller.respond(t, SushiV2Factory, mustABI(t, V2FactoryABI), "getPair", pairAddr)
	caller.respond(t, UniswapV3Factory, mustABI(t, V3FactoryABI), "getPool", poolAddr)

	pairABI := mustABI(t, V2PairABI)
	caller.respond(t, pairAddr, pairABI, "token0", daiAddr)
	caller.respond(t, pairAddr, pairABI, "token1", wethAddr)

	poolABI := mustABI(t, V3PoolABI)
	caller.respond(t, poolAddr, poolABI, "token0", daiAddr)
	caller.respond(t, poolAddr, poolABI, "token1", wethAddr)
	caller.respond(t, poolAddr, poolABI, "fee", big.NewInt(3000))

	seedToken(t, caller, daiAddr, 18, "DAI", "Dai Stablecoin")
	seedToken(t, caller, wethAddr, 18, "WETH", "Wrapped Ether")
}

func defaultMarketConfig() MarketConfig {
	return MarketConfig{
		TokenA:    wethAddr,
		TokenB:    daiAddr,
		V2Factory: SushiV2Factory,
		V3Factory: UniswapV3Factory,
		FeeTier:   3000,
	}
}

func TestResolveMarket(t *testing.T) {
	caller := newFakeCaller()
	seedMarket(t, caller)

	market, err := ResolveMarket(context.Background(), caller, defaultMarketConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if market.PoolA.Address != pairAddr || market.PoolA.Kind != model.PoolKindConstantProduct {
		t.Fatalf("pool a mismatch: %+v", market.PoolA)
	}
	if market.PoolB.Address != poolAddr || market.PoolB.Kind != model.PoolKindConcentratedLiquidity {
		t.Fatalf("pool b mismatch: %+v", market.PoolB)
	}
	if market.PoolB.Fee != 3000 {
		t.Fatalf("fee mismatch: %d", market.PoolB.Fee)
	}
	if market.PoolA.Token0 != daiAddr || market.PoolA.Token1 != wethAddr {
		t.Fatalf("token order mismatch: %+v", market.PoolA)
	}
	if market.TokenA.Symbol != "WETH" || market.TokenB.Symbol != "DAI" {
		t.Fatalf("token meta mismatch: %+v %+v", market.TokenA, market.TokenB)
	}
	if market.PairLabel() != "WETH/DAI" {
		t.Fatalf("pair label mismatch: %s", market.PairLabel())
	}
}

func TestResolveMarketPoolNotFound(t *testing.T) {
	tests := []struct {
		name string
		kind model.PoolKind
		zero func(t *testing.T, caller *fakeCaller)
	}{
		{
			name: "pair",
			kind: model.PoolKindConstantProduct,
			zero: func(t *testing.T, caller *fakeCaller) {
				caller.respond(t, SushiV2Factory, mustABI(t, V2FactoryABI), "getPair", common.Address{})
			},
		},
		{
			name: "pool",
			kind: model.PoolKindConcentratedLiquidity,
			zero: func(t *testing.T, caller *fakeCaller) {
				caller.respond(t, UniswapV3Factory, mustABI(t, V3FactoryABI), "getPool", common.Address{})
			},
		},
	}

	for _, tt := range tests {
		caller := newFakeCaller()
		seedMarket(t, caller)
		tt.zero(t, caller)

		_, err := ResolveMarket(context.Background(), caller, defaultMarketConfig(), nil)
		var notFound *PoolNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("%s: expected PoolNotFoundError, got %v", tt.name, err)
		}
		if notFound.Kind != tt.kind {
			t.Fatalf("%s: kind mismatch: %s", tt.name, notFound.Kind)
		}
	}
}

func TestResolveMarketRejectsForeignPool(t *testing.T) {
	caller := newFakeCaller()
	seedMarket(t, caller)
	other := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	caller.respond(t, poolAddr, mustABI(t, V3PoolABI), "token1", other)

	if _, err := ResolveMarket(context.Background(), caller, defaultMarketConfig(), nil); err == nil {
		t.Fatalf("expected error for pool trading another pair")
	}
}

func TestResolveMarketRejectsFeeMismatch(t *testing.T) {
	caller := newFakeCaller()
	seedMarket(t, caller)
	caller.respond(t, poolAddr, mustABI(t, V3PoolABI), "fee", big.NewInt(500))

	if _, err := ResolveMarket(context.Background(), caller, defaultMarketConfig(), nil); err == nil {
		t.Fatalf("expected error for pool with another fee tier")
	}
}

func TestMarketConfigValidate(t *testing.T) {
	cfg := defaultMarketConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := cfg
	bad.FeeTier = 2500
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for fee tier 2500")
	}

	bad = cfg
	bad.TokenB = bad.TokenA
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for identical tokens")
	}

	bad = cfg
	bad.TokenA = common.Address{}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for missing token")
	}
}

func TestFetchTokenMetaBytes32Symbol(t *testing.T) {
	caller := newFakeCaller()
	mkr := common.HexToAddress("0x9f8f72aa9304c8b593d555f12ef6589cc3a579a2")
	erc20 := mustABI(t, ERC20ABI)
	bytes32ABI := mustABI(t, erc20ABIBytes32.get)

	var symbol, name [32]byte
	copy(symbol[:], "MKR")
	copy(name[:], "Maker")
	caller.respond(t, mkr, erc20, "decimals", uint8(18))
	caller.respond(t, mkr, bytes32ABI, "symbol", symbol)
	caller.respond(t, mkr, bytes32ABI, "name", name)

	meta, err := FetchTokenMeta(context.Background(), caller, mkr, zap.NewNop())
	if err != nil {
		t.Fatalf("fetch token meta: %v", err)
	}
	if meta.Symbol != "MKR" || meta.Name != "Maker" || meta.Decimals != 18 {
		t.Fatalf("token meta mismatch: %+v", meta)
	}
}
