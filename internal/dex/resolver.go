package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"spreadwatch/internal/model"
)

// Mainnet factories used by default.
var (
	SushiV2Factory   = common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac")
	UniswapV3Factory = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
)

// ValidFeeTiers lists the fee tiers deployed by the Uniswap V3 factory.
var ValidFeeTiers = []uint32{100, 500, 3000, 10000}

// MarketConfig selects the pair and the factories to resolve it against.
type MarketConfig struct {
	TokenA    common.Address
	TokenB    common.Address
	V2Factory common.Address
	V3Factory common.Address
	FeeTier   uint32
}

// Validate checks the pair and fee tier.
func (c MarketConfig) Validate() error {
	if c.TokenA == (common.Address{}) || c.TokenB == (common.Address{}) {
		return fmt.Errorf("token a and token b are required")
	}
	if c.TokenA == c.TokenB {
		return fmt.Errorf("token a and token b must differ")
	}
	if c.V2Factory == (common.Address{}) || c.V3Factory == (common.Address{}) {
		return fmt.Errorf("factory addresses are required")
	}
	for _, fee := range ValidFeeTiers {
		if c.FeeTier == fee {
			return nil
		}
	}
	return fmt.Errorf("unsupported fee tier %d", c.FeeTier)
}

// ResolveMarket looks up both pools for the pair, reads their token order,
// and loads token metadata. It runs once at startup; any error is fatal.
func ResolveMarket(ctx context.Context, caller ContractCaller, cfg MarketConfig, logger *zap.Logger) (model.Market, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return model.Market{}, err
	}

	factoryV2, err := V2FactoryABI()
	if err != nil {
		return model.Market{}, fmt.Errorf("parse v2 factory abi: %w", err)
	}
	factoryV3, err := V3FactoryABI()
	if err != nil {
		return model.Market{}, fmt.Errorf("parse v3 factory abi: %w", err)
	}

	pairAddr, err := lookupPool(ctx, caller, cfg.V2Factory, factoryV2, "getPair", cfg.TokenA, cfg.TokenB)
	if err != nil {
		return model.Market{}, err
	}
	if pairAddr == (common.Address{}) {
		return model.Market{}, &PoolNotFoundError{
			Kind:    model.PoolKindConstantProduct,
			Factory: cfg.V2Factory,
			TokenA:  cfg.TokenA,
			TokenB:  cfg.TokenB,
		}
	}

	poolAddr, err := lookupPool(ctx, caller, cfg.V3Factory, factoryV3, "getPool", cfg.TokenA, cfg.TokenB, feeArg(cfg.FeeTier))
	if err != nil {
		return model.Market{}, err
	}
	if poolAddr == (common.Address{}) {
		return model.Market{}, &PoolNotFoundError{
			Kind:    model.PoolKindConcentratedLiquidity,
			Factory: cfg.V3Factory,
			TokenA:  cfg.TokenA,
			TokenB:  cfg.TokenB,
			Fee:     cfg.FeeTier,
		}
	}

	pairABI, err := V2PairABI()
	if err != nil {
		return model.Market{}, fmt.Errorf("parse pair abi: %w", err)
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.Market{}, fmt.Errorf("parse pool abi: %w", err)
	}

	poolA, err := loadIdentity(ctx, caller, pairAddr, pairABI, model.PoolKindConstantProduct, cfg)
	if err != nil {
		return model.Market{}, err
	}
	poolB, err := loadIdentity(ctx, caller, poolAddr, poolABI, model.PoolKindConcentratedLiquidity, cfg)
	if err != nil {
		return model.Market{}, err
	}
	poolB.Fee, err = loadFee(ctx, caller, poolAddr, poolABI)
	if err != nil {
		return model.Market{}, err
	}
	if poolB.Fee != cfg.FeeTier {
		return model.Market{}, fmt.Errorf("pool %s has fee %d, expected %d", poolAddr.Hex(), poolB.Fee, cfg.FeeTier)
	}

	tokenA, err := FetchTokenMeta(ctx, caller, cfg.TokenA, logger)
	if err != nil {
		return model.Market{}, fmt.Errorf("token a metadata: %w", err)
	}
	tokenB, err := FetchTokenMeta(ctx, caller, cfg.TokenB, logger)
	if err != nil {
		return model.Market{}, fmt.Errorf("token b metadata: %w", err)
	}

	market := model.Market{
		TokenA: tokenA,
		TokenB: tokenB,
		PoolA:  poolA,
		PoolB:  poolB,
	}

	logger.Info("market resolved",
		zap.String("pair", market.PairLabel()),
		zap.String("pool_a", poolA.Address.Hex()),
		zap.String("pool_b", poolB.Address.Hex()),
		zap.Uint32("fee_tier", cfg.FeeTier),
		zap.Uint8("decimals_a", tokenA.Decimals),
		zap.Uint8("decimals_b", tokenB.Decimals),
	)

	return market, nil
}

func lookupPool(ctx context.Context, caller ContractCaller, factory common.Address, parsed abi.ABI, method string, args ...interface{}) (common.Address, error) {
	values, err := callMethod(ctx, caller, factory, parsed, method, nil, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", method, err)
	}
	return addr, nil
}

// feeArg packs as uint24, which go-ethereum represents as *big.Int.
func feeArg(fee uint32) *big.Int {
	return new(big.Int).SetUint64(uint64(fee))
}

func loadFee(ctx context.Context, caller ContractCaller, pool common.Address, parsed abi.ABI) (uint32, error) {
	values, err := callMethod(ctx, caller, pool, parsed, "fee", nil)
	if err != nil {
		return 0, err
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return 0, fmt.Errorf("fee: %w", err)
	}
	if !fee.IsUint64() || fee.Uint64() > 1<<24-1 {
		return 0, fmt.Errorf("fee: uint24 overflow: %s", fee)
	}
	return uint32(fee.Uint64()), nil
}

// loadIdentity reads token0/token1 and checks the pool trades the configured pair.
func loadIdentity(ctx context.Context, caller ContractCaller, pool common.Address, parsed abi.ABI, kind model.PoolKind, cfg MarketConfig) (model.PoolIdentity, error) {
	values, err := callMethod(ctx, caller, pool, parsed, "token0", nil)
	if err != nil {
		return model.PoolIdentity{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return model.PoolIdentity{}, fmt.Errorf("token0: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, parsed, "token1", nil)
	if err != nil {
		return model.PoolIdentity{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return model.PoolIdentity{}, fmt.Errorf("token1: %w", err)
	}

	sameOrder := token0 == cfg.TokenA && token1 == cfg.TokenB
	swapped := token0 == cfg.TokenB && token1 == cfg.TokenA
	if !sameOrder && !swapped {
		return model.PoolIdentity{}, fmt.Errorf("pool %s trades %s/%s, not the configured pair", pool.Hex(), token0.Hex(), token1.Hex())
	}

	return model.PoolIdentity{
		Kind:    kind,
		Address: pool,
		Token0:  token0,
		Token1:  token1,
	}, nil
}
