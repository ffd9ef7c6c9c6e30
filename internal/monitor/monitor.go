package monitor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spreadwatch/internal/model"
	"spreadwatch/internal/pricing"
)

const headBuffer = 16

// Config holds runtime settings for the monitor.
type Config struct {
	FetchTimeout       time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
	ReconnectAttempts  int
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	DedupeSize         int
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:       10 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       250 * time.Millisecond,
		ReconnectAttempts:  5,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		DedupeSize:         256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.ReconnectAttempts < 0 {
		c.ReconnectAttempts = 0
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = d.ReconnectBaseDelay
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		c.ReconnectMaxDelay = c.ReconnectBaseDelay
	}
	if c.DedupeSize <= 0 {
		c.DedupeSize = d.DedupeSize
	}
	return c
}

// HeadSource delivers new chain heads. *chain.Client satisfies it.
type HeadSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// StateFetcher reads pool state pinned to a block. *dex.StateReader satisfies it.
type StateFetcher interface {
	FetchReserves(ctx context.Context, pool common.Address, block *big.Int) (model.PoolReserves, error)
	FetchSqrtPrice(ctx context.Context, pool common.Address, block *big.Int) (model.SqrtPriceState, error)
}

// Reporter receives every completed cycle.
type Reporter interface {
	Report(ctx context.Context, cycle model.Cycle)
}

// Metrics records cycle outcomes. *metrics.Monitor satisfies it.
type Metrics interface {
	CycleCompleted(cycle model.Cycle, elapsed time.Duration)
	CycleFailed(reason string, elapsed time.Duration)
	CycleSkipped(reason string)
	Resubscribed()
}

type nopMetrics struct{}

func (nopMetrics) CycleCompleted(model.Cycle, time.Duration) {}
func (nopMetrics) CycleFailed(string, time.Duration)         {}
func (nopMetrics) CycleSkipped(string)                       {}
func (nopMetrics) Resubscribed()                             {}

type nopReporter struct{}

func (nopReporter) Report(context.Context, model.Cycle) {}

// Monitor prices both pools of a market on every new head and reports the
// discrepancy.
type Monitor struct {
	cfg      Config
	market   model.Market
	heads    HeadSource
	fetcher  StateFetcher
	engine   pricing.Engine
	reporter Reporter
	metrics  Metrics
	logger   *zap.Logger
	seen     *lru.Cache[common.Hash, struct{}]
	dirA     pricing.Direction
	dirB     pricing.Direction
	now      func() time.Time
}

// New builds a Monitor. reporter, metrics and logger may be nil.
func New(cfg Config, market model.Market, heads HeadSource, fetcher StateFetcher, engine pricing.Engine, reporter Reporter, metrics Metrics, logger *zap.Logger) (*Monitor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("state fetcher is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	cfg = cfg.withDefaults()

	seen, err := lru.New[common.Hash, struct{}](cfg.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("create head cache: %w", err)
	}

	return &Monitor{
		cfg:      cfg,
		market:   market,
		heads:    heads,
		fetcher:  fetcher,
		engine:   engine,
		reporter: reporter,
		metrics:  metrics,
		logger:   logger,
		seen:     seen,
		dirA:     pricing.Orientation(market.TokenA.Address, market.PoolA.Token0),
		dirB:     pricing.Orientation(market.TokenA.Address, market.PoolB.Token0),
		now:      time.Now,
	}, nil
}

// Run follows new heads until ctx is cancelled. Cycles run one at a time in
// arrival order; heads that arrive while a cycle is running are coalesced to
// the latest. It returns nil on cancellation and *SubscriptionLostError when
// the subscription cannot be re-established.
func (m *Monitor) Run(ctx context.Context) error {
	if m.heads == nil {
		return fmt.Errorf("head source is nil")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pending := newPendingHead()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.work(ctx, pending)
	}()

	err := m.receive(ctx, pending)
	cancel()
	wg.Wait()
	return err
}

func (m *Monitor) receive(ctx context.Context, pending *pendingHead) error {
	attempt := 0
	for {
		err := m.follow(ctx, pending, &attempt)
		if ctx.Err() != nil {
			return nil
		}
		if attempt >= m.cfg.ReconnectAttempts {
			return &SubscriptionLostError{Attempts: attempt, Err: err}
		}

		delay := reconnectDelay(attempt, m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay)
		attempt++
		m.logger.Warn("head subscription lost, resubscribing",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

// follow consumes one subscription until it fails. A delivered head resets
// the reconnect attempt counter.
func (m *Monitor) follow(ctx context.Context, pending *pendingHead, attempt *int) error {
	ch := make(chan *types.Header, headBuffer)
	sub, err := m.heads.SubscribeNewHead(ctx, ch)
	if err != nil {
		return fmt.Errorf("subscribe new heads: %w", err)
	}
	defer sub.Unsubscribe()

	if *attempt > 0 {
		m.metrics.Resubscribed()
		m.logger.Info("head subscription restored", zap.Int("attempt", *attempt))
	} else {
		m.logger.Info("head subscription started", zap.String("pair", m.market.PairLabel()))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			// heads delivered before the failure are still queued
			for drained := false; !drained; {
				select {
				case head := <-ch:
					m.enqueue(head, pending, attempt)
				default:
					drained = true
				}
			}
			if err == nil {
				err = errSubscriptionClosed
			}
			return err
		case head := <-ch:
			m.enqueue(head, pending, attempt)
		}
	}
}

func (m *Monitor) enqueue(head *types.Header, pending *pendingHead, attempt *int) {
	if head == nil || head.Number == nil {
		return
	}
	*attempt = 0
	if replaced := pending.put(head); replaced != nil {
		m.metrics.CycleSkipped("coalesced")
		m.logger.Debug("head coalesced",
			zap.Uint64("dropped_block", replaced.Number.Uint64()),
			zap.Uint64("block_number", head.Number.Uint64()),
		)
	}
}

func (m *Monitor) work(ctx context.Context, pending *pendingHead) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-pending.ready:
			head := pending.take()
			if head == nil {
				continue
			}
			m.process(ctx, head)
		}
	}
}

func (m *Monitor) process(ctx context.Context, head *types.Header) {
	if found, _ := m.seen.ContainsOrAdd(head.Hash(), struct{}{}); found {
		m.metrics.CycleSkipped("duplicate")
		m.logger.Debug("head already processed", zap.Uint64("block_number", head.Number.Uint64()))
		return
	}

	if _, err := m.RunCycle(ctx, head); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("cycle failed", zap.Uint64("block_number", head.Number.Uint64()), zap.Error(err))
	}
}

// RunCycle prices both pools at head, reports the result and returns it.
// Errors abandon only this cycle.
func (m *Monitor) RunCycle(ctx context.Context, head *types.Header) (model.Cycle, error) {
	if head == nil || head.Number == nil {
		return model.Cycle{}, fmt.Errorf("head has no block number")
	}

	start := m.now()
	cycle, err := m.evaluate(ctx, head)
	elapsed := m.now().Sub(start)
	if err != nil {
		if ctx.Err() == nil {
			m.metrics.CycleFailed(failureReason(err), elapsed)
		}
		return model.Cycle{}, err
	}

	m.metrics.CycleCompleted(cycle, elapsed)
	m.reporter.Report(ctx, cycle)
	return cycle, nil
}

func (m *Monitor) evaluate(ctx context.Context, head *types.Header) (model.Cycle, error) {
	block := new(big.Int).Set(head.Number)
	blockNumber := block.Uint64()

	var (
		reserves model.PoolReserves
		slot0    model.SqrtPriceState
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.fetch(gctx, "getReserves", blockNumber, func(ctx context.Context) error {
			var err error
			reserves, err = m.fetcher.FetchReserves(ctx, m.market.PoolA.Address, block)
			return err
		})
	})
	g.Go(func() error {
		return m.fetch(gctx, "slot0", blockNumber, func(ctx context.Context) error {
			var err error
			slot0, err = m.fetcher.FetchSqrtPrice(ctx, m.market.PoolB.Address, block)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return model.Cycle{}, err
	}

	d0, d1 := m.market.Decimals(m.market.PoolA)
	ratioA, err := pricing.ReserveRatio(reserves.Reserve0, reserves.Reserve1, d0, d1)
	if err != nil {
		return model.Cycle{}, fmt.Errorf("price pool a: %w", err)
	}
	priceA, err := m.engine.Quote(ratioA, m.dirA)
	if err != nil {
		return model.Cycle{}, fmt.Errorf("price pool a: %w", err)
	}

	d0, d1 = m.market.Decimals(m.market.PoolB)
	ratioB, err := pricing.SqrtPriceRatio(slot0.SqrtPriceX96, d0, d1)
	if err != nil {
		return model.Cycle{}, fmt.Errorf("price pool b: %w", err)
	}
	priceB, err := m.engine.Quote(ratioB, m.dirB)
	if err != nil {
		return model.Cycle{}, fmt.Errorf("price pool b: %w", err)
	}

	return model.Cycle{
		BlockNumber: blockNumber,
		BlockHash:   head.Hash(),
		Pair:        m.market.PairLabel(),
		PriceA:      priceA,
		PriceB:      priceB,
		Diff:        pricing.Diff(priceA, priceB),
		SpreadBps:   pricing.SpreadBps(priceA, priceB),
		ObservedAt:  m.now().UTC(),
	}, nil
}

// fetch runs fn with a per-attempt timeout and bounded retry.
func (m *Monitor) fetch(ctx context.Context, op string, blockNumber uint64, fn func(context.Context) error) error {
	return withRetry(ctx, m.cfg.MaxRetries, m.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		err = classifyRPCError(ctx, op, m.cfg.FetchTimeout, err)
		if ctx.Err() == nil {
			m.logger.Warn("state fetch failed", zap.String("op", op), zap.Uint64("block_number", blockNumber), zap.Error(err))
		}
		return err
	})
}
