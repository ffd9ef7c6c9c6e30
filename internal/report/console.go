package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/shopspring/decimal"

	"spreadwatch/internal/model"
)

// ConsoleSink prints a short human-readable block per cycle.
type ConsoleSink struct {
	mu     sync.Mutex
	out    io.Writer
	labelA string
	labelB string
	places int32
}

// NewConsoleSink writes to out, or stdout when out is nil. A negative places
// prints full precision.
func NewConsoleSink(out io.Writer, market model.Market, places int32) *ConsoleSink {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSink{
		out:    out,
		labelA: fmt.Sprintf("%s %s", market.PoolA.Kind, market.PoolA.Address.Hex()),
		labelB: fmt.Sprintf("%s %s", market.PoolB.Kind, market.PoolB.Address.Hex()),
		places: places,
	}
}

func (s *ConsoleSink) Name() string { return SinkConsole }

func (s *ConsoleSink) Write(_ context.Context, cycle model.Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.out, "---- block %d %s ----\n%s: %s\n%s: %s\ndiff: %s (%s bps)\n\n",
		cycle.BlockNumber, cycle.Pair,
		s.labelA, s.format(cycle.PriceA),
		s.labelB, s.format(cycle.PriceB),
		s.format(cycle.Diff), cycle.SpreadBps.StringFixed(2),
	)
	if err != nil {
		return fmt.Errorf("write console: %w", err)
	}
	return nil
}

func (s *ConsoleSink) format(d decimal.Decimal) string {
	if s.places < 0 {
		return d.String()
	}
	return d.StringFixed(s.places)
}
