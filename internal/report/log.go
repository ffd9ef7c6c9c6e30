package report

import (
	"context"

	"go.uber.org/zap"

	"spreadwatch/internal/model"
)

// LogSink emits one structured log entry per cycle.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return SinkLog }

func (s *LogSink) Write(_ context.Context, cycle model.Cycle) error {
	s.logger.Info("price discrepancy",
		zap.Uint64("block_number", cycle.BlockNumber),
		zap.String("block_hash", cycle.BlockHash.Hex()),
		zap.String("pair", cycle.Pair),
		zap.Stringer("price_a", cycle.PriceA),
		zap.Stringer("price_b", cycle.PriceB),
		zap.Stringer("diff", cycle.Diff),
		zap.Stringer("spread_bps", cycle.SpreadBps),
	)
	return nil
}
