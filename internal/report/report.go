package report

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"spreadwatch/internal/model"
)

// Sink receives completed cycles.
type Sink interface {
	Name() string
	Write(ctx context.Context, cycle model.Cycle) error
}

// Reporter fans every cycle out to its sinks. Sink errors are logged and
// never fail the cycle.
type Reporter struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewReporter builds a Reporter over sinks.
func NewReporter(logger *zap.Logger, sinks ...Sink) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{sinks: sinks, logger: logger}
}

// Report writes cycle to every sink in order.
func (r *Reporter) Report(ctx context.Context, cycle model.Cycle) {
	for _, sink := range r.sinks {
		if err := sink.Write(ctx, cycle); err != nil {
			r.logger.Warn("sink write failed",
				zap.String("sink", sink.Name()),
				zap.Uint64("block_number", cycle.BlockNumber),
				zap.Error(err),
			)
		}
	}
}

// Sink names accepted by Build.
const (
	SinkConsole = "console"
	SinkLog     = "log"
	SinkJSON    = "json"
	SinkWebhook = "webhook"
)

// Options configures the sinks built by Build.
type Options struct {
	Sinks         []string
	Market        model.Market
	DisplayPlaces int32
	WebhookURL    string
	AlertBps      string
}

// Build constructs the named sinks. Unknown names are an error.
func Build(opts Options, logger *zap.Logger) ([]Sink, error) {
	sinks := make([]Sink, 0, len(opts.Sinks))
	seen := make(map[string]struct{}, len(opts.Sinks))
	for _, raw := range opts.Sinks {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		switch name {
		case SinkConsole:
			sinks = append(sinks, NewConsoleSink(nil, opts.Market, opts.DisplayPlaces))
		case SinkLog:
			sinks = append(sinks, NewLogSink(logger))
		case SinkJSON:
			sinks = append(sinks, NewJSONSink(nil))
		case SinkWebhook:
			sink, err := NewWebhookSink(opts.WebhookURL, opts.AlertBps, nil)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink)
		default:
			return nil, fmt.Errorf("unknown sink %q", raw)
		}
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("at least one sink is required")
	}
	return sinks, nil
}
