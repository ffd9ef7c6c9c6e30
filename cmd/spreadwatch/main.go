package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"spreadwatch/internal/chain"
	"spreadwatch/internal/config"
	"spreadwatch/internal/dex"
	"spreadwatch/internal/metrics"
	"spreadwatch/internal/model"
	"spreadwatch/internal/monitor"
	"spreadwatch/internal/pricing"
	"spreadwatch/internal/report"
)

func main() {
	root := &cobra.Command{
		Use:          "spreadwatch",
		Short:        "Per-block price discrepancy between a V2 pair and a V3 pool",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", "", "dotenv file path (default ./.env if present)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Follow new heads and report the discrepancy on every block",
		RunE:  runMonitor,
	}
	addMarketFlags(runCmd.Flags())
	addReportFlags(runCmd.Flags())
	runCmd.Flags().Duration("fetch-timeout", 10*time.Second, "timeout per state read")
	runCmd.Flags().Int("max-retries", 2, "retries per state read")
	runCmd.Flags().Duration("retry-backoff", 250*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Int("reconnect-attempts", 5, "head resubscribe attempts before giving up")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	root.AddCommand(runCmd)

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Report the discrepancy for one block and exit",
		RunE:  runSnapshot,
	}
	addMarketFlags(snapshotCmd.Flags())
	addReportFlags(snapshotCmd.Flags())
	snapshotCmd.Flags().Uint64("block", 0, "block number, 0 means latest")
	snapshotCmd.Flags().Duration("fetch-timeout", 10*time.Second, "timeout per state read")
	root.AddCommand(snapshotCmd)

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve both pools and token metadata, print them and exit",
		RunE:  runResolve,
	}
	addMarketFlags(resolveCmd.Flags())
	root.AddCommand(resolveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addMarketFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "Ethereum RPC URL (ws:// or ipc for run)")
	flags.String("token-a", config.DefaultTokenA, "quoted token (prices are token B per token A)")
	flags.String("token-b", config.DefaultTokenB, "quote token")
	flags.String("v2-factory", dex.SushiV2Factory.Hex(), "constant-product factory")
	flags.String("v3-factory", dex.UniswapV3Factory.Hex(), "concentrated-liquidity factory")
	flags.Uint32("fee-tier", config.DefaultFee, "V3 fee tier (100, 500, 3000, 10000)")
	flags.Int32("precision", pricing.DefaultDigits, "significant digits for price math")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addReportFlags(flags *pflag.FlagSet) {
	flags.StringSlice("sink", []string{report.SinkConsole}, "report sinks (console, log, json, webhook)")
	flags.String("webhook-url", "", "webhook URL for the webhook sink")
	flags.String("alert-threshold-bps", "", "post to the webhook only when the spread reaches this many bps")
	flags.Int32("display-places", 6, "decimal places on the console, -1 for full precision")
}

type session struct {
	cfg    config.Config
	logger *zap.Logger
	client *chain.Client
	market model.Market
	engine pricing.Engine
}

func (s *session) close() {
	if s.client != nil {
		s.client.Close()
	}
	_ = s.logger.Sync()
}

// open loads configuration, connects, and resolves the market.
func open(ctx context.Context, cmd *cobra.Command) (*session, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger}

	if err := cfg.Validate(); err != nil {
		s.close()
		return nil, err
	}
	marketCfg, err := cfg.Market()
	if err != nil {
		s.close()
		return nil, err
	}
	s.engine, err = pricing.NewEngine(cfg.Precision)
	if err != nil {
		s.close()
		return nil, err
	}

	s.client, err = chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		s.close()
		return nil, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	s.market, err = dex.ResolveMarket(ctx, s.client, marketCfg, logger)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("resolve market: %w", err)
	}
	s.market.ChainID = chainID.Uint64()

	return s, nil
}

func (s *session) reporter() (*report.Reporter, error) {
	sinks, err := report.Build(report.Options{
		Sinks:         s.cfg.Sinks,
		Market:        s.market,
		DisplayPlaces: s.cfg.DisplayPlaces,
		WebhookURL:    s.cfg.WebhookURL,
		AlertBps:      s.cfg.AlertThresholdBps,
	}, s.logger)
	if err != nil {
		return nil, err
	}
	return report.NewReporter(s.logger, sinks...), nil
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	reporter, err := s.reporter()
	if err != nil {
		return err
	}

	var recorder monitor.Metrics
	if s.cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := metrics.NewMonitor(reg)
		if err != nil {
			return err
		}
		recorder = m
		go func() {
			if err := metrics.Serve(ctx, s.cfg.MetricsAddr, reg, s.logger); err != nil {
				s.logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	mon, err := monitor.New(s.cfg.Monitor(), s.market, s.client, dex.NewStateReader(s.client), s.engine, reporter, recorder, s.logger)
	if err != nil {
		return err
	}

	s.logger.Info("monitor start",
		zap.Uint64("chain_id", s.market.ChainID),
		zap.String("pair", s.market.PairLabel()),
		zap.Strings("sinks", s.cfg.Sinks),
		zap.Int32("precision", s.engine.Digits()),
		zap.Duration("fetch_timeout", s.cfg.FetchTimeout),
		zap.Int("reconnect_attempts", s.cfg.ReconnectAttempts),
	)

	err = mon.Run(ctx)
	var lost *monitor.SubscriptionLostError
	if errors.As(err, &lost) {
		s.logger.Error("giving up on head subscription", zap.Int("attempts", lost.Attempts), zap.Error(lost.Err))
	}
	return err
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	reporter, err := s.reporter()
	if err != nil {
		return err
	}

	var number *big.Int
	if block, _ := cmd.Flags().GetUint64("block"); block > 0 {
		number = new(big.Int).SetUint64(block)
	}
	head, err := s.client.HeaderByNumber(ctx, number)
	if err != nil {
		return fmt.Errorf("get header: %w", err)
	}

	mon, err := monitor.New(s.cfg.Monitor(), s.market, nil, dex.NewStateReader(s.client), s.engine, reporter, nil, s.logger)
	if err != nil {
		return err
	}
	if _, err := mon.RunCycle(ctx, head); err != nil {
		return fmt.Errorf("block %d: %w", head.Number.Uint64(), err)
	}
	return nil
}

func runResolve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	out, err := json.MarshalIndent(s.market, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal market: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
