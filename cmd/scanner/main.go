package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"arbscope/internal/cache"
	"arbscope/internal/chain"
	"arbscope/internal/config"
	"arbscope/internal/fetch"
	"arbscope/internal/registry"
	"arbscope/internal/scan"
	"arbscope/internal/search"
	"arbscope/internal/storage"
	"arbscope/internal/storage/postgres"
	"arbscope/internal/validate"
)

func main() {
	root := &cobra.Command{
		Use:          "scanner",
		Short:        "On-chain arbitrage scanner",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scan loop",
		RunE:  runScanner,
	}
	addScanFlags(runCmd)
	root.AddCommand(runCmd)

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan and print the result",
		RunE:  runOnce,
	}
	addScanFlags(scanCmd)
	root.AddCommand(scanCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "JSON-RPC URL")
	cmd.Flags().String("registry", "./registry.json", "asset and venue registry path")
	cmd.Flags().Duration("tick-interval", 3*time.Second, "time between scan starts")
	cmd.Flags().Duration("scan-budget", 2*time.Second, "wall-clock budget per scan")
	cmd.Flags().Int("batch-size-limit", 200, "max contract reads per round trip")
	cmd.Flags().Uint64("discovery-interval", 10, "scans between structural rediscovery")
	cmd.Flags().Float64("probe-notional", 1000, "stable probe trade size (human units)")
	cmd.Flags().Duration("structural-ttl", 5*time.Minute, "structural state freshness window")
	cmd.Flags().Duration("derived-ttl", 60*time.Second, "derived state freshness window")
	cmd.Flags().StringSlice("base-assets", nil, "cycle base asset addresses (comma-separated)")
	cmd.Flags().Int("max-hops", 4, "max legs per cycle")
	cmd.Flags().Float64("notional", 10_000, "candidate trade size in value units")
	cmd.Flags().Float64("min-cycle-margin-bps", 20, "minimum net cycle margin")
	cmd.Flags().Float64("min-nav-discount-bps", 50, "minimum share discount below fair value")
	cmd.Flags().Float64("gas-allowance-bps", 10, "flat gas allowance")
	cmd.Flags().Float64("gas-price-gwei", 0, "gas price for allowance derivation (0 uses the flat allowance)")
	cmd.Flags().Float64("native-price", 0, "native token price in value units, for allowance derivation")
	cmd.Flags().Float64("min-venue-liquidity", 50_000, "venue depth floor (human units)")
	cmd.Flags().Float64("max-trade-fraction", 0.10, "max share of venue depth per leg")
	cmd.Flags().Float64("quote-tolerance-bps", 5, "allowed re-quote deviation")
	cmd.Flags().Float64("growth-factor-min", 1.0, "plausible growth factor lower bound")
	cmd.Flags().Float64("growth-factor-max", 1.5, "plausible growth factor upper bound")
	cmd.Flags().Bool("supply-action-enabled", false, "emit premium-side gap opportunities")
	cmd.Flags().String("out", "./data/opportunities.jsonl", "output JSONL path")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runScanner(cmd *cobra.Command, _ []string) error {
	scanner, logger, cleanup, err := buildScanner(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = scanner.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func runOnce(cmd *cobra.Command, _ []string) error {
	scanner, logger, cleanup, err := buildScanner(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := scanner.ScanOnce(ctx)
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func buildScanner(cmd *cobra.Command) (*scan.Scanner, *zap.Logger, func(), error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}

	baseAssets, err := parseAddresses(cfg.BaseAssets)
	if err != nil {
		return nil, nil, nil, err
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect rpc: %w", err)
	}

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		chainClient.Close()
		return nil, nil, nil, fmt.Errorf("query chain id: %w", err)
	}
	head, err := chainClient.LatestBlockNumber(ctx)
	if err != nil {
		chainClient.Close()
		return nil, nil, nil, fmt.Errorf("query head block: %w", err)
	}

	stateCache := cache.New(cache.Config{
		StructuralTTL: cfg.StructuralTTL,
		DerivedTTL:    cfg.DerivedTTL,
	})

	fetcher, err := fetch.New(fetch.Config{
		BatchLimit:        cfg.BatchSizeLimit,
		DiscoveryInterval: cfg.DiscoveryInterval,
		Timeout:           cfg.ScanBudget,
		ProbeNotional:     cfg.ProbeNotional,
	}, chainClient, stateCache, reg, logger)
	if err != nil {
		chainClient.Close()
		return nil, nil, nil, err
	}

	gasBps := cfg.GasAllowanceBps
	if cfg.GasPriceGwei > 0 && cfg.NativePrice > 0 {
		gasBps = search.DeriveAllowanceBps(cfg.MaxHops, cfg.GasPriceGwei, cfg.NativePrice, cfg.Notional)
	}

	searcher := search.NewSearcher(search.Config{
		BaseAssets:        baseAssets,
		MaxHops:           cfg.MaxHops,
		MinMarginBps:      cfg.MinCycleMarginBps,
		GasBps:            gasBps,
		Notional:          cfg.Notional,
		MinVenueLiquidity: cfg.MinVenueLiquidity,
		MaxTradeFraction:  cfg.MaxTradeFraction,
	}, logger)

	validator := validate.New(validate.Config{
		QuoteToleranceBps: cfg.QuoteToleranceBps,
		GrowthFactorMin:   cfg.GrowthFactorMin,
		GrowthFactorMax:   cfg.GrowthFactorMax,
		MinVenueLiquidity: cfg.MinVenueLiquidity,
		MaxTradeFraction:  cfg.MaxTradeFraction,
	}, logger)

	var sinks []storage.Sink
	var pgStore *postgres.Store
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlSink(cfg.Out))
	}
	if cfg.PGDSN != "" {
		pgStore, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			chainClient.Close()
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		sinks = append(sinks, pgStore)
	}

	scanner := scan.New(scan.Options{
		TickInterval: cfg.TickInterval,
		Budget:       cfg.ScanBudget,
		Nav: search.NavConfig{
			MinDiscountBps:      cfg.MinNavDiscountBps,
			GasBps:              gasBps,
			SupplyActionEnabled: cfg.SupplyActionEnabled,
		},
	}, fetcher, stateCache, reg, searcher, validator, sinks, logger)

	// SIGHUP reloads the registry without restarting the loop.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := reg.Reload(); err != nil {
				logger.Warn("registry reload failed", zap.Error(err))
				continue
			}
			logger.Info("registry reloaded", zap.Int("venues", len(reg.Venues())))
		}
	}()

	cleanup := func() {
		signal.Stop(hup)
		close(hup)
		chainClient.Close()
		if pgStore != nil {
			pgStore.Close()
		}
	}

	logger.Info("scanner start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.Uint64("head", head),
		zap.String("registry", cfg.RegistryPath),
		zap.Duration("tick_interval", cfg.TickInterval),
		zap.Duration("scan_budget", cfg.ScanBudget),
		zap.Int("base_assets", len(baseAssets)),
		zap.Int("venues", len(reg.Venues())),
	)

	return scanner, logger, cleanup, nil
}

func parseAddresses(raw []string) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(raw))
	for _, item := range raw {
		if !common.IsHexAddress(item) {
			return nil, fmt.Errorf("invalid address %q", item)
		}
		addrs = append(addrs, common.HexToAddress(item))
	}
	return addrs, nil
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
