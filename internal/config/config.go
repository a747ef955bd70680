package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	RegistryPath string

	TickInterval      time.Duration
	ScanBudget        time.Duration
	BatchSizeLimit    int
	DiscoveryInterval uint64
	ProbeNotional     float64

	StructuralTTL time.Duration
	DerivedTTL    time.Duration

	BaseAssets        []string
	MaxHops           int
	Notional          float64
	MinCycleMarginBps float64
	MinNavDiscountBps float64
	GasAllowanceBps   float64
	GasPriceGwei      float64
	NativePrice       float64
	MinVenueLiquidity float64
	MaxTradeFraction  float64

	QuoteToleranceBps float64
	GrowthFactorMin   float64
	GrowthFactorMax   float64

	SupplyActionEnabled bool

	Out      string
	PGDSN    string
	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARBSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("registry", "./registry.json")
	v.SetDefault("tick-interval", 3*time.Second)
	v.SetDefault("scan-budget", 2*time.Second)
	v.SetDefault("batch-size-limit", 200)
	v.SetDefault("discovery-interval", uint64(10))
	v.SetDefault("probe-notional", 1000.0)
	v.SetDefault("structural-ttl", 5*time.Minute)
	v.SetDefault("derived-ttl", 60*time.Second)
	v.SetDefault("max-hops", 4)
	v.SetDefault("notional", 10_000.0)
	v.SetDefault("min-cycle-margin-bps", 20.0)
	v.SetDefault("min-nav-discount-bps", 50.0)
	v.SetDefault("gas-allowance-bps", 10.0)
	v.SetDefault("min-venue-liquidity", 50_000.0)
	v.SetDefault("max-trade-fraction", 0.10)
	v.SetDefault("quote-tolerance-bps", 5.0)
	v.SetDefault("growth-factor-min", 1.0)
	v.SetDefault("growth-factor-max", 1.5)
	v.SetDefault("supply-action-enabled", false)
	v.SetDefault("out", "./data/opportunities.jsonl")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:              v.GetString("rpc"),
		RegistryPath:        v.GetString("registry"),
		TickInterval:        v.GetDuration("tick-interval"),
		ScanBudget:          v.GetDuration("scan-budget"),
		BatchSizeLimit:      v.GetInt("batch-size-limit"),
		DiscoveryInterval:   v.GetUint64("discovery-interval"),
		ProbeNotional:       v.GetFloat64("probe-notional"),
		StructuralTTL:       v.GetDuration("structural-ttl"),
		DerivedTTL:          v.GetDuration("derived-ttl"),
		BaseAssets:          getStringSlice(v, "base-assets"),
		MaxHops:             v.GetInt("max-hops"),
		Notional:            v.GetFloat64("notional"),
		MinCycleMarginBps:   v.GetFloat64("min-cycle-margin-bps"),
		MinNavDiscountBps:   v.GetFloat64("min-nav-discount-bps"),
		GasAllowanceBps:     v.GetFloat64("gas-allowance-bps"),
		GasPriceGwei:        v.GetFloat64("gas-price-gwei"),
		NativePrice:         v.GetFloat64("native-price"),
		MinVenueLiquidity:   v.GetFloat64("min-venue-liquidity"),
		MaxTradeFraction:    v.GetFloat64("max-trade-fraction"),
		QuoteToleranceBps:   v.GetFloat64("quote-tolerance-bps"),
		GrowthFactorMin:     v.GetFloat64("growth-factor-min"),
		GrowthFactorMax:     v.GetFloat64("growth-factor-max"),
		SupplyActionEnabled: v.GetBool("supply-action-enabled"),
		Out:                 v.GetString("out"),
		PGDSN:               v.GetString("pg-dsn"),
		LogLevel:            v.GetString("log-level"),
	}

	if cfg.RPCURL == "" {
		return Config{}, fmt.Errorf("rpc url is required")
	}
	if len(cfg.BaseAssets) == 0 {
		return Config{}, fmt.Errorf("at least one base asset is required")
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
