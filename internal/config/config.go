package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"spreadwatch/internal/dex"
	"spreadwatch/internal/monitor"
	"spreadwatch/internal/pricing"
)

// Defaults for the mainnet WETH/DAI market.
const (
	DefaultTokenA = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	DefaultTokenB = "0x6b175474e89094c44da98b954eedeac495271d0f"
	DefaultFee    = uint32(3000)
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL            string
	TokenA            string
	TokenB            string
	V2Factory         string
	V3Factory         string
	FeeTier           uint32
	Sinks             []string
	WebhookURL        string
	AlertThresholdBps string
	Precision         int32
	DisplayPlaces     int32
	FetchTimeout      time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	ReconnectAttempts int
	MetricsAddr       string
	LogLevel          string
}

// LoadDotEnv exports variables from a dotenv file without overriding the
// environment. A missing default .env is not an error.
func LoadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPREADWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := monitor.DefaultConfig()
	v.SetDefault("token-a", DefaultTokenA)
	v.SetDefault("token-b", DefaultTokenB)
	v.SetDefault("v2-factory", dex.SushiV2Factory.Hex())
	v.SetDefault("v3-factory", dex.UniswapV3Factory.Hex())
	v.SetDefault("fee-tier", DefaultFee)
	v.SetDefault("sink", []string{"console"})
	v.SetDefault("precision", pricing.DefaultDigits)
	v.SetDefault("display-places", 6)
	v.SetDefault("fetch-timeout", defaults.FetchTimeout)
	v.SetDefault("max-retries", defaults.MaxRetries)
	v.SetDefault("retry-backoff", defaults.RetryBackoff)
	v.SetDefault("reconnect-attempts", defaults.ReconnectAttempts)
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
		v.SetConfigName("spreadwatch")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		TokenA:            v.GetString("token-a"),
		TokenB:            v.GetString("token-b"),
		V2Factory:         v.GetString("v2-factory"),
		V3Factory:         v.GetString("v3-factory"),
		FeeTier:           v.GetUint32("fee-tier"),
		Sinks:             getStringSlice(v, "sink"),
		WebhookURL:        v.GetString("webhook-url"),
		AlertThresholdBps: v.GetString("alert-threshold-bps"),
		Precision:         v.GetInt32("precision"),
		DisplayPlaces:     v.GetInt32("display-places"),
		FetchTimeout:      v.GetDuration("fetch-timeout"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		ReconnectAttempts: v.GetInt("reconnect-attempts"),
		MetricsAddr:       v.GetString("metrics-addr"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks values shared by every command.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.Precision < pricing.MinDigits {
		return fmt.Errorf("precision must be at least %d, got %d", pricing.MinDigits, c.Precision)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if c.MaxRetries < 0 || c.ReconnectAttempts < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	_, err := c.Market()
	return err
}

// Market parses the pair and factory addresses.
func (c Config) Market() (dex.MarketConfig, error) {
	addrs, err := ParseAddresses([]string{c.TokenA, c.TokenB, c.V2Factory, c.V3Factory})
	if err != nil {
		return dex.MarketConfig{}, err
	}
	if len(addrs) != 4 {
		return dex.MarketConfig{}, fmt.Errorf("token-a, token-b, v2-factory and v3-factory are required")
	}
	mc := dex.MarketConfig{
		TokenA:    addrs[0],
		TokenB:    addrs[1],
		V2Factory: addrs[2],
		V3Factory: addrs[3],
		FeeTier:   c.FeeTier,
	}
	if err := mc.Validate(); err != nil {
		return dex.MarketConfig{}, err
	}
	return mc, nil
}

// Monitor returns the monitor settings.
func (c Config) Monitor() monitor.Config {
	cfg := monitor.DefaultConfig()
	cfg.FetchTimeout = c.FetchTimeout
	cfg.MaxRetries = c.MaxRetries
	cfg.RetryBackoff = c.RetryBackoff
	cfg.ReconnectAttempts = c.ReconnectAttempts
	return cfg
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
