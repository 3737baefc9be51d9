package main

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AssetConfig declares one collateral asset the daemon accepts, with the
// static price its feed starts at (base-currency units, 8 decimals).
type AssetConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Decimals uint8  `mapstructure:"decimals"`
	Price    string `mapstructure:"price"`
}

// Config is the daemon configuration, loaded from defaults, an optional
// config file, and DUSD_-prefixed environment variables.
type Config struct {
	NodeID   string `mapstructure:"node_id"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`

	Admin       string `mapstructure:"admin"`
	FeeReceiver string `mapstructure:"fee_receiver"`

	RPCPort     int    `mapstructure:"rpc_port"`
	WSPort      int    `mapstructure:"ws_port"`
	MetricsPort string `mapstructure:"metrics_port"`

	EnableNATS bool   `mapstructure:"enable_nats"`
	NATSURL    string `mapstructure:"nats_url"`

	OracleStaleAfter time.Duration `mapstructure:"oracle_stale_after"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	ReceiptPrice     string        `mapstructure:"receipt_price"`

	Assets []AssetConfig `mapstructure:"assets"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "dusdd-1")
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", ".dusdd")

	v.SetDefault("admin", "admin")
	v.SetDefault("fee_receiver", "fee-receiver")

	v.SetDefault("rpc_port", 8080)
	v.SetDefault("ws_port", 8081)
	v.SetDefault("metrics_port", "9090")

	v.SetDefault("enable_nats", false)
	v.SetDefault("nats_url", "nats://localhost:4222")

	v.SetDefault("oracle_stale_after", 5*time.Minute)
	v.SetDefault("snapshot_interval", 30*time.Second)
	v.SetDefault("receipt_price", "100000000") // $1.00

	v.SetDefault("assets", []map[string]interface{}{
		{"symbol": "USDC", "decimals": 6, "price": "100000000"},
		{"symbol": "DAI", "decimals": 18, "price": "100000000"},
	})
}

// LoadConfig loads configuration in priority order: defaults, config
// file, environment.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("DUSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Admin == "" {
		return fmt.Errorf("admin identity must be set")
	}
	if config.FeeReceiver == "" {
		return fmt.Errorf("fee receiver identity must be set")
	}
	if len(config.Assets) == 0 {
		return fmt.Errorf("at least one collateral asset must be configured")
	}
	if _, err := parsePrice(config.ReceiptPrice); err != nil {
		return fmt.Errorf("receipt_price: %w", err)
	}
	for _, asset := range config.Assets {
		if asset.Symbol == "" {
			return fmt.Errorf("asset symbol must be set")
		}
		if _, err := parsePrice(asset.Price); err != nil {
			return fmt.Errorf("asset %s price: %w", asset.Symbol, err)
		}
	}
	return nil
}

func parsePrice(s string) (*big.Int, error) {
	price, ok := new(big.Int).SetString(s, 10)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("invalid price %q", s)
	}
	return price, nil
}
