package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration
type Config struct {
	Network NetworkConfig `yaml:"network"`
	Display DisplayConfig `yaml:"display"`
	App     AppConfig     `yaml:"app"`
	Logging LoggingConfig `yaml:"logging"`
}

// NetworkConfig holds endpoints and credentials of the external services
type NetworkConfig struct {
	Name           string        `yaml:"name"`
	HermesURL      string        `yaml:"hermes_url"`
	SentioAPIKey   string        `yaml:"sentio_api_key"`
	SignerURL      string        `yaml:"signer_url"`
	WalletAddress  string        `yaml:"wallet_address"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DisplayConfig holds view-related configuration
type DisplayConfig struct {
	Port                    string        `yaml:"port"`
	PushInterval            time.Duration `yaml:"push_interval"`
	Top                     int           `yaml:"top"`
	Terminal                bool          `yaml:"terminal"`
	ClientMessagesPerSecond float64       `yaml:"client_messages_per_second"`
}

// AppConfig holds store configuration
type AppConfig struct {
	DefaultMarket       string        `yaml:"default_market"`
	BalanceInterval     time.Duration `yaml:"balance_interval"`
	MarketPriceInterval time.Duration `yaml:"market_price_interval"`
	OracleInterval      time.Duration `yaml:"oracle_interval"`
	OrderLimit          int           `yaml:"order_limit"`
	TradeLimit          int           `yaml:"trade_limit"`
	BlockedOrders       []string      `yaml:"blocked_orders"`
}

// LoggingConfig holds log level and file rotation settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the default configuration for the BTC-USDC market on Fuel
func Default() Config {
	return Config{
		Network: NetworkConfig{
			Name:           "fuel",
			HermesURL:      "https://hermes.pyth.network",
			RequestTimeout: 10 * time.Second,
		},
		Display: DisplayConfig{
			Port:                    "8086",
			PushInterval:            200 * time.Millisecond,
			Top:                     15,
			ClientMessagesPerSecond: 5,
		},
		App: AppConfig{
			DefaultMarket:       "BTC-USDC",
			BalanceInterval:     5 * time.Second,
			MarketPriceInterval: 5 * time.Second,
			OracleInterval:      15 * time.Second,
			OrderLimit:          150,
			TradeLimit:          500,
			BlockedOrders: []string{
				"0xb140a6bf39601d69d0fedacb61ecce95cb65eaa05856583cb1a9af926acbd5bd",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, .env and the environment
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString("SPOTBOOK_PORT", &c.Display.Port)
	setString("SPOTBOOK_MARKET", &c.App.DefaultMarket)
	setString("SPOTBOOK_NETWORK", &c.Network.Name)
	setString("HERMES_URL", &c.Network.HermesURL)
	setString("SENTIO_API_KEY", &c.Network.SentioAPIKey)
	setString("SIGNER_URL", &c.Network.SignerURL)
	setString("WALLET_ADDRESS", &c.Network.WalletAddress)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	if v, ok := os.LookupEnv("SPOTBOOK_TERMINAL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SPOTBOOK_TERMINAL %q: %w", v, err)
		}
		c.Display.Terminal = b
	}
	return nil
}

// Validate rejects configurations the stores cannot run with
func (c Config) Validate() error {
	switch {
	case c.App.BalanceInterval <= 0, c.App.MarketPriceInterval <= 0, c.App.OracleInterval <= 0:
		return errors.New("poll intervals must be positive")
	case c.Display.PushInterval <= 0:
		return errors.New("display push interval must be positive")
	case c.App.OrderLimit <= 0 || c.App.TradeLimit <= 0:
		return errors.New("order and trade limits must be positive")
	}
	return nil
}

// SetDefaultMarket updates the market selected at startup
func (c *Config) SetDefaultMarket(symbol string) {
	c.App.DefaultMarket = symbol
}

// SetDisplayTop updates the display top count
func (c *Config) SetDisplayTop(top int) {
	c.Display.Top = top
}

// SetPushInterval updates the view push interval
func (c *Config) SetPushInterval(interval time.Duration) {
	c.Display.PushInterval = interval
}
