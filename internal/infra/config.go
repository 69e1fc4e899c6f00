package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects the exchange transport behind the gateway.
type Mode string

const (
	ModeLive Mode = "LIVE"
	ModeSim  Mode = "SIM"
)

// Config holds everything supplied at initialization. It is never mutated
// mid-session except through the stream's UpdateSettings command.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode string `yaml:"mode"` // "LIVE" or "SIM"
	} `yaml:"trading"`

	Exchange struct {
		BaseURL      string `yaml:"base_url"`
		WSURL        string `yaml:"ws_url"`
		APIKey       string `yaml:"api_key"`
		APISecret    string `yaml:"api_secret"`
		AccountIndex int    `yaml:"account_index"`
		Address      string `yaml:"address"`
	} `yaml:"exchange"`

	Markets []string `yaml:"markets"`

	Strategy struct {
		ConfidenceThreshold   float64 `yaml:"confidence_threshold"`
		OrderSize             string  `yaml:"order_size"` // decimal string
		StopLossATRMultiplier float64 `yaml:"stop_loss_atr_multiplier"`
	} `yaml:"strategy"`

	Gateway struct {
		CacheTTLSeconds        int     `yaml:"cache_ttl_sec"`
		RefreshIntervalSeconds int     `yaml:"refresh_interval_sec"`
		RequestsPerSecond      float64 `yaml:"requests_per_sec"`
	} `yaml:"gateway"`

	Stream struct {
		ReconnectAttempts     int `yaml:"reconnect_attempts"`
		ReconnectDelaySeconds int `yaml:"reconnect_delay_sec"`
	} `yaml:"stream"`

	Storage struct {
		Path string `yaml:"path"` // sqlite trade log, empty disables persistence
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the YAML config file, applies environment
// overrides for key material, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Trading.Mode == "" {
		c.Trading.Mode = string(ModeSim)
	}
	if c.Gateway.CacheTTLSeconds <= 0 {
		c.Gateway.CacheTTLSeconds = 5
	}
	if c.Gateway.RefreshIntervalSeconds <= 0 {
		c.Gateway.RefreshIntervalSeconds = 10
	}
	if c.Gateway.RequestsPerSecond <= 0 {
		c.Gateway.RequestsPerSecond = 5
	}
	if c.Stream.ReconnectAttempts <= 0 {
		c.Stream.ReconnectAttempts = 3
	}
	if c.Stream.ReconnectDelaySeconds <= 0 {
		c.Stream.ReconnectDelaySeconds = 5
	}
	if c.Strategy.ConfidenceThreshold <= 0 {
		c.Strategy.ConfidenceThreshold = 70
	}
	if c.Strategy.OrderSize == "" {
		c.Strategy.OrderSize = "0.01"
	}
	if c.Strategy.StopLossATRMultiplier <= 0 {
		c.Strategy.StopLossATRMultiplier = 1.5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	mode := Mode(strings.ToUpper(c.Trading.Mode))
	if mode != ModeLive && mode != ModeSim {
		return fmt.Errorf("unknown trading mode: %s", c.Trading.Mode)
	}
	if len(c.Markets) == 0 {
		return fmt.Errorf("at least one market is required")
	}
	if mode == ModeLive {
		if c.Exchange.BaseURL == "" {
			return fmt.Errorf("exchange base_url is required in LIVE mode")
		}
		if c.Exchange.WSURL == "" ||
			(!strings.HasPrefix(c.Exchange.WSURL, "ws://") && !strings.HasPrefix(c.Exchange.WSURL, "wss://")) {
			return fmt.Errorf("invalid exchange WS URL: %s", c.Exchange.WSURL)
		}
	}
	if c.Strategy.ConfidenceThreshold < 0 || c.Strategy.ConfidenceThreshold > 100 {
		return fmt.Errorf("confidence threshold must be within [0,100]")
	}
	return nil
}

// CacheTTL returns the gateway cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Gateway.CacheTTLSeconds) * time.Second
}

// RefreshInterval returns the background refresh cadence as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Gateway.RefreshIntervalSeconds) * time.Second
}

// ReconnectDelay returns the fixed delay between reconnect attempts.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Stream.ReconnectDelaySeconds) * time.Second
}

// overrideWithEnv applies environment variables over file values.
// Environment takes precedence for key material so secrets can stay out of
// the config file.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("HM_EXCHANGE_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("HM_EXCHANGE_SECRET"); secret != "" {
		cfg.Exchange.APISecret = secret
	}
	if addr := os.Getenv("HM_EXCHANGE_ADDRESS"); addr != "" {
		cfg.Exchange.Address = addr
	}
	if mode := os.Getenv("HM_TRADING_MODE"); mode != "" {
		cfg.Trading.Mode = mode
	}
}
