package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
markets:
  - BTC
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Trading.Mode != string(ModeSim) {
		t.Errorf("default mode = %s, want SIM", cfg.Trading.Mode)
	}
	if cfg.Gateway.CacheTTLSeconds != 5 {
		t.Errorf("cache ttl = %d, want 5", cfg.Gateway.CacheTTLSeconds)
	}
	if cfg.Gateway.RefreshIntervalSeconds != 10 {
		t.Errorf("refresh interval = %d, want 10", cfg.Gateway.RefreshIntervalSeconds)
	}
	if cfg.Stream.ReconnectAttempts != 3 {
		t.Errorf("reconnect attempts = %d, want 3", cfg.Stream.ReconnectAttempts)
	}
	if cfg.Strategy.ConfidenceThreshold != 70 {
		t.Errorf("confidence threshold = %v, want 70", cfg.Strategy.ConfidenceThreshold)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
markets:
  - BTC
exchange:
  api_key: file-key
`)
	t.Setenv("HM_EXCHANGE_KEY", "env-key")
	t.Setenv("HM_TRADING_MODE", "SIM")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Exchange.APIKey != "env-key" {
		t.Errorf("api key = %s, want env-key (env should win)", cfg.Exchange.APIKey)
	}
}

func TestLoadConfig_RejectsNoMarkets(t *testing.T) {
	path := writeConfig(t, `
trading:
  mode: SIM
`)
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for empty markets list")
	}
}

func TestLoadConfig_LiveModeRequiresURLs(t *testing.T) {
	path := writeConfig(t, `
trading:
  mode: LIVE
markets:
  - BTC
`)
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error: LIVE mode without base_url")
	}
}

func TestValidate_RejectsBadWSURL(t *testing.T) {
	cfg := &Config{}
	cfg.Trading.Mode = "LIVE"
	cfg.Markets = []string{"BTC"}
	cfg.Exchange.BaseURL = "https://api.example.com"
	cfg.Exchange.WSURL = "http://not-a-ws-url"
	cfg.applyDefaults()

	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for non-ws:// stream URL")
	}
}

func TestValidate_RejectsUnknownMode(t *testing.T) {
	cfg := &Config{}
	cfg.Trading.Mode = "PAPER"
	cfg.Markets = []string{"BTC"}

	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unknown trading mode")
	}
}
