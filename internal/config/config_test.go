package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadBundle(t *testing.T) {
	b, err := LoadBundle()
	if err != nil {
		t.Fatalf("LoadBundle() error = %v", err)
	}

	if b.Version != CurrentBundleVersion {
		t.Errorf("Expected version %s, got %s", CurrentBundleVersion, b.Version)
	}
	if len(b.Tokens()) == 0 || len(b.Markets()) == 0 {
		t.Fatal("Expected tokens and markets in bundle")
	}

	usdc, ok := b.TokenBySymbol("USDC")
	if !ok {
		t.Fatal("Expected USDC token")
	}

	byID, ok := b.TokenByAssetID(strings.ToUpper(usdc.AssetID))
	if !ok || byID.Symbol != "USDC" {
		t.Errorf("Expected case-insensitive asset lookup to find USDC, got %+v", byID)
	}

	m, ok := b.MarketBySymbol("btc-usdc")
	if !ok {
		t.Fatal("Expected BTC-USDC market")
	}
	if m.BaseToken.Symbol != "BTC" || m.QuoteToken.Symbol != "USDC" {
		t.Errorf("Unexpected market tokens %s/%s", m.BaseToken.Symbol, m.QuoteToken.Symbol)
	}
	if _, ok := b.MarketByID(strings.ToUpper(m.ContractID)); !ok {
		t.Error("Expected case-insensitive market lookup")
	}
}

func TestParseBundleVersionMismatch(t *testing.T) {
	_, err := ParseBundle([]byte(`{"version":"1.6.1","tokens":[],"markets":[]}`))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("Expected ErrVersionMismatch, got %v", err)
	}
}

func TestParseBundleUnknownAsset(t *testing.T) {
	doc := `{"version":"1.6.2","tokens":[],"markets":[{"marketName":"X","baseAssetId":"0x1","quoteAssetId":"0x2"}]}`
	if _, err := ParseBundle([]byte(doc)); err == nil {
		t.Error("Expected error for market with unknown assets")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.App.BalanceInterval != 5*time.Second {
		t.Errorf("Expected balance interval 5s, got %v", cfg.App.BalanceInterval)
	}
	if cfg.App.OracleInterval != 15*time.Second {
		t.Errorf("Expected oracle interval 15s, got %v", cfg.App.OracleInterval)
	}
	if cfg.App.OrderLimit != 150 || cfg.App.TradeLimit != 500 {
		t.Errorf("Unexpected limits %d/%d", cfg.App.OrderLimit, cfg.App.TradeLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spotbook.yaml")
	doc := `
display:
  port: "9000"
  push_interval: 500ms
app:
  default_market: ETH-USDC
  oracle_interval: 30s
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SPOTBOOK_PORT", "9100")
	t.Setenv("SPOTBOOK_TERMINAL", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Display.Port != "9100" {
		t.Errorf("Expected env to override port, got %s", cfg.Display.Port)
	}
	if cfg.Display.PushInterval != 500*time.Millisecond {
		t.Errorf("Expected push interval 500ms, got %v", cfg.Display.PushInterval)
	}
	if cfg.App.DefaultMarket != "ETH-USDC" {
		t.Errorf("Expected ETH-USDC, got %s", cfg.App.DefaultMarket)
	}
	if cfg.App.OracleInterval != 30*time.Second {
		t.Errorf("Expected oracle interval 30s, got %v", cfg.App.OracleInterval)
	}
	if cfg.App.BalanceInterval != 5*time.Second {
		t.Errorf("Expected untouched balance interval 5s, got %v", cfg.App.BalanceInterval)
	}
	if !cfg.Display.Terminal {
		t.Error("Expected terminal view enabled from env")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.App.TradeLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for zero trade limit")
	}
}
