package store

import (
	"testing"

	"spotbook/internal/config"
	"spotbook/internal/network"
	"spotbook/internal/sdk/sdktest"
	"spotbook/internal/types"
)

const blockedOrderID = "0xb140a6bf39601d69d0fedacb61ecce95cb65eaa05856583cb1a9af926acbd5bd"

type fixture struct {
	net    *network.Network
	fake   *sdktest.Fake
	bundle *config.Bundle
	btc    types.Market
	eth    types.Market
}

func newFixture(t testing.TB) fixture {
	t.Helper()
	bundle, err := config.LoadBundle()
	if err != nil {
		t.Fatalf("LoadBundle() error = %v", err)
	}
	btc, ok := bundle.MarketBySymbol("BTC-USDC")
	if !ok {
		t.Fatal("BTC-USDC market missing from bundle")
	}
	eth, ok := bundle.MarketBySymbol("ETH-USDC")
	if !ok {
		t.Fatal("ETH-USDC market missing from bundle")
	}
	fake := &sdktest.Fake{}
	return fixture{net: network.New(bundle, fake), fake: fake, bundle: bundle, btc: btc, eth: eth}
}

func (f fixture) token(t *testing.T, symbol string) types.Token {
	t.Helper()
	token, ok := f.bundle.TokenBySymbol(symbol)
	if !ok {
		t.Fatalf("token %s missing from bundle", symbol)
	}
	return token
}

func lastToast(t *testing.T, n *NotificationStore) Toast {
	t.Helper()
	toasts := n.Toasts()
	if len(toasts) == 0 {
		t.Fatal("Expected a toast, got none")
	}
	return toasts[len(toasts)-1]
}
