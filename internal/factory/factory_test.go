package factory

import (
	"testing"

	"spotbook/internal/sdk"
)

func TestNewNetwork(t *testing.T) {
	tests := []struct {
		name    sdk.NetworkName
		wantErr bool
	}{
		{sdk.Fuel, false},
		{"ethereum", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			n, err := NewNetwork(NetworkConfig{Name: tt.name})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewNetwork(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if !tt.wantErr && n.GetName() != tt.name {
				t.Errorf("Expected name %s, got %s", tt.name, n.GetName())
			}
		})
	}
}

func TestValidateNetworkName(t *testing.T) {
	for _, name := range GetSupportedNetworks() {
		if !ValidateNetworkName(string(name)) {
			t.Errorf("supported network %s failed validation", name)
		}
	}
	if ValidateNetworkName("binance") {
		t.Error("Expected binance to be rejected")
	}
}
