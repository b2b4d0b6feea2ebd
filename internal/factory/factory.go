package factory

import (
	"fmt"

	"spotbook/internal/sdk"
	"spotbook/internal/sdk/spark"
)

// NetworkConfig holds configuration for creating an order book SDK
type NetworkConfig struct {
	Name  sdk.NetworkName
	Spark spark.Config
}

// NewNetwork creates a new SDK instance based on the configuration
func NewNetwork(config NetworkConfig) (sdk.OrderBookSDK, error) {
	switch config.Name {
	case sdk.Fuel:
		return spark.NewClient(config.Spark), nil

	default:
		return nil, fmt.Errorf("unknown network: %s", config.Name)
	}
}

// ValidateNetworkName checks if the network name is supported
func ValidateNetworkName(name string) bool {
	switch sdk.NetworkName(name) {
	case sdk.Fuel:
		return true
	default:
		return false
	}
}

// GetSupportedNetworks returns a list of all supported networks
func GetSupportedNetworks() []sdk.NetworkName {
	return []sdk.NetworkName{sdk.Fuel}
}
