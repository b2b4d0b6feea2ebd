package store

import (
	"spotbook/internal/network"
	"spotbook/internal/sdk"
)

// AccountStore exposes the wallet session of the facade
type AccountStore struct {
	net *network.Network
}

func NewAccountStore(net *network.Network) *AccountStore {
	return &AccountStore{net: net}
}

// Connect attaches a signing wallet to the session
func (s *AccountStore) Connect(signer sdk.Signer) {
	s.net.Connect(signer)
}

// ConnectByAddress starts a read-only session for address
func (s *AccountStore) ConnectByAddress(address string) {
	s.net.ConnectByAddress(address)
}

// Disconnect drops the wallet session
func (s *AccountStore) Disconnect() {
	s.net.Disconnect()
}

// Address returns the connected address, empty when disconnected
func (s *AccountStore) Address() string {
	return s.net.GetAddress()
}

// IsConnected reports whether a wallet address is attached
func (s *AccountStore) IsConnected() bool {
	return s.net.GetAddress() != ""
}
