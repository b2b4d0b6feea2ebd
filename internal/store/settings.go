package store

import (
	"fmt"
	"sync"

	"spotbook/internal/sdk"
)

// OrderKind selects how the order form submits
type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
)

// SettingsStore holds the trading form preferences
type SettingsStore struct {
	mu          sync.RWMutex
	orderKind   OrderKind
	timeInForce sdk.LimitType
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{orderKind: OrderMarket, timeInForce: sdk.LimitGTC}
}

// OrderKind returns the selected order type
func (s *SettingsStore) OrderKind() OrderKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderKind
}

// SetOrderKind selects market or limit orders
func (s *SettingsStore) SetOrderKind(kind OrderKind) error {
	if kind != OrderMarket && kind != OrderLimit {
		return fmt.Errorf("unknown order type %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderKind = kind
	return nil
}

// TimeInForce returns the limit order time in force
func (s *SettingsStore) TimeInForce() sdk.LimitType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeInForce
}

// SetTimeInForce selects GTC, IOC or FOK
func (s *SettingsStore) SetTimeInForce(tif sdk.LimitType) error {
	switch tif {
	case sdk.LimitGTC, sdk.LimitIOC, sdk.LimitFOK:
	default:
		return fmt.Errorf("unknown time in force %q", tif)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeInForce = tif
	return nil
}
