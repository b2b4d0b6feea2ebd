package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"spotbook/internal/logger"
	"spotbook/internal/network"
	"spotbook/internal/types"
	"spotbook/internal/units"
)

// FuelFaucetURL hands out native gas; the wallet address is appended
const FuelFaucetURL = "https://faucet-testnet.fuel.network/?address="

// MinimalNativeRequired is the raw gas balance a mint transaction needs
var MinimalNativeRequired = decimal.NewFromInt(25000)

// ErrNotEnoughGas is returned when the wallet cannot pay for a mint
var ErrNotEnoughGas = errors.New("not enough ETH to pay for gas")

var mintAmounts = map[string]decimal.Decimal{
	"ETH":  decimal.RequireFromString("0.001"),
	"BTC":  decimal.NewFromInt(1),
	"USDC": decimal.NewFromInt(3000),
	"FUEL": decimal.NewFromInt(1000),
}

// FaucetToken is a mintable test token
type FaucetToken struct {
	types.Token
	MintAmount decimal.Decimal
	Balance    string
}

// FaucetStore mints test tokens into the connected wallet
type FaucetStore struct {
	net      *network.Network
	account  *AccountStore
	balances *BalanceStore
	toaster  types.Toaster
	log      *logrus.Entry
}

func NewFaucetStore(net *network.Network, account *AccountStore, balances *BalanceStore, toaster types.Toaster) *FaucetStore {
	return &FaucetStore{
		net:      net,
		account:  account,
		balances: balances,
		toaster:  toaster,
		log:      logger.WithComponent("faucet"),
	}
}

// Tokens lists every configured token with its mint amount and wallet balance
func (s *FaucetStore) Tokens() []FaucetToken {
	tokens := s.net.GetTokenList()
	out := make([]FaucetToken, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, FaucetToken{
			Token:      t,
			MintAmount: mintAmounts[t.Symbol],
			Balance:    s.balances.FormatBalance(t.AssetID, t.Decimals),
		})
	}
	return out
}

// MintDisabled reports whether minting assetID is blocked for lack of gas. The gas token itself is never blocked.
func (s *FaucetStore) MintDisabled(assetID string) bool {
	if s.balances.NativeBalance().GreaterThan(MinimalNativeRequired) {
		return false
	}
	native, ok := s.net.GetTokenBySymbol(nativeSymbol)
	return !ok || !native.SameAsset(assetID)
}

// Mint mints the configured amount of assetID. The gas token comes from the external faucet instead.
func (s *FaucetStore) Mint(ctx context.Context, assetID string) (string, error) {
	token, ok := s.net.GetTokenByAssetID(assetID)
	if !ok {
		return "", s.fail(fmt.Errorf("unknown asset %s", assetID))
	}

	if token.Symbol == nativeSymbol {
		s.toaster.Info("Get test ETH at " + FuelFaucetURL + s.account.Address())
		return "", nil
	}

	if s.MintDisabled(assetID) {
		return "", s.fail(ErrNotEnoughGas)
	}

	amount := units.ParseUnits(mintAmounts[token.Symbol], token.Decimals)
	res, err := s.net.MintToken(ctx, token, amount)
	if err != nil {
		return "", s.fail(fmt.Errorf("failed to mint %s: %w", token.Symbol, err))
	}

	s.toaster.Success(fmt.Sprintf("Minted %s %s", units.ToSignificant(mintAmounts[token.Symbol], 3), token.Symbol), res.TransactionID)
	s.balances.Refresh()
	return res.TransactionID, nil
}

func (s *FaucetStore) fail(err error) error {
	s.log.WithError(err).Error("mint failed")
	s.toaster.Error("We were unable to mint your token at this time")
	return err
}
