package spark

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"spotbook/internal/sdk"
	"spotbook/internal/types"
)

// send hands the calls to the connected signer as one transaction
func (c *Client) send(ctx context.Context, calls ...sdk.ContractCall) (sdk.WriteResult, error) {
	signer := c.currentSigner()
	if signer == nil {
		return sdk.WriteResult{}, sdk.ErrNoSigner
	}

	txID, err := signer.SendCalls(ctx, calls)
	if err != nil {
		return sdk.WriteResult{}, fmt.Errorf("failed to send %s: %w", calls[len(calls)-1].Function, err)
	}

	c.log.WithField("tx", txID).Infof("submitted %d call(s), last %s", len(calls), calls[len(calls)-1].Function)
	return sdk.WriteResult{TransactionID: txID}, nil
}

func (c *Client) depositCall(deposit sdk.AssetAmount) sdk.ContractCall {
	return sdk.ContractCall{
		ContractID: c.ActiveMarket(),
		Function:   "deposit",
		Forward:    &deposit,
	}
}

func (c *Client) openOrderCall(p sdk.CreateOrderParams) sdk.ContractCall {
	return sdk.ContractCall{
		ContractID: c.ActiveMarket(),
		Function:   "open_order",
		Args: map[string]any{
			"amount":     p.Amount.String(),
			"order_type": string(p.OrderType),
			"price":      p.Price.String(),
		},
	}
}

func (c *Client) fulfillManyCall(p sdk.FulfillOrderManyParams) sdk.ContractCall {
	limitType := p.LimitType
	if limitType == "" {
		limitType = sdk.LimitGTC
	}
	return sdk.ContractCall{
		ContractID: c.ActiveMarket(),
		Function:   "fulfill_order_many",
		Args: map[string]any{
			"amount":     p.Amount.String(),
			"asset_type": string(p.AssetType),
			"order_type": string(p.OrderType),
			"limit_type": string(limitType),
			"price":      p.Price.String(),
			"slippage":   p.Slippage.String(),
			"orders":     p.Orders,
		},
	}
}

func (c *Client) CreateOrder(ctx context.Context, params sdk.CreateOrderParams) (sdk.WriteResult, error) {
	return c.send(ctx, c.openOrderCall(params))
}

func (c *Client) CreateOrderWithDeposit(ctx context.Context, params sdk.CreateOrderParams, deposit sdk.AssetAmount) (sdk.WriteResult, error) {
	return c.send(ctx, c.depositCall(deposit), c.openOrderCall(params))
}

func (c *Client) FulfillOrderMany(ctx context.Context, params sdk.FulfillOrderManyParams) (sdk.WriteResult, error) {
	return c.send(ctx, c.fulfillManyCall(params))
}

func (c *Client) FulfillOrderManyWithDeposit(ctx context.Context, params sdk.FulfillOrderManyParams, deposit sdk.AssetAmount) (sdk.WriteResult, error) {
	return c.send(ctx, c.depositCall(deposit), c.fulfillManyCall(params))
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (sdk.WriteResult, error) {
	return c.send(ctx, sdk.ContractCall{
		ContractID: c.ActiveMarket(),
		Function:   "cancel_order",
		Args:       map[string]any{"order_id": orderID},
	})
}

// MintToken mints a raw amount of a faucet token to the connected wallet
func (c *Client) MintToken(ctx context.Context, token types.Token, amount decimal.Decimal) (sdk.WriteResult, error) {
	signer := c.currentSigner()
	if signer == nil {
		return sdk.WriteResult{}, sdk.ErrNoSigner
	}
	return c.send(ctx, sdk.ContractCall{
		ContractID: c.cfg.MultiAssetContract,
		Function:   "mint",
		Args: map[string]any{
			"recipient": signer.Address(),
			"asset_id":  token.AssetID,
			"amount":    amount.String(),
		},
	})
}

// Deposit forwards a raw amount of token into the active market
func (c *Client) Deposit(ctx context.Context, token types.Token, amount decimal.Decimal) (sdk.WriteResult, error) {
	return c.send(ctx, c.depositCall(sdk.AssetAmount{AssetID: token.AssetID, Amount: amount.String()}))
}

// WithdrawAssets withdraws a raw amount of one side of the active market balance
func (c *Client) WithdrawAssets(ctx context.Context, assetType sdk.AssetType, amount decimal.Decimal) (sdk.WriteResult, error) {
	return c.send(ctx, withdrawCall(c.ActiveMarket(), assetType, amount))
}

// WithdrawAllAssets withdraws every liquid balance from every configured market in one transaction
func (c *Client) WithdrawAllAssets(ctx context.Context) (sdk.WriteResult, error) {
	signer := c.currentSigner()
	if signer == nil {
		return sdk.WriteResult{}, sdk.ErrNoSigner
	}

	balances, err := c.FetchUserMarketBalanceByContracts(ctx, signer.Address(), c.cfg.Markets)
	if err != nil {
		return sdk.WriteResult{}, err
	}

	var calls []sdk.ContractCall
	for _, b := range balances {
		if b.Liquid.Base.IsPositive() {
			calls = append(calls, withdrawCall(b.ContractID, sdk.AssetBase, b.Liquid.Base))
		}
		if b.Liquid.Quote.IsPositive() {
			calls = append(calls, withdrawCall(b.ContractID, sdk.AssetQuote, b.Liquid.Quote))
		}
	}

	if len(calls) == 0 {
		return sdk.WriteResult{}, nil
	}
	return c.send(ctx, calls...)
}

func withdrawCall(contract string, assetType sdk.AssetType, amount decimal.Decimal) sdk.ContractCall {
	return sdk.ContractCall{
		ContractID: contract,
		Function:   "withdraw",
		Args: map[string]any{
			"amount":     amount.String(),
			"asset_type": string(assetType),
		},
	}
}
