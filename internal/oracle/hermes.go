// Package oracle fetches index prices from the Pyth Hermes price service.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultURL is the public Hermes endpoint
const DefaultURL = "https://hermes.pyth.network"

// ZeroFeedID marks tokens without a price feed
const ZeroFeedID = "0x0000000000000000000000000000000000000000000000000000000000000000"

// PriceUpdate is one parsed Hermes price
type PriceUpdate struct {
	ID    string `json:"id"`
	Price struct {
		Price       string `json:"price"`
		Conf        string `json:"conf"`
		Expo        int32  `json:"expo"`
		PublishTime int64  `json:"publish_time"`
	} `json:"price"`
}

type latestResponse struct {
	Parsed []PriceUpdate `json:"parsed"`
}

// Client queries Hermes over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new Hermes client
func New(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// IsZeroFeed reports whether feedID is the placeholder for tokens without a feed
func IsZeroFeed(feedID string) bool {
	return feedID == "" || strings.EqualFold(feedID, ZeroFeedID)
}

// LatestPrices returns the raw integer price of each feed keyed by "0x" + feed id
func (c *Client) LatestPrices(ctx context.Context, feedIDs []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(feedIDs))
	if len(feedIDs) == 0 {
		return prices, nil
	}

	q := url.Values{}
	for _, id := range feedIDs {
		q.Add("ids[]", id)
	}
	q.Set("parsed", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/updates/price/latest?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("hermes returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode prices: %w", err)
	}

	for _, update := range body.Parsed {
		price, err := decimal.NewFromString(update.Price.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q for feed %s: %w", update.Price.Price, update.ID, err)
		}
		prices["0x"+strings.TrimPrefix(strings.ToLower(update.ID), "0x")] = price
	}
	return prices, nil
}
