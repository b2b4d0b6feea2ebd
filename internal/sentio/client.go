// Package sentio is a minimal client for the Sentio analytics SQL API.
package sentio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoAPIKey is returned when a query is issued without credentials
var ErrNoAPIKey = errors.New("sentio api key not configured")

// Client executes SQL against a Sentio project endpoint
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// New creates a Sentio client. A nil httpClient gets a 10s timeout client.
func New(url, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{url: url, apiKey: apiKey, httpClient: httpClient}
}

// SetAPIKey replaces the API key used for subsequent queries
func (c *Client) SetAPIKey(apiKey string) {
	c.apiKey = apiKey
}

type queryRequest struct {
	SQLQuery struct {
		SQL string `json:"sql"`
	} `json:"sqlQuery"`
}

type queryResponse struct {
	Result struct {
		Rows json.RawMessage `json:"rows"`
	} `json:"result"`
	Message string `json:"message"`
}

// Query executes sql and decodes the result rows into rows, which must be a pointer to a slice
func (c *Client) Query(ctx context.Context, sql string, rows any) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}

	var body queryRequest
	body.SQLQuery.SQL = sql
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sentio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sentio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode sentio response: %w", err)
	}
	if len(out.Result.Rows) == 0 || string(out.Result.Rows) == "null" {
		return nil
	}
	if err := json.Unmarshal(out.Result.Rows, rows); err != nil {
		return fmt.Errorf("failed to decode sentio rows: %w", err)
	}
	return nil
}

// SanitizeAddress keeps only characters valid in a hex address, for embedding in SQL literals
func SanitizeAddress(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == 'x' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AddressList renders addresses as a SQL IN list
func AddressList(addresses []string) string {
	quoted := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if s := SanitizeAddress(a); s != "" {
			quoted = append(quoted, "'"+s+"'")
		}
	}
	if len(quoted) == 0 {
		return "''"
	}
	return strings.Join(quoted, ", ")
}
