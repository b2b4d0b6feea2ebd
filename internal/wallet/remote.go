// Package wallet bridges contract calls to an external wallet connector.
package wallet

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

	"github.com/sirupsen/logrus"

	"spotbook/internal/logger"
	"spotbook/internal/sdk"
)

// ErrReadOnly is returned when a write is attempted through an address-only session
var ErrReadOnly = errors.New("wallet is connected read-only")

var (
	_ sdk.Signer = (*RemoteSigner)(nil)
	_ sdk.Reader = (*RemoteSigner)(nil)
	_ sdk.Signer = ReadOnly("")
)

type sendRequest struct {
	Address string             `json:"address"`
	Calls   []sdk.ContractCall `json:"calls"`
}

type sendResponse struct {
	TransactionID string `json:"transactionId"`
	Error         string `json:"error,omitempty"`
}

type readResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// RemoteSigner posts contract calls to a signer bridge that owns the keys
type RemoteSigner struct {
	url        string
	address    string
	httpClient *http.Client
	log        *logrus.Entry
}

// NewRemoteSigner creates a signer for address backed by the bridge at url
func NewRemoteSigner(url, address string, httpClient *http.Client) *RemoteSigner {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteSigner{
		url:        strings.TrimRight(url, "/"),
		address:    strings.ToLower(address),
		httpClient: httpClient,
		log:        logger.WithComponent("wallet"),
	}
}

func (s *RemoteSigner) Address() string {
	return s.address
}

// SendCalls submits the calls as one transaction and returns its id
func (s *RemoteSigner) SendCalls(ctx context.Context, calls []sdk.ContractCall) (string, error) {
	if len(calls) == 0 {
		return "", errors.New("no calls to send")
	}

	var resp sendResponse
	if err := s.post(ctx, "/calls", sendRequest{Address: s.address, Calls: calls}, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("signer rejected transaction: %s", resp.Error)
	}
	if resp.TransactionID == "" {
		return "", errors.New("signer returned no transaction id")
	}

	s.log.WithField("tx", resp.TransactionID).Debugf("signed %d call(s)", len(calls))
	return resp.TransactionID, nil
}

// ReadCall performs a read-only contract call through the bridge
func (s *RemoteSigner) ReadCall(ctx context.Context, call sdk.ContractCall) (json.RawMessage, error) {
	var resp readResponse
	if err := s.post(ctx, "/read", call, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("read %s: %s", call.Function, resp.Error)
	}
	return resp.Result, nil
}

func (s *RemoteSigner) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signer bridge unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("signer bridge returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode signer response: %w", err)
	}
	return nil
}

// ReadOnly is a session that knows its address but cannot sign
type ReadOnly string

func (r ReadOnly) Address() string {
	return strings.ToLower(string(r))
}

func (r ReadOnly) SendCalls(context.Context, []sdk.ContractCall) (string, error) {
	return "", ErrReadOnly
}
