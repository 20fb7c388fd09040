package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/Layr-Labs/ethword-go/pkg/server"
	"github.com/Layr-Labs/ethword-go/pkg/types"
)

// APIError is returned when the hub answers with a non-2xx status
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hub returned status %d: %s", e.StatusCode, e.Message)
}

// HubClient talks to a payword hub on behalf of one caller
type HubClient struct {
	baseURL    string
	caller     common.Address
	httpClient *http.Client
	retry      RetryConfig
}

// NewHubClient creates a client that identifies itself as caller
func NewHubClient(baseURL string, caller common.Address) *HubClient {
	return &HubClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		caller:     caller,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      DefaultRetryConfig,
	}
}

// WithHTTPClient replaces the underlying http client
func (c *HubClient) WithHTTPClient(hc *http.Client) *HubClient {
	c.httpClient = hc
	return c
}

// WithRetryConfig replaces the retry settings for read requests
func (c *HubClient) WithRetryConfig(cfg RetryConfig) *HubClient {
	c.retry = cfg
	return c
}

// Caller returns the address sent with every request
func (c *HubClient) Caller() common.Address {
	return c.caller
}

// CreateChannel opens a channel funded by the caller
func (c *HubClient) CreateChannel(ctx context.Context, req *types.CreateChannelRequest) (*types.ChannelResponse, error) {
	var resp types.ChannelResponse
	if err := c.do(ctx, http.MethodPost, "/channels", req, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to create channel")
	}
	return &resp, nil
}

// CloseChannel redeems claim against channel id
func (c *HubClient) CloseChannel(ctx context.Context, id common.Hash, claim types.Claim) (*types.SettlementResponse, error) {
	msg, err := types.NewClaimMessage(claim)
	if err != nil {
		return nil, err
	}
	var resp types.SettlementResponse
	if err := c.do(ctx, http.MethodPost, "/channels/"+id.Hex()+"/close", types.CloseChannelRequest{Claim: msg}, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to close channel %s", id.Hex())
	}
	return &resp, nil
}

// SimulateClose asks the hub what CloseChannel would do
func (c *HubClient) SimulateClose(ctx context.Context, id common.Hash, claim types.Claim) (*types.SimulationResponse, error) {
	msg, err := types.NewClaimMessage(claim)
	if err != nil {
		return nil, err
	}
	var resp types.SimulationResponse
	if err := c.do(ctx, http.MethodPost, "/channels/"+id.Hex()+"/simulate", types.CloseChannelRequest{Claim: msg}, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to simulate close of channel %s", id.Hex())
	}
	return &resp, nil
}

// GetChannel fetches a single channel
func (c *HubClient) GetChannel(ctx context.Context, id common.Hash) (*types.ChannelResponse, error) {
	var resp types.ChannelResponse
	if err := c.do(ctx, http.MethodGet, "/channels/"+id.Hex(), nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to get channel %s", id.Hex())
	}
	return &resp, nil
}

// ListChannels fetches every channel on the hub
func (c *HubClient) ListChannels(ctx context.Context) ([]types.ChannelResponse, error) {
	var resp types.ListChannelsResponse
	if err := c.do(ctx, http.MethodGet, "/channels", nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to list channels")
	}
	return resp.Channels, nil
}

// FundAccount credits addr; the hub must have funding enabled
func (c *HubClient) FundAccount(ctx context.Context, addr common.Address, amount string) (*types.AccountResponse, error) {
	var resp types.AccountResponse
	if err := c.do(ctx, http.MethodPost, "/accounts/"+addr.Hex()+"/fund", types.FundAccountRequest{Amount: amount}, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to fund %s", addr.Hex())
	}
	return &resp, nil
}

// GetAccount fetches the spendable balance of addr
func (c *HubClient) GetAccount(ctx context.Context, addr common.Address) (*types.AccountResponse, error) {
	var resp types.AccountResponse
	if err := c.do(ctx, http.MethodGet, "/accounts/"+addr.Hex(), nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to get account %s", addr.Hex())
	}
	return &resp, nil
}

// Health returns nil when the hub reports healthy
func (c *HubClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *HubClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
	}

	resp, err := withRetry(ctx, c.retry, method, func() (*http.Response, error) {
		var reader io.Reader
		if reqBody != nil {
			reader = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.caller != (common.Address{}) {
			req.Header.Set(server.CallerHeader, c.caller.Hex())
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return errors.Wrap(err, "HTTP request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		var apiErr types.ErrorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
