package spv

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

const wocBaseFormat = "https://api.whatsonchain.com/v1/bsv/%s"

// WocClient is a ChainProvider backed by the WhatsOnChain REST API.
type WocClient struct {
	base   string
	client *http.Client
}

// Compile-time interface check.
var _ ChainProvider = (*WocClient)(nil)

// NewWocClient creates a client for the given network ("main" or
// "test"). The client maintains a connection pool for reuse.
func NewWocClient(network string) *WocClient {
	return NewWocClientWithBase(fmt.Sprintf(wocBaseFormat, network))
}

// NewWocClientWithBase creates a client against an explicit base URL.
// Used for self-hosted proxies and test servers.
func NewWocClientWithBase(baseURL string) *WocClient {
	return &WocClient{
		base: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
}

// get performs one GET request and returns the body for 2xx statuses.
// A 404 is surfaced as ErrTxNotFound so callers can branch on it.
func (c *WocClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrConnectionFailed, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrInvalidResponse, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s returned %d", ErrInvalidResponse, path, resp.StatusCode)
	}
	return body, nil
}

// GetMerkleProof fetches the merkle proof for txid. A missing proof
// (404, or a null body for an unconfirmed transaction) means not yet
// proven and returns (nil, nil).
func (c *WocClient) GetMerkleProof(ctx context.Context, txid string) (*TxProof, error) {
	body, err := c.get(ctx, "/tx/"+txid+"/proof")
	if err != nil {
		if errors.Is(err, ErrTxNotFound) {
			return nil, nil
		}
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var proof TxProof
	if err := json.Unmarshal(trimmed, &proof); err != nil {
		return nil, fmt.Errorf("%w: decode proof: %v", ErrInvalidResponse, err)
	}
	if proof.BlockHash == "" {
		return nil, nil
	}
	return &proof, nil
}

// GetBlockHeader fetches the decoded header for blockHash.
func (c *WocClient) GetBlockHeader(ctx context.Context, blockHash string) (*BlockHeader, error) {
	body, err := c.get(ctx, "/block/hash/"+blockHash)
	if err != nil {
		return nil, err
	}

	var header BlockHeader
	if err := json.Unmarshal(body, &header); err != nil {
		return nil, fmt.Errorf("%w: decode header: %v", ErrInvalidResponse, err)
	}
	return &header, nil
}

// GetRawTxHex fetches the raw transaction hex for txid.
func (c *WocClient) GetRawTxHex(ctx context.Context, txid string) (string, error) {
	body, err := c.get(ctx, "/tx/"+txid+"/hex")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// GetTx fetches the lightweight transaction summary for txid.
func (c *WocClient) GetTx(ctx context.Context, txid string) (*TxInfo, error) {
	body, err := c.get(ctx, "/tx/"+txid)
	if err != nil {
		return nil, err
	}

	var info TxInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: decode tx: %v", ErrInvalidResponse, err)
	}
	return &info, nil
}
