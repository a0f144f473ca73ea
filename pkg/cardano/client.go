// Package cardano provides an HTTP client for a Blockfrost-compatible
// ledger indexer. It covers the four queries the delegation tracker needs:
// new transactions touching an asset, transaction details, datum resolution
// by hash, and current per-holder asset balances.
package cardano

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// pageSize is the indexer's maximum page size.
const pageSize = 100

// Client represents a ledger indexer API client
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new indexer API client
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// TxOutput represents a single transaction output as reported by the indexer
type TxOutput struct {
	Address     string `json:"address"`
	OutputIndex int    `json:"output_index"`
	StakeKey    string `json:"stake_key"`    // hex key hash; empty when the address carries no stake part
	DataHash    string `json:"data_hash"`    // hash of the output datum, if any
	InlineDatum string `json:"inline_datum"` // hex CBOR, if the datum is inline
}

// Transaction represents transaction details as reported by the indexer
type Transaction struct {
	Hash             string            `json:"hash"`
	Slot             uint64            `json:"slot"`
	ExtraSignatories []string          `json:"extra_signatories"` // hex key hashes of required extra signers
	Datums           map[string]string `json:"datums"`            // datum hash -> hex CBOR carried in the tx body
	Outputs          []TxOutput        `json:"outputs"`
}

// assetTx is one row of the asset transactions listing
type assetTx struct {
	TxHash string `json:"tx_hash"`
}

// assetHolder is one row of the asset holders listing
type assetHolder struct {
	Key      string `json:"key"`      // hex verification key of the holder
	Quantity string `json:"quantity"` // integer encoded as string
}

// datumResponse is the datum-by-hash response
type datumResponse struct {
	CBOR string `json:"cbor"`
}

// NewTransactions retrieves hashes of transactions affecting the asset,
// newest first, stopping before the transaction identified by after.
// An empty after returns the full history.
func (c *Client) NewTransactions(ctx context.Context, asset, after string) ([]string, error) {
	var hashes []string
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/assets/%s/transactions?order=desc&count=%d&page=%d", c.baseURL, asset, pageSize, page)

		var rows []assetTx
		if err := c.getJSON(ctx, url, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return hashes, nil
		}
		for _, row := range rows {
			if after != "" && row.TxHash == after {
				return hashes, nil
			}
			hashes = append(hashes, row.TxHash)
		}
		if len(rows) < pageSize {
			return hashes, nil
		}
	}
}

// TransactionByHash retrieves transaction details. It returns (nil, nil)
// when the indexer does not know the transaction.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	url := fmt.Sprintf("%s/txs/%s", c.baseURL, hash)

	var tx Transaction
	found, err := c.getJSONMaybe(ctx, url, &tx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &tx, nil
}

// DatumByHash resolves a datum by its hash and returns the raw CBOR bytes.
// It returns (nil, nil) when the indexer does not know the datum.
func (c *Client) DatumByHash(ctx context.Context, hash string) ([]byte, error) {
	url := fmt.Sprintf("%s/scripts/datum/%s/cbor", c.baseURL, hash)

	var resp datumResponse
	found, err := c.getJSONMaybe(ctx, url, &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	raw, err := hex.DecodeString(resp.CBOR)
	if err != nil {
		return nil, fmt.Errorf("decoding datum cbor: %w", err)
	}
	return raw, nil
}

// HolderBalances retrieves the current asset balance of every holder,
// keyed by the holder's verification key.
func (c *Client) HolderBalances(ctx context.Context, asset string) (map[string]int64, error) {
	balances := make(map[string]int64)
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/assets/%s/holders?count=%d&page=%d", c.baseURL, asset, pageSize, page)

		var rows []assetHolder
		if err := c.getJSON(ctx, url, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return balances, nil
		}
		for _, row := range rows {
			quantity, err := strconv.ParseInt(row.Quantity, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing holder quantity %q: %w", row.Quantity, err)
			}
			balances[row.Key] += quantity
		}
		if len(rows) < pageSize {
			return balances, nil
		}
	}
}

// getJSON performs a GET request and decodes the JSON response into out
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	found, err := c.getJSONMaybe(ctx, url, out)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("unexpected status code: %d", http.StatusNotFound)
	}
	return nil
}

// getJSONMaybe performs a GET request, treating 404 as a well-defined
// "not found" result rather than an error
func (c *Client) getJSONMaybe(ctx context.Context, url string, out any) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return true, nil
}
