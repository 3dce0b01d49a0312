package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/opencollective/odoo-web3/pkg/chain"
)

const (
	defaultPageSize = 1000
	defaultMinDelay = 250 * time.Millisecond
	latestBlock     = 99999999
)

// ClientConfig represents the configuration for the explorer client.
type ClientConfig struct {
	APIURL   string
	APIKey   string
	ChainID  int64         // Sent as chainid when non-zero (multichain endpoints)
	PageSize int           // Default: 1000
	MinDelay time.Duration // Minimum delay between requests. Default: 250ms
	Timeout  time.Duration // Default: 30 seconds
	Logger   *slog.Logger
}

// Client fetches token transfers. Requests are spaced at least MinDelay apart.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chainID    int64
	pageSize   int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new explorer client.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	minDelay := config.MinDelay
	if minDelay <= 0 {
		minDelay = defaultMinDelay
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    config.APIURL,
		apiKey:     config.APIKey,
		chainID:    config.ChainID,
		pageSize:   pageSize,
		limiter:    rate.NewLimiter(rate.Every(minDelay), 1),
		logger:     logger,
	}
}

// Fetch returns every transfer of token involving wallet within blocks (nil = all),
// in the explorer's ascending order. No transfers is an empty slice, not an error.
func (c *Client) Fetch(ctx context.Context, wallet, token string, blocks *chain.BlockRange) ([]chain.TransferEvent, error) {
	if err := chain.ValidateAddress(wallet); err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	if err := chain.ValidateAddress(token); err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	var all []chain.TransferEvent
	occurrences := make(map[string]int64)
	page := 1

	for {
		transfers, err := c.ListTokenTransfers(ctx, wallet, token, blocks, page)
		if err != nil {
			return nil, fmt.Errorf("failed to list token transfers (page=%d): %w", page, err)
		}

		for _, tx := range transfers {
			hash := strings.ToLower(tx.Hash)
			event, err := tx.toEvent(occurrences[hash])
			occurrences[hash]++
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", page, err)
			}
			all = append(all, event)
		}

		c.logger.Debug("Fetched transfer page", "page", page, "count", len(transfers))

		if len(transfers) < c.pageSize {
			break
		}
		page++
	}

	return all, nil
}

// ListTokenTransfers fetches one page of the tokentx endpoint.
func (c *Client) ListTokenTransfers(ctx context.Context, wallet, token string, blocks *chain.BlockRange, page int) ([]TokenTransfer, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	startBlock, endBlock := int64(0), int64(latestBlock)
	if blocks != nil {
		startBlock = blocks.From
		if blocks.To > 0 {
			endBlock = blocks.To
		}
	}

	queryParams := url.Values{}
	if c.chainID != 0 {
		queryParams.Set("chainid", strconv.FormatInt(c.chainID, 10))
	}
	queryParams.Set("module", "account")
	queryParams.Set("action", "tokentx")
	queryParams.Set("contractaddress", token)
	queryParams.Set("address", wallet)
	queryParams.Set("startblock", strconv.FormatInt(startBlock, 10))
	queryParams.Set("endblock", strconv.FormatInt(endBlock, 10))
	queryParams.Set("page", strconv.Itoa(page))
	queryParams.Set("offset", strconv.Itoa(c.pageSize))
	queryParams.Set("sort", "asc")
	if c.apiKey != "" {
		queryParams.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", c.baseURL, queryParams.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Message: resp.Status, Result: strings.TrimSpace(string(body))}
	}

	var apiResp Response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return parseTransfers(apiResp)
}

// parseTransfers interprets the status/message/result envelope.
func parseTransfers(resp Response) ([]TokenTransfer, error) {
	if resp.Status == "1" {
		var transfers []TokenTransfer
		if err := json.Unmarshal(resp.Result, &transfers); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return transfers, nil
	}

	if strings.HasPrefix(strings.ToLower(resp.Message), "no transactions found") {
		return []TokenTransfer{}, nil
	}

	// On failures result carries a human readable string.
	var detail string
	if err := json.Unmarshal(resp.Result, &detail); err != nil {
		detail = string(resp.Result)
	}
	if strings.Contains(strings.ToLower(detail), "rate limit") {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, detail)
	}
	return nil, &APIError{Message: resp.Message, Result: detail}
}

// toEvent converts one result row. Explorers that omit logIndex (Etherscan's tokentx) get
// occurrence, the position of the row among the rows of the same transaction in ascending
// order, so every transfer of a multi-transfer transaction keeps its own key.
func (t TokenTransfer) toEvent(occurrence int64) (chain.TransferEvent, error) {
	logIndex := occurrence
	if t.LogIndex != "" {
		parsed, err := strconv.ParseInt(t.LogIndex, 10, 64)
		if err != nil {
			return chain.TransferEvent{}, fmt.Errorf("%w: bad log index %q in %s", ErrMalformedResponse, t.LogIndex, t.Hash)
		}
		logIndex = parsed
	}
	block, err := strconv.ParseInt(t.BlockNumber, 10, 64)
	if err != nil {
		return chain.TransferEvent{}, fmt.Errorf("%w: bad block number %q in %s", ErrMalformedResponse, t.BlockNumber, t.Hash)
	}
	ts, err := strconv.ParseInt(t.TimeStamp, 10, 64)
	if err != nil {
		return chain.TransferEvent{}, fmt.Errorf("%w: bad timestamp %q in %s", ErrMalformedResponse, t.TimeStamp, t.Hash)
	}
	decimals, err := strconv.ParseInt(t.TokenDecimal, 10, 32)
	if err != nil {
		return chain.TransferEvent{}, fmt.Errorf("%w: bad token decimals %q in %s", ErrMalformedResponse, t.TokenDecimal, t.Hash)
	}
	if err := chain.ValidateHash(t.Hash); err != nil {
		return chain.TransferEvent{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return chain.TransferEvent{
		Hash:         t.Hash,
		LogIndex:     logIndex,
		From:         t.From,
		To:           t.To,
		Value:        t.Value,
		Decimals:     int32(decimals),
		Timestamp:    ts,
		BlockNumber:  block,
		TokenAddress: t.ContractAddress,
		TokenSymbol:  t.TokenSymbol,
	}, nil
}
