// Package explorer provides an Etherscan-compatible client that fetches token transfer
// history for a wallet.
package explorer

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when the explorer rejects a request for exceeding its rate limit.
	ErrRateLimited = errors.New("explorer rate limit reached")

	// ErrMalformedResponse is returned when a response cannot be decoded.
	ErrMalformedResponse = errors.New("malformed explorer response")
)

// APIError is a status=0 answer other than "no transactions" or a rate limit.
type APIError struct {
	Message string
	Result  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("explorer API error: %s - %s", e.Message, e.Result)
}

// Response is the envelope every account endpoint answers with.
type Response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// TokenTransfer is one entry of the tokentx result. All values are decimal strings.
type TokenTransfer struct {
	BlockNumber      string `json:"blockNumber"`
	TimeStamp        string `json:"timeStamp"`
	Hash             string `json:"hash"`
	From             string `json:"from"`
	To               string `json:"to"`
	Value            string `json:"value"`
	ContractAddress  string `json:"contractAddress"`
	TokenName        string `json:"tokenName"`
	TokenSymbol      string `json:"tokenSymbol"`
	TokenDecimal     string `json:"tokenDecimal"`
	LogIndex         string `json:"logIndex,omitempty"`
	TransactionIndex string `json:"transactionIndex"`
}
