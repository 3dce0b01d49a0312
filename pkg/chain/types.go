// Package chain provides the on-chain transfer model and the pure derivations the
// reconciliation pipeline builds on: dedup keys, signed amounts, dates and month keys.
package chain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// ErrNotInvolved is returned when the tracked wallet is neither sender nor recipient.
	ErrNotInvolved = errors.New("wallet is not a party to the transfer")

	// ErrInvalidAddress is returned for strings that are not 20-byte hex addresses.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidHash is returned for strings that are not 32-byte hex transaction hashes.
	ErrInvalidHash = errors.New("invalid transaction hash")
)

// TransferEvent represents a single token transfer as reported by the transfer source.
type TransferEvent struct {
	Hash         string // Transaction hash (0x-prefixed)
	LogIndex     int64  // Position of the transfer log inside the transaction
	From         string // Sender address
	To           string // Recipient address
	Value        string // Raw integer amount in the token's smallest unit
	Decimals     int32  // Token decimals
	Timestamp    int64  // Block time, unix seconds
	BlockNumber  int64
	TokenAddress string // Token contract address
	TokenSymbol  string
}

// Key returns the dedup key of the event.
func (e TransferEvent) Key() string {
	return DedupKey(e.Hash, e.LogIndex, e.TokenAddress)
}

// Date returns the ISO date (UTC) of the event.
func (e TransferEvent) Date() string {
	return ISODate(e.Timestamp)
}

// MonthKey returns the YYYY-MM bucket the event belongs to.
func (e TransferEvent) MonthKey() string {
	return MonthKey(e.Date())
}

// DedupKey builds the identity of a ledger line: hash:index:token.
// Hash and token are lowercased so differently-cased inputs map to the same key.
func DedupKey(hash string, index int64, tokenAddress string) string {
	return fmt.Sprintf("%s:%d:%s", NormalizeAddress(hash), index, NormalizeAddress(tokenAddress))
}

// ISODate formats a unix timestamp as YYYY-MM-DD in UTC.
func ISODate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.DateOnly)
}

// MonthKey returns the first 7 characters (YYYY-MM) of an ISO date.
func MonthKey(isoDate string) string {
	if len(isoDate) < 7 {
		return isoDate
	}
	return isoDate[:7]
}

// CurrentMonthKey returns the month key of t in UTC.
func CurrentMonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NormalizeAddress lowercases and trims a hex string for comparisons.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// SameAddress reports whether two addresses are equal ignoring case.
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// ValidateAddress checks that addr is a 0x-prefixed 20-byte hex address.
func ValidateAddress(addr string) error {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return nil
}

// ValidateHash checks that hash is a 0x-prefixed 32-byte hex string.
func ValidateHash(hash string) error {
	b, err := hexutil.Decode(hash)
	if err != nil || len(b) != common.HashLength {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return nil
}

// Counterparty returns the address on the other side of the transfer relative to wallet.
func Counterparty(e TransferEvent, wallet string) (string, error) {
	switch {
	case SameAddress(e.To, wallet):
		return e.From, nil
	case SameAddress(e.From, wallet):
		return e.To, nil
	default:
		return "", ErrNotInvolved
	}
}

// BlockRange bounds a fetch by block number. A zero To means "up to the latest block".
type BlockRange struct {
	From int64
	To   int64
}
