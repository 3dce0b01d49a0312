package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxDecimals bounds token decimals; a uint256 has at most 78 digits.
const MaxDecimals = 77

var (
	// ErrInvalidAmount is returned when a raw value is not a non-negative base-10 integer.
	ErrInvalidAmount = errors.New("invalid raw amount")

	// ErrInvalidDecimals is returned for decimals outside [0, MaxDecimals].
	ErrInvalidDecimals = errors.New("invalid token decimals")

	// ErrPrecisionLoss is returned when a value cannot be expressed in the token's smallest unit.
	ErrPrecisionLoss = errors.New("amount not representable at token precision")

	// ErrSelfTransfer is returned for a transfer from the wallet to itself. It moves nothing.
	ErrSelfTransfer = errors.New("transfer from wallet to itself")
)

// DecodeAmount converts a raw integer value into a token amount: raw / 10^decimals.
func DecodeAmount(raw string, decimals int32) (decimal.Decimal, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}

	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	return decimal.NewFromBigInt(value, -decimals), nil
}

// EncodeAmount converts a token amount back into its raw integer representation.
func EncodeAmount(amount decimal.Decimal, decimals int32) (string, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return "", fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}

	scaled := amount.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return "", fmt.Errorf("%w: %s at %d decimals", ErrPrecisionLoss, amount.String(), decimals)
	}

	return scaled.BigInt().String(), nil
}

// SignedAmount returns the decoded amount of e, positive when wallet received it and
// negative when wallet sent it. A transfer from wallet to itself returns zero and
// ErrSelfTransfer.
func SignedAmount(e TransferEvent, wallet string) (decimal.Decimal, error) {
	amount, err := DecodeAmount(e.Value, e.Decimals)
	if err != nil {
		return decimal.Zero, err
	}

	switch {
	case SameAddress(e.To, wallet) && SameAddress(e.From, wallet):
		return decimal.Zero, ErrSelfTransfer
	case SameAddress(e.To, wallet):
		return amount, nil
	case SameAddress(e.From, wallet):
		return amount.Neg(), nil
	default:
		return decimal.Zero, ErrNotInvolved
	}
}
