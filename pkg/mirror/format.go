// Package mirror keeps a plain-text Beancount copy of every statement line created in the
// ledger, one file per month.
package mirror

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const amountColumn = 60

// Transaction represents a Beancount transaction.
type Transaction struct {
	Date      string // YYYY-MM-DD
	Payee     string
	Narration string
	Tags      []string
	Metadata  map[string]string
	Postings  []Posting
}

// Posting represents a posting in a Beancount transaction.
type Posting struct {
	Account  string
	Amount   decimal.Decimal
	Currency string
}

// FormatTransaction renders txn in Beancount syntax. Amounts keep their full precision.
func FormatTransaction(txn Transaction) string {
	var sb strings.Builder

	sb.WriteString(txn.Date)
	sb.WriteString(" *")
	if txn.Payee != "" {
		fmt.Fprintf(&sb, " %q", txn.Payee)
	}
	fmt.Fprintf(&sb, " %q", txn.Narration)
	for _, tag := range txn.Tags {
		sb.WriteString(" #")
		sb.WriteString(tag)
	}
	sb.WriteString("\n")

	keys := make([]string, 0, len(txn.Metadata))
	for k := range txn.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %s: %q\n", k, txn.Metadata[k])
	}

	for _, posting := range txn.Postings {
		sb.WriteString("  ")
		sb.WriteString(posting.Account)
		sb.WriteString(strings.Repeat(" ", max(1, amountColumn-len(posting.Account))))
		fmt.Fprintf(&sb, "%s %s\n", posting.Amount.String(), posting.Currency)
	}

	return sb.String()
}

// sanitizeAccountComponent makes s usable as one component of a Beancount account name.
func sanitizeAccountComponent(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r == '_' || r == ' ' || r == '.':
			return '-'
		default:
			return -1
		}
	}, s)
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
