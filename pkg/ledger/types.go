// Package ledger provides the accounting backend gateway: a closed set of typed requests,
// an Odoo JSON-RPC client, a dry-run gateway and an in-memory gateway.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Models used by the import pipeline.
const (
	ModelJournal       = "account.journal"
	ModelStatement     = "account.bank.statement"
	ModelStatementLine = "account.bank.statement.line"
	ModelPartner       = "res.partner"
	ModelPartnerBank   = "res.partner.bank"
	ModelAccount       = "account.account"
)

// Bank statement states.
const (
	StatementStateOpen   = "open"
	StatementStatePosted = "posted"
)

// DefaultPostMethod is the model action used by Post when no method is given.
const DefaultPostMethod = "button_post"

var knownModels = map[string]bool{
	ModelJournal:       true,
	ModelStatement:     true,
	ModelStatementLine: true,
	ModelPartner:       true,
	ModelPartnerBank:   true,
	ModelAccount:       true,
}

var knownOperators = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"in": true, "not in": true, "ilike": true,
}

// Gateway is the capability the pipeline needs from the accounting backend.
type Gateway interface {
	SearchRead(ctx context.Context, req SearchRead) ([]Record, error)
	Create(ctx context.Context, req Create) (int64, error)
	Write(ctx context.Context, req Write) error
	Post(ctx context.Context, req Post) error
}

// Condition is a single (field, operator, value) domain term.
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// Eq builds an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Operator: "=", Value: value}
}

// Domain is a conjunction of conditions.
type Domain []Condition

// MarshalJSON encodes the domain the way Odoo expects: a list of 3-element lists.
func (d Domain) MarshalJSON() ([]byte, error) {
	terms := make([][]any, 0, len(d))
	for _, c := range d {
		terms = append(terms, []any{c.Field, c.Operator, c.Value})
	}
	return json.Marshal(terms)
}

// Values holds field values for Create and Write.
type Values map[string]any

// SearchRead reads records of Model matching Domain.
type SearchRead struct {
	Model  string
	Domain Domain
	Fields []string
	Order  string // e.g. "date asc"
	Limit  int
}

// Validate checks the request before it leaves the process.
func (r SearchRead) Validate() error {
	if err := validateModel(r.Model); err != nil {
		return err
	}
	for _, c := range r.Domain {
		if c.Field == "" {
			return fmt.Errorf("%w: empty field in domain of %s", ErrInvalidRequest, r.Model)
		}
		if !knownOperators[c.Operator] {
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidRequest, c.Operator)
		}
	}
	if r.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidRequest)
	}
	return nil
}

// Create creates one record of Model.
type Create struct {
	Model  string
	Values Values
}

// Validate checks the request before it leaves the process.
func (r Create) Validate() error {
	if err := validateModel(r.Model); err != nil {
		return err
	}
	if len(r.Values) == 0 {
		return fmt.Errorf("%w: create %s without values", ErrInvalidRequest, r.Model)
	}
	return nil
}

// Write updates the records IDs of Model.
type Write struct {
	Model  string
	IDs    []int64
	Values Values
}

// Validate checks the request before it leaves the process.
func (r Write) Validate() error {
	if err := validateModel(r.Model); err != nil {
		return err
	}
	if err := validateIDs(r.IDs); err != nil {
		return err
	}
	if len(r.Values) == 0 {
		return fmt.Errorf("%w: write %s without values", ErrInvalidRequest, r.Model)
	}
	return nil
}

// Post invokes the posting action Method on records IDs of Model.
type Post struct {
	Model  string
	IDs    []int64
	Method string
}

// Validate checks the request before it leaves the process.
func (r Post) Validate() error {
	if err := validateModel(r.Model); err != nil {
		return err
	}
	return validateIDs(r.IDs)
}

func (r Post) method() string {
	if r.Method == "" {
		return DefaultPostMethod
	}
	return r.Method
}

func validateModel(model string) error {
	if !knownModels[model] {
		return fmt.Errorf("%w: unknown model %q", ErrInvalidRequest, model)
	}
	return nil
}

func validateIDs(ids []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no record ids", ErrInvalidRequest)
	}
	for _, id := range ids {
		if id == 0 {
			return fmt.Errorf("%w: zero record id", ErrInvalidRequest)
		}
	}
	return nil
}

// Record is one row returned by SearchRead.
type Record map[string]any

// ID returns the record id.
func (r Record) ID() int64 {
	id, _ := toInt64(r["id"])
	return id
}

// Text returns a string field, empty when unset (Odoo encodes unset as false).
func (r Record) Text(field string) string {
	if s, ok := r[field].(string); ok {
		return s
	}
	return ""
}

// Many2One returns the id of a relational field. Odoo returns [id, display_name].
func (r Record) Many2One(field string) (int64, bool) {
	switch v := r[field].(type) {
	case []any:
		if len(v) == 0 {
			return 0, false
		}
		return toInt64(v[0])
	default:
		id, ok := toInt64(v)
		return id, ok && id != 0
	}
}

// Decimal returns a numeric field as a decimal. ok is false when the field is unset.
func (r Record) Decimal(field string) (decimal.Decimal, bool) {
	switch v := r[field].(type) {
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
