package ledger

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Memory is an in-process Gateway. It understands the domain operators accepted by
// SearchRead and the statement posting lifecycle, which is enough to run the whole
// pipeline offline.
type Memory struct {
	mu      sync.Mutex
	records map[string]map[int64]Record
	nextID  int64
	calls   map[string]int

	// FailCreate, when set, is consulted before every create.
	FailCreate func(req Create) error
	// FailPost, when set, is consulted before every post.
	FailPost func(req Post) error
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]map[int64]Record),
		calls:   make(map[string]int),
	}
}

// Seed inserts a record directly, bypassing hooks, and returns its id.
func (m *Memory) Seed(model string, values Values) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(model, values)
}

// Get returns a copy of a stored record.
func (m *Memory) Get(model string, id int64) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[model][id]
	if !ok {
		return nil, false
	}
	return copyRecord(rec), true
}

// All returns copies of every record of model ordered by id.
func (m *Memory) All(model string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(model)
}

// Calls returns how many times op ("create:res.partner", "post:account.bank.statement", ...) ran.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// SearchRead implements Gateway.
func (m *Memory) SearchRead(_ context.Context, req SearchRead) ([]Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["search:"+req.Model]++

	var out []Record
	for _, rec := range m.sorted(req.Model) {
		if matches(rec, req.Domain) {
			out = append(out, project(rec, req.Fields))
		}
	}

	if req.Order != "" {
		orderRecords(out, req.Order)
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Create implements Gateway.
func (m *Memory) Create(_ context.Context, req Create) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	if m.FailCreate != nil {
		if err := m.FailCreate(req); err != nil {
			return 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["create:"+req.Model]++

	values := req.Values
	switch req.Model {
	case ModelStatement:
		if _, ok := values["state"]; !ok {
			values = copyValues(values)
			values["state"] = StatementStateOpen
		}
	case ModelJournal:
		if values["type"] == "bank" {
			values = m.withJournalAccounts(values)
		}
	}
	return m.insert(req.Model, values), nil
}

// withJournalAccounts gives a new bank journal its liquidity and suspense accounts,
// as the ledger does on journal creation.
func (m *Memory) withJournalAccounts(values Values) Values {
	values = copyValues(values)
	code, _ := values["code"].(string)
	if isUnset(values["default_account_id"]) {
		values["default_account_id"] = m.insert(ModelAccount, Values{
			"code": code, "name": code + " Bank", "account_type": "asset_cash",
		})
	}
	if isUnset(values["suspense_account_id"]) {
		values["suspense_account_id"] = m.insert(ModelAccount, Values{
			"code": code + "S", "name": code + " Suspense", "account_type": "asset_current",
		})
	}
	return values
}

// restore inserts a record under a known id.
func (m *Memory) restore(model string, id int64, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.records[model] == nil {
		m.records[model] = make(map[int64]Record)
	}
	rec["id"] = id
	m.records[model][id] = rec
	if id > m.nextID {
		m.nextID = id
	}
}

// Write implements Gateway.
func (m *Memory) Write(_ context.Context, req Write) error {
	if err := req.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["write:"+req.Model]++

	for _, id := range req.IDs {
		rec, ok := m.records[req.Model][id]
		if !ok {
			return missingRecord(req.Model, id)
		}
		for k, v := range req.Values {
			rec[k] = v
		}
	}
	return nil
}

// Post implements Gateway. Posting an already posted statement fails like the real backend.
func (m *Memory) Post(_ context.Context, req Post) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if m.FailPost != nil {
		if err := m.FailPost(req); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["post:"+req.Model]++

	for _, id := range req.IDs {
		rec, ok := m.records[req.Model][id]
		if !ok {
			return missingRecord(req.Model, id)
		}
		if rec["state"] == StatementStatePosted {
			return &RemoteError{Code: 200, Name: "odoo.exceptions.UserError", Message: "The statement is already posted."}
		}
		rec["state"] = StatementStatePosted
	}
	return nil
}

func (m *Memory) insert(model string, values Values) int64 {
	if m.records[model] == nil {
		m.records[model] = make(map[int64]Record)
	}
	m.nextID++
	rec := Record{"id": m.nextID}
	for k, v := range values {
		rec[k] = v
	}
	m.records[model][m.nextID] = rec
	return m.nextID
}

func (m *Memory) sorted(model string) []Record {
	ids := make([]int64, 0, len(m.records[model]))
	for id := range m.records[model] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyRecord(m.records[model][id]))
	}
	return out
}

func missingRecord(model string, id int64) error {
	return &RemoteError{Code: 200, Name: "odoo.exceptions.MissingError", Message: fmt.Sprintf("record %s(%d) does not exist", model, id)}
}

func matches(rec Record, domain Domain) bool {
	for _, c := range domain {
		if !matchCondition(rec[c.Field], c) {
			return false
		}
	}
	return true
}

func matchCondition(field any, c Condition) bool {
	switch c.Operator {
	case "=":
		return equal(field, c.Value)
	case "!=":
		return !equal(field, c.Value)
	case "in":
		return inList(field, c.Value)
	case "not in":
		return !inList(field, c.Value)
	case "ilike":
		s, _ := field.(string)
		pattern, _ := c.Value.(string)
		return strings.Contains(strings.ToLower(s), strings.ToLower(pattern))
	default:
		cmp, ok := compare(field, c.Value)
		if !ok {
			return false
		}
		switch c.Operator {
		case "<":
			return cmp < 0
		case "<=":
			return cmp <= 0
		case ">":
			return cmp > 0
		case ">=":
			return cmp >= 0
		}
	}
	return false
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		// false and nil both mean "unset".
		return isUnset(a) && isUnset(b)
	}
	cmp, ok := compare(a, b)
	if ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

func isUnset(v any) bool {
	return v == nil || v == false
}

func inList(field, list any) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if equal(field, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// compare orders numbers numerically and strings lexically.
func compare(a, b any) (int, bool) {
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}

	da, ok := toDecimal(a)
	if !ok {
		return 0, false
	}
	db, ok := toDecimal(b)
	if !ok {
		return 0, false
	}
	return da.Cmp(db), true
}

func toDecimal(v any) (decimal.Decimal, bool) {
	if _, isString := v.(string); isString {
		return decimal.Zero, false
	}
	return Record{"v": v}.Decimal("v")
}

func project(rec Record, fields []string) Record {
	if len(fields) == 0 {
		return rec
	}
	out := Record{"id": rec["id"]}
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		} else {
			out[f] = false
		}
	}
	return out
}

func orderRecords(records []Record, order string) {
	parts := strings.Fields(order)
	field := parts[0]
	desc := len(parts) > 1 && strings.EqualFold(parts[1], "desc")

	sort.SliceStable(records, func(i, j int) bool {
		cmp, ok := compare(records[i][field], records[j][field])
		if !ok {
			return false
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func copyValues(v Values) Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
