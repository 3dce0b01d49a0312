package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySearchReadDomain(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Seed(ModelStatement, Values{"name": "A 2024-08", "journal_id": int64(1), "date": "2024-08-01"})
	m.Seed(ModelStatement, Values{"name": "A 2024-09", "journal_id": int64(1), "date": "2024-09-01"})
	m.Seed(ModelStatement, Values{"name": "B 2024-09", "journal_id": int64(2), "date": "2024-09-01"})

	tests := []struct {
		name     string
		domain   Domain
		expected int
	}{
		{"equality", Domain{Eq("journal_id", 1)}, 2},
		{"conjunction", Domain{Eq("journal_id", int64(1)), Eq("date", "2024-09-01")}, 1},
		{"less than string", Domain{{Field: "date", Operator: "<", Value: "2024-09-01"}}, 1},
		{"in list", Domain{{Field: "journal_id", Operator: "in", Value: []int64{1, 2}}}, 3},
		{"not equal", Domain{{Field: "journal_id", Operator: "!=", Value: 1}}, 1},
		{"ilike", Domain{{Field: "name", Operator: "ilike", Value: "b 2024"}}, 1},
		{"missing field is unset", Domain{Eq("state", false)}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.SearchRead(ctx, SearchRead{Model: ModelStatement, Domain: tt.domain})
			require.NoError(t, err)
			assert.Len(t, got, tt.expected)
		})
	}
}

func TestMemoryOrderLimitAndFields(t *testing.T) {
	m := NewMemory()
	m.Seed(ModelStatement, Values{"name": "x", "date": "2024-08-01"})
	m.Seed(ModelStatement, Values{"name": "y", "date": "2024-10-01"})
	m.Seed(ModelStatement, Values{"name": "z", "date": "2024-09-01"})

	got, err := m.SearchRead(context.Background(), SearchRead{
		Model:  ModelStatement,
		Fields: []string{"date"},
		Order:  "date desc",
		Limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-10-01", got[0].Text("date"))
	assert.Equal(t, "2024-09-01", got[1].Text("date"))
	_, hasName := got[0]["name"]
	assert.False(t, hasName)
}

func TestMemoryPostLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.Create(ctx, Create{Model: ModelStatement, Values: Values{"name": "A 2024-09"}})
	require.NoError(t, err)

	rec, _ := m.Get(ModelStatement, id)
	assert.Equal(t, StatementStateOpen, rec.Text("state"))

	require.NoError(t, m.Post(ctx, Post{Model: ModelStatement, IDs: []int64{id}}))
	rec, _ = m.Get(ModelStatement, id)
	assert.Equal(t, StatementStatePosted, rec.Text("state"))

	err = m.Post(ctx, Post{Model: ModelStatement, IDs: []int64{id}})
	assert.True(t, IsAlreadyPosted(err))

	err = m.Post(ctx, Post{Model: ModelStatement, IDs: []int64{999}})
	require.Error(t, err)
	assert.False(t, IsAlreadyPosted(err))
}

func TestMemoryWrite(t *testing.T) {
	m := NewMemory()
	id := m.Seed(ModelPartner, Values{"name": "Alice"})

	require.NoError(t, m.Write(context.Background(), Write{Model: ModelPartner, IDs: []int64{id}, Values: Values{"ref": "A1"}}))
	rec, ok := m.Get(ModelPartner, id)
	require.True(t, ok)
	assert.Equal(t, "A1", rec.Text("ref"))
	assert.Equal(t, 1, m.Calls("write:"+ModelPartner))
}

func TestDryRunSuppressesWrites(t *testing.T) {
	m := NewMemory()
	m.Seed(ModelPartner, Values{"name": "Alice"})
	d := NewDryRun(m, nil)
	ctx := context.Background()

	records, err := d.SearchRead(ctx, SearchRead{Model: ModelPartner})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	first, err := d.Create(ctx, Create{Model: ModelPartner, Values: Values{"name": "Bob"}})
	require.NoError(t, err)
	second, err := d.Create(ctx, Create{Model: ModelPartner, Values: Values{"name": "Carol"}})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), first)
	assert.Equal(t, int64(-2), second)

	require.NoError(t, d.Write(ctx, Write{Model: ModelPartner, IDs: []int64{first}, Values: Values{"ref": "x"}}))
	require.NoError(t, d.Post(ctx, Post{Model: ModelStatement, IDs: []int64{first}}))

	assert.Len(t, m.All(ModelPartner), 1)
	assert.Equal(t, 0, m.Calls("create:"+ModelPartner))

	creates, writes, posts := d.Counts()
	assert.Equal(t, 2, creates)
	assert.Equal(t, 1, writes)
	assert.Equal(t, 1, posts)
}

func TestDryRunStillValidates(t *testing.T) {
	d := NewDryRun(nil, nil)

	_, err := d.Create(context.Background(), Create{Model: ModelPartner})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
