package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a Memory ledger persisted to a bbolt file, one bucket per model. It lets the
// pipeline run against a local ledger across invocations, without an Odoo server.
type Bolt struct {
	*Memory
	db *bolt.DB
}

// OpenBolt opens (or creates) the ledger file at path. A new file gets a minimal chart of
// accounts: one receivable and one payable account.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}

	b := &Bolt{Memory: NewMemory(), db: db}
	if err := b.load(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if len(b.All(ModelAccount)) == 0 {
		receivable := b.Seed(ModelAccount, Values{"code": "121000", "name": "Account Receivable", "account_type": "asset_receivable"})
		payable := b.Seed(ModelAccount, Values{"code": "211000", "name": "Account Payable", "account_type": "liability_payable"})
		if err := b.flush(ModelAccount, receivable, payable); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return b, nil
}

// Close closes the ledger file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Create implements Gateway.
func (b *Bolt) Create(ctx context.Context, req Create) (int64, error) {
	id, err := b.Memory.Create(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := b.flush(req.Model, id); err != nil {
		return 0, err
	}

	// A bank journal comes with its own accounts.
	if req.Model == ModelJournal {
		rec, _ := b.Get(ModelJournal, id)
		var accounts []int64
		for _, field := range []string{"default_account_id", "suspense_account_id"} {
			if accountID, ok := rec.Many2One(field); ok {
				accounts = append(accounts, accountID)
			}
		}
		if err := b.flush(ModelAccount, accounts...); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Write implements Gateway.
func (b *Bolt) Write(ctx context.Context, req Write) error {
	if err := b.Memory.Write(ctx, req); err != nil {
		return err
	}
	return b.flush(req.Model, req.IDs...)
}

// Post implements Gateway.
func (b *Bolt) Post(ctx context.Context, req Post) error {
	if err := b.Memory.Post(ctx, req); err != nil {
		return err
	}
	return b.flush(req.Model, req.IDs...)
}

func (b *Bolt) load() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for model := range knownModels {
			bucket, err := tx.CreateBucketIfNotExists([]byte(model))
			if err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", model, err)
			}

			err = bucket.ForEach(func(k, v []byte) error {
				dec := json.NewDecoder(bytes.NewReader(v))
				dec.UseNumber()

				var rec Record
				if err := dec.Decode(&rec); err != nil {
					return fmt.Errorf("failed to decode %s(%d): %w", model, btoi(k), err)
				}
				b.restore(model, btoi(k), rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// flush writes the records ids of model.
func (b *Bolt) flush(model string, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(model))
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", model)
		}
		for _, id := range ids {
			rec, ok := b.Get(model, id)
			if !ok {
				return fmt.Errorf("record %s(%d) not found", model, id)
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal %s(%d): %w", model, id, err)
			}
			if err := bucket.Put(itob(id), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
