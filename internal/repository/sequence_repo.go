package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Sequence names and seeds. Human-facing codes follow PREFIX-%08X; the seed
// is the value handed out by the FIRST call (SALE-A0000000).
const (
	SeqSaleNumber  = "sale_number"
	SaleNumberSeed = 0xA0000000
)

// SequenceRepository hands out monotonically increasing values from named
// counters. Next must be atomic with respect to concurrent callers: two
// concurrent sale creations must never observe the same value.
type SequenceRepository interface {
	Next(ctx context.Context, tx *gorm.DB, name string, seed int64) (int64, error)
}

type sequenceRepo struct{ db *gorm.DB }

func NewSequenceRepository(db *gorm.DB) SequenceRepository { return &sequenceRepo{db: db} }

// Next performs an atomic fetch-and-increment on the named counter row.
// The upsert seeds the counter on first use and increments it afterwards;
// Postgres serializes the row update, so no two callers get the same value.
func (r *sequenceRepo) Next(ctx context.Context, tx *gorm.DB, name string, seed int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var value int64
	err := tx.WithContext(ctx).Raw(`
		INSERT INTO sequences (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value`, name, seed).Scan(&value).Error
	return value, err
}

// FormatSaleNumber renders a counter value as the canonical sale code.
func FormatSaleNumber(n int64) string {
	return fmt.Sprintf("SALE-%08X", n)
}
