package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-workshop/internal/platform/db"
	"github.com/odyssey-erp/odyssey-workshop/internal/shared"
)

// Store persists ledger entries. Implementations must run on the caller's
// transaction handle.
type Store interface {
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
}

// PgStore writes ledger_entries through a pool or transaction.
type PgStore struct {
	db db.DBTX
}

// NewStore binds a store to q, normally a pgx.Tx.
func NewStore(q db.DBTX) *PgStore {
	return &PgStore{db: q}
}

const sourceKeyConstraint = "ledger_entries_source_key_key"

// ErrDuplicateSource reports a second entry for the same originating event.
var ErrDuplicateSource = fmt.Errorf("%w: ledger entry already booked for source", shared.ErrConflict)

// InsertEntry appends entry and returns it with id and created_at filled in.
// The ledger_entries_source_key_key unique constraint enforces one entry per
// source. A repeated source key yields ErrDuplicateSource and leaves the transaction
// usable.
func (s *PgStore) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	var paid pgtype.Timestamptz
	if entry.PaidDate != nil {
		paid = pgtype.Timestamptz{Time: *entry.PaidDate, Valid: true}
	}
	var linked pgtype.Int8
	if entry.LinkedOrderID != nil {
		linked = pgtype.Int8{Int64: *entry.LinkedOrderID, Valid: true}
	}
	err := s.db.QueryRow(ctx, `INSERT INTO ledger_entries
	(entry_type, category, description, amount, due_date, paid_date, status, linked_order_id, source_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (source_key) DO NOTHING
RETURNING id, created_at`,
		string(entry.Type), entry.Category, entry.Description, db.DecimalToNumeric(entry.Amount),
		entry.DueDate, paid, string(entry.Status), linked, entry.SourceKey,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsUniqueViolation(err, sourceKeyConstraint) {
			return Entry{}, ErrDuplicateSource
		}
		return Entry{}, err
	}
	return entry, nil
}
