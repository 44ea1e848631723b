package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-workshop/internal/ledger"
	"github.com/odyssey-erp/odyssey-workshop/internal/platform/db"
)

// TxRepository exposes the part operations that must run on a caller's transaction.
type TxRepository interface {
	GetPartForUpdate(ctx context.Context, id int64) (Part, error)
	UpdateStock(ctx context.Context, part Part) error
	UpdatePricing(ctx context.Context, id int64, purchase, sale decimal.Decimal) error
	InsertPriceHistory(ctx context.Context, entry PriceHistoryEntry) (PriceHistoryEntry, error)
}

// Repository persists parts and price history in PostgreSQL.
type Repository struct {
	transactor *db.Transactor
	queries    *partQueries
}

// NewRepository constructs Repository.
func NewRepository(transactor *db.Transactor) *Repository {
	return &Repository{transactor: transactor, queries: &partQueries{db: transactor.Pool()}}
}

// NewTxRepository binds part operations to an open transaction owned by another module.
func NewTxRepository(q db.DBTX) TxRepository {
	return &partQueries{db: q}
}

// WithTx runs fn with part and ledger stores sharing one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.Store) error) error {
	if r == nil || r.transactor == nil {
		return errors.New("inventory repository not initialised")
	}
	return r.transactor.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &partQueries{db: tx}, ledger.NewStore(tx))
	})
}

// GetPart reads a part without locking it.
func (r *Repository) GetPart(ctx context.Context, id int64) (Part, error) {
	return r.queries.getPart(ctx, id, false)
}

type partQueries struct {
	db db.DBTX
}

const selectPart = `SELECT id, name, category, brand, quantity_on_hand, min_threshold,
	purchase_price, sale_price, location, total_used, updated_at
FROM parts WHERE id=$1`

func (q *partQueries) getPart(ctx context.Context, id int64, lock bool) (Part, error) {
	query := selectPart
	if lock {
		query += " FOR UPDATE"
	}
	var (
		p               Part
		purchase, sale  pgtype.Numeric
		category, brand pgtype.Text
		location        pgtype.Text
	)
	err := q.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &category, &brand, &p.QuantityOnHand, &p.MinThreshold,
		&purchase, &sale, &location, &p.TotalUsed, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Part{}, ErrPartNotFound
		}
		return Part{}, err
	}
	p.Category = category.String
	p.Brand = brand.String
	p.Location = location.String
	p.PurchasePrice = db.NumericToDecimal(purchase)
	p.SalePrice = db.NumericToDecimal(sale)
	return p, nil
}

func (q *partQueries) GetPartForUpdate(ctx context.Context, id int64) (Part, error) {
	return q.getPart(ctx, id, true)
}

func (q *partQueries) UpdateStock(ctx context.Context, part Part) error {
	tag, err := q.db.Exec(ctx, `UPDATE parts SET quantity_on_hand=$2, total_used=$3, updated_at=NOW() WHERE id=$1`,
		part.ID, part.QuantityOnHand, part.TotalUsed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartNotFound
	}
	return nil
}

func (q *partQueries) UpdatePricing(ctx context.Context, id int64, purchase, sale decimal.Decimal) error {
	tag, err := q.db.Exec(ctx, `UPDATE parts SET purchase_price=$2, sale_price=$3, updated_at=NOW() WHERE id=$1`,
		id, db.DecimalToNumeric(purchase), db.DecimalToNumeric(sale))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartNotFound
	}
	return nil
}

func (q *partQueries) InsertPriceHistory(ctx context.Context, entry PriceHistoryEntry) (PriceHistoryEntry, error) {
	err := q.db.QueryRow(ctx, `INSERT INTO part_price_history
	(part_id, recorded_at, purchase_price, supplier, quantity_received, total_paid, sale_price_at_time)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`,
		entry.PartID, entry.RecordedAt, db.DecimalToNumeric(entry.PurchasePrice), entry.Supplier,
		entry.QuantityReceived, db.DecimalToNumeric(entry.TotalPaid), db.DecimalToNumeric(entry.SalePriceAtTime),
	).Scan(&entry.ID)
	if err != nil {
		return PriceHistoryEntry{}, err
	}
	return entry, nil
}
