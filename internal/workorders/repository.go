package workorders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-workshop/internal/inventory"
	"github.com/odyssey-erp/odyssey-workshop/internal/ledger"
	"github.com/odyssey-erp/odyssey-workshop/internal/platform/db"
)

// TxRepository exposes order statements bound to one transaction, plus the
// part and ledger stores sharing that transaction.
type TxRepository interface {
	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateFields(ctx context.Context, id int64, patch FieldPatch) error
	UpdateStatus(ctx context.Context, id int64, status Status, finalizedAt *time.Time) error
	DeleteOrder(ctx context.Context, id int64) error
	ListItems(ctx context.Context, orderID int64) ([]Item, error)
	GetItemForUpdate(ctx context.Context, orderID, itemID int64) (Item, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, orderID, itemID int64) error
	DeleteChecklist(ctx context.Context, orderID int64) error
	InsertChecklistEntry(ctx context.Context, entry ChecklistEntry) (ChecklistEntry, error)
	Load(ctx context.Context, id int64) (Order, error)
	Parts() inventory.TxRepository
	Ledger() ledger.Store
}

// Repository persists orders in PostgreSQL.
type Repository struct {
	transactor *db.Transactor
	queries    *orderQueries
}

// NewRepository constructs Repository.
func NewRepository(transactor *db.Transactor) *Repository {
	return &Repository{transactor: transactor, queries: &orderQueries{db: transactor.Pool()}}
}

// WithTx runs fn within a transaction shared by the order, part and ledger stores.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.transactor == nil {
		return errors.New("workorders repository not initialised")
	}
	return r.transactor.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &orderQueries{db: tx})
	})
}

// Get returns a rehydrated order without locking.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	return r.queries.Load(ctx, id)
}

// List returns orders, newest first, rehydrated.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	return r.queries.list(ctx, filter)
}

type orderQueries struct {
	db db.DBTX
}

func (q *orderQueries) Parts() inventory.TxRepository { return inventory.NewTxRepository(q.db) }

func (q *orderQueries) Ledger() ledger.Store { return ledger.NewStore(q.db) }

const orderColumns = `id, number, customer_id, vehicle_id, status, opened_at, finalized_at,
	delivery_estimate, description, entry_mileage, discount_percent`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                 Order
		customer, vehicle pgtype.Int8
		finalized, eta    pgtype.Timestamptz
		status            string
		discount          pgtype.Numeric
	)
	if err := row.Scan(&o.ID, &o.Number, &customer, &vehicle, &status, &o.OpenedAt, &finalized,
		&eta, &o.Description, &o.EntryMileage, &discount); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.CustomerID = int8Ptr(customer)
	o.VehicleID = int8Ptr(vehicle)
	o.FinalizedAt = timePtr(finalized)
	o.DeliveryEstimate = timePtr(eta)
	o.DiscountPercent = db.NumericToDecimal(discount)
	return o, nil
}

func (q *orderQueries) InsertOrder(ctx context.Context, order Order) (Order, error) {
	row := q.db.QueryRow(ctx, `INSERT INTO service_orders
	(customer_id, vehicle_id, status, opened_at, delivery_estimate, description, entry_mileage, discount_percent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+orderColumns,
		order.CustomerID, order.VehicleID, string(order.Status), order.OpenedAt, order.DeliveryEstimate,
		order.Description, order.EntryMileage, db.DecimalToNumeric(order.DiscountPercent))
	return scanOrder(row)
}

func (q *orderQueries) getOrder(ctx context.Context, id int64, lock bool) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM service_orders WHERE id=$1`
	if lock {
		query += " FOR UPDATE"
	}
	o, err := scanOrder(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return o, nil
}

func (q *orderQueries) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return q.getOrder(ctx, id, true)
}

func (q *orderQueries) UpdateFields(ctx context.Context, id int64, patch FieldPatch) error {
	var (
		sets []string
		args = []any{id}
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.EntryMileage != nil {
		set("entry_mileage", *patch.EntryMileage)
	}
	if patch.CustomerID != nil {
		set("customer_id", *patch.CustomerID)
	}
	if patch.VehicleID != nil {
		set("vehicle_id", *patch.VehicleID)
	}
	if patch.DeliveryEstimate != nil {
		set("delivery_estimate", *patch.DeliveryEstimate)
	}
	if patch.DiscountPercent != nil {
		set("discount_percent", db.DecimalToNumeric(*patch.DiscountPercent))
	}
	if len(sets) == 0 {
		return ErrEmptyPatch
	}
	tag, err := q.db.Exec(ctx, `UPDATE service_orders SET `+strings.Join(sets, ", ")+` WHERE id=$1`, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateStatus keeps the first finalized_at: a non-nil finalizedAt only
// fills an empty column.
func (q *orderQueries) UpdateStatus(ctx context.Context, id int64, status Status, finalizedAt *time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE service_orders
SET status=$2, finalized_at=COALESCE(finalized_at, $3)
WHERE id=$1`, id, string(status), finalizedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (q *orderQueries) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM service_orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

const itemColumns = `id, order_id, kind, part_id, description, quantity, unit_price`

func scanItem(row pgx.Row) (Item, error) {
	var (
		it    Item
		kind  string
		part  pgtype.Int8
		price pgtype.Numeric
	)
	if err := row.Scan(&it.ID, &it.OrderID, &kind, &part, &it.Description, &it.Quantity, &price); err != nil {
		return Item{}, err
	}
	it.Kind = ItemKind(kind)
	it.PartID = int8Ptr(part)
	it.UnitPrice = db.NumericToDecimal(price)
	return it, nil
}

func (q *orderQueries) ListItems(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := q.db.Query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (q *orderQueries) GetItemForUpdate(ctx context.Context, orderID, itemID int64) (Item, error) {
	it, err := scanItem(q.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM order_items
WHERE order_id=$1 AND id=$2 FOR UPDATE`, orderID, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return it, nil
}

func (q *orderQueries) InsertItem(ctx context.Context, item Item) (Item, error) {
	return scanItem(q.db.QueryRow(ctx, `INSERT INTO order_items
	(order_id, kind, part_id, description, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+itemColumns,
		item.OrderID, string(item.Kind), item.PartID, item.Description, item.Quantity, db.DecimalToNumeric(item.UnitPrice)))
}

func (q *orderQueries) UpdateItem(ctx context.Context, item Item) error {
	tag, err := q.db.Exec(ctx, `UPDATE order_items SET description=$3, quantity=$4, unit_price=$5
WHERE order_id=$1 AND id=$2`,
		item.OrderID, item.ID, item.Description, item.Quantity, db.DecimalToNumeric(item.UnitPrice))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (q *orderQueries) DeleteItem(ctx context.Context, orderID, itemID int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1 AND id=$2`, orderID, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (q *orderQueries) DeleteChecklist(ctx context.Context, orderID int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM order_checklist_entries WHERE order_id=$1`, orderID)
	return err
}

func (q *orderQueries) InsertChecklistEntry(ctx context.Context, entry ChecklistEntry) (ChecklistEntry, error) {
	err := q.db.QueryRow(ctx, `INSERT INTO order_checklist_entries (order_id, label, checked, notes)
VALUES ($1, $2, $3, $4) RETURNING id`,
		entry.OrderID, entry.Label, entry.Checked, entry.Notes).Scan(&entry.ID)
	if err != nil {
		return ChecklistEntry{}, err
	}
	return entry, nil
}

func (q *orderQueries) listChecklist(ctx context.Context, orderID int64) ([]ChecklistEntry, error) {
	rows, err := q.db.Query(ctx, `SELECT id, order_id, label, checked, notes
FROM order_checklist_entries WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ChecklistEntry
	for rows.Next() {
		var e ChecklistEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Label, &e.Checked, &e.Notes); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Load reads an order with its items and checklist.
func (q *orderQueries) Load(ctx context.Context, id int64) (Order, error) {
	o, err := q.getOrder(ctx, id, false)
	if err != nil {
		return Order{}, err
	}
	return q.hydrate(ctx, o)
}

func (q *orderQueries) hydrate(ctx context.Context, o Order) (Order, error) {
	var err error
	if o.Items, err = q.ListItems(ctx, o.ID); err != nil {
		return Order{}, fmt.Errorf("list items: %w", err)
	}
	if o.Checklist, err = q.listChecklist(ctx, o.ID); err != nil {
		return Order{}, fmt.Errorf("list checklist: %w", err)
	}
	return o, nil
}

func (q *orderQueries) list(ctx context.Context, filter ListFilter) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM service_orders`
	args := []any{filter.Page.Limit, filter.Page.Offset}
	if filter.Status != nil {
		query += ` WHERE status=$3`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY number DESC LIMIT $1 OFFSET $2`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i], err = q.hydrate(ctx, orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
