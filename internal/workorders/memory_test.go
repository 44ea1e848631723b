package workorders

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-workshop/internal/inventory"
	"github.com/odyssey-erp/odyssey-workshop/internal/ledger"
)

var errInjected = errors.New("injected failure")

// memState is everything the three stores hold.
type memState struct {
	orders    map[int64]Order
	items     map[int64]Item
	checklist []ChecklistEntry
	parts     map[int64]inventory.Part
	entries   []ledger.Entry
	nextID    int64
	nextNum   int64
}

func (s memState) clone() memState {
	return memState{
		orders:    maps.Clone(s.orders),
		items:     maps.Clone(s.items),
		checklist: slices.Clone(s.checklist),
		parts:     maps.Clone(s.parts),
		entries:   slices.Clone(s.entries),
		nextID:    s.nextID,
		nextNum:   s.nextNum,
	}
}

// memoryRepo is a transactional in-memory store. A transaction works on a
// clone of the committed state that is published only on success, so any
// partially applied change would be visible to tests if rollback failed.
type memoryRepo struct {
	mu     sync.Mutex
	state  memState
	failOn string
}

func newMemoryRepo(parts ...inventory.Part) *memoryRepo {
	r := &memoryRepo{state: memState{
		orders:  map[int64]Order{},
		items:   map[int64]Item{},
		parts:   map[int64]inventory.Part{},
		nextID:  1,
		nextNum: 1000,
	}}
	for _, p := range parts {
		r.state.parts[p.ID] = p
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{st: r.state.clone(), failOn: r.failOn}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.st
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{st: r.state}
	return tx.Load(ctx, id)
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{st: r.state}
	var out []Order
	for _, o := range r.state.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		full, err := tx.Load(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	if filter.Page.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Page.Offset:]
	if len(out) > filter.Page.Limit {
		out = out[:filter.Page.Limit]
	}
	return out, nil
}

func (r *memoryRepo) part(id int64) inventory.Part {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.parts[id]
}

func (r *memoryRepo) ledgerEntries() []ledger.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.state.entries)
}

func (r *memoryRepo) itemCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.items)
}

type memoryTx struct {
	st     memState
	failOn string
}

func (t *memoryTx) id() int64 {
	id := t.st.nextID
	t.st.nextID++
	return id
}

func (t *memoryTx) fail(op string) error {
	if t.failOn == op {
		return errInjected
	}
	return nil
}

func (t *memoryTx) InsertOrder(_ context.Context, o Order) (Order, error) {
	if err := t.fail("InsertOrder"); err != nil {
		return Order{}, err
	}
	o.ID = t.id()
	o.Number = t.st.nextNum
	t.st.nextNum++
	t.st.orders[o.ID] = o
	return o, nil
}

func (t *memoryTx) GetOrderForUpdate(_ context.Context, id int64) (Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (t *memoryTx) UpdateFields(_ context.Context, id int64, p FieldPatch) error {
	o, ok := t.st.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if p.Description != nil {
		o.Description = *p.Description
	}
	if p.EntryMileage != nil {
		o.EntryMileage = *p.EntryMileage
	}
	if p.CustomerID != nil {
		o.CustomerID = p.CustomerID
	}
	if p.VehicleID != nil {
		o.VehicleID = p.VehicleID
	}
	if p.DeliveryEstimate != nil {
		o.DeliveryEstimate = p.DeliveryEstimate
	}
	if p.DiscountPercent != nil {
		o.DiscountPercent = *p.DiscountPercent
	}
	t.st.orders[id] = o
	return nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, id int64, status Status, finalizedAt *time.Time) error {
	if err := t.fail("UpdateStatus"); err != nil {
		return err
	}
	o, ok := t.st.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	if o.FinalizedAt == nil && finalizedAt != nil {
		at := *finalizedAt
		o.FinalizedAt = &at
	}
	t.st.orders[id] = o
	return nil
}

func (t *memoryTx) DeleteOrder(_ context.Context, id int64) error {
	if err := t.fail("DeleteOrder"); err != nil {
		return err
	}
	if _, ok := t.st.orders[id]; !ok {
		return ErrOrderNotFound
	}
	delete(t.st.orders, id)
	for itemID, it := range t.st.items {
		if it.OrderID == id {
			delete(t.st.items, itemID)
		}
	}
	t.st.checklist = slices.DeleteFunc(t.st.checklist, func(e ChecklistEntry) bool { return e.OrderID == id })
	return nil
}

func (t *memoryTx) ListItems(_ context.Context, orderID int64) ([]Item, error) {
	var items []Item
	for _, it := range t.st.items {
		if it.OrderID == orderID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (t *memoryTx) GetItemForUpdate(_ context.Context, orderID, itemID int64) (Item, error) {
	it, ok := t.st.items[itemID]
	if !ok || it.OrderID != orderID {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (t *memoryTx) InsertItem(_ context.Context, it Item) (Item, error) {
	it.ID = t.id()
	t.st.items[it.ID] = it
	return it, nil
}

func (t *memoryTx) UpdateItem(_ context.Context, it Item) error {
	if _, ok := t.st.items[it.ID]; !ok {
		return ErrItemNotFound
	}
	t.st.items[it.ID] = it
	return nil
}

func (t *memoryTx) DeleteItem(_ context.Context, orderID, itemID int64) error {
	it, ok := t.st.items[itemID]
	if !ok || it.OrderID != orderID {
		return ErrItemNotFound
	}
	delete(t.st.items, itemID)
	return nil
}

func (t *memoryTx) DeleteChecklist(_ context.Context, orderID int64) error {
	t.st.checklist = slices.DeleteFunc(t.st.checklist, func(e ChecklistEntry) bool { return e.OrderID == orderID })
	return nil
}

func (t *memoryTx) InsertChecklistEntry(_ context.Context, e ChecklistEntry) (ChecklistEntry, error) {
	if err := t.fail("InsertChecklistEntry"); err != nil {
		return ChecklistEntry{}, err
	}
	e.ID = t.id()
	t.st.checklist = append(t.st.checklist, e)
	return e, nil
}

func (t *memoryTx) Load(ctx context.Context, id int64) (Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	items, _ := t.ListItems(ctx, id)
	o.Items = items
	o.Checklist = nil
	for _, e := range t.st.checklist {
		if e.OrderID == id {
			o.Checklist = append(o.Checklist, e)
		}
	}
	return o, nil
}

func (t *memoryTx) Parts() inventory.TxRepository { return memoryParts{t} }

func (t *memoryTx) Ledger() ledger.Store { return memoryLedger{t} }

type memoryParts struct{ t *memoryTx }

func (m memoryParts) GetPartForUpdate(_ context.Context, id int64) (inventory.Part, error) {
	p, ok := m.t.st.parts[id]
	if !ok {
		return inventory.Part{}, inventory.ErrPartNotFound
	}
	return p, nil
}

func (m memoryParts) UpdateStock(_ context.Context, part inventory.Part) error {
	if err := m.t.fail("UpdateStock"); err != nil {
		return err
	}
	p, ok := m.t.st.parts[part.ID]
	if !ok {
		return inventory.ErrPartNotFound
	}
	p.QuantityOnHand = part.QuantityOnHand
	p.TotalUsed = part.TotalUsed
	m.t.st.parts[part.ID] = p
	return nil
}

func (m memoryParts) UpdatePricing(context.Context, int64, decimal.Decimal, decimal.Decimal) error {
	return nil
}

func (m memoryParts) InsertPriceHistory(_ context.Context, e inventory.PriceHistoryEntry) (inventory.PriceHistoryEntry, error) {
	return e, nil
}

type memoryLedger struct{ t *memoryTx }

func (m memoryLedger) InsertEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	if err := m.t.fail("InsertEntry"); err != nil {
		return ledger.Entry{}, err
	}
	for _, existing := range m.t.st.entries {
		if existing.SourceKey == e.SourceKey {
			return ledger.Entry{}, ledger.ErrDuplicateSource
		}
	}
	e.ID = m.t.id()
	m.t.st.entries = append(m.t.st.entries, e)
	return e, nil
}
