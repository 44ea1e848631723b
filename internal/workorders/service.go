package workorders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-workshop/internal/inventory"
	"github.com/odyssey-erp/odyssey-workshop/internal/ledger"
	"github.com/odyssey-erp/odyssey-workshop/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
}

// CachePort is the read cache in front of Get and List.
type CachePort interface {
	Order(ctx context.Context, id int64, load func(context.Context) (Order, error)) (Order, error)
	List(ctx context.Context, filter ListFilter, load func(context.Context) ([]Order, error)) ([]Order, error)
	Invalidate(ctx context.Context) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditEntry) error
}

// ServiceConfig groups order policy settings.
type ServiceConfig struct {
	MaxDiscountPercent decimal.Decimal
}

// Options carries optional collaborators. Nil members are skipped.
type Options struct {
	Cache    CachePort
	Audit    AuditPort
	Notifier inventory.LowStockNotifier
	Metrics  shared.MetricsRecorder
	Logger   *slog.Logger
}

// Service orchestrates order lifecycle operations.
type Service struct {
	repo        RepositoryPort
	adjuster    *inventory.Adjuster
	maxDiscount decimal.Decimal
	cache       CachePort
	audit       AuditPort
	notifier    inventory.LowStockNotifier
	metrics     shared.MetricsRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds the lifecycle service. Stock moves go through adjuster on
// the order's transaction.
func NewService(repo RepositoryPort, adjuster *inventory.Adjuster, cfg ServiceConfig, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	maxDiscount := cfg.MaxDiscountPercent
	if !maxDiscount.IsPositive() {
		maxDiscount = decimal.NewFromInt(100)
	}
	return &Service{
		repo:        repo,
		adjuster:    adjuster,
		maxDiscount: maxDiscount,
		cache:       opts.Cache,
		audit:       opts.Audit,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// movement is a committed stock change reported after commit.
type movement struct {
	direction string
	qty       int64
	part      inventory.Part
}

// unitOfWork collects what must happen once the transaction has committed.
type unitOfWork struct {
	moves   []movement
	revenue *ledger.Entry
}

func (u *unitOfWork) deducted(p inventory.Part, qty int64) {
	u.moves = append(u.moves, movement{direction: inventory.DirectionOut, qty: qty, part: p})
}

func (u *unitOfWork) restored(p inventory.Part, qty int64) {
	u.moves = append(u.moves, movement{direction: inventory.DirectionIn, qty: qty, part: p})
}

// Create opens a new order awaiting approval.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if err := input.validate(s.maxDiscount); err != nil {
		return Order{}, err
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.InsertOrder(ctx, Order{
			CustomerID:       input.CustomerID,
			VehicleID:        input.VehicleID,
			Status:           StatusAwaitingApproval,
			OpenedAt:         s.now().UTC(),
			DeliveryEstimate: input.DeliveryEstimate,
			Description:      input.Description,
			EntryMileage:     input.EntryMileage,
			DiscountPercent:  input.DiscountPercent,
		})
		return err
	})
	if err != nil {
		return Order{}, err
	}
	order.Items = []Item{}
	order.Checklist = []ChecklistEntry{}
	s.afterCommit(ctx, unitOfWork{}, shared.AuditEntry{
		Action:   shared.AuditOrderCreated,
		Entity:   "service_order",
		EntityID: order.ID,
		Meta:     map[string]any{"number": order.Number},
	})
	s.logger.Info("order created", slog.Int64("order_id", order.ID), slog.Int64("number", order.Number))
	return order, nil
}

// UpdateFields applies a partial update of the order header.
func (s *Service) UpdateFields(ctx context.Context, id int64, patch FieldPatch) (Order, error) {
	if err := patch.validate(s.maxDiscount); err != nil {
		return Order{}, err
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateFields(ctx, id, patch); err != nil {
			return err
		}
		var err error
		order, err = tx.Load(ctx, id)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, unitOfWork{}, shared.AuditEntry{
		Action:   shared.AuditOrderUpdated,
		Entity:   "service_order",
		EntityID: id,
		Meta:     patch.auditMeta(),
	})
	return order, nil
}

// AddItem inserts a line and, for parts, deducts stock in the same transaction.
func (s *Service) AddItem(ctx context.Context, orderID int64, input ItemInput) (Order, error) {
	if err := input.validate(); err != nil {
		return Order{}, err
	}
	var (
		order Order
		uow   unitOfWork
		added Item
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetOrderForUpdate(ctx, orderID); err != nil {
			return err
		}
		item, err := tx.InsertItem(ctx, Item{
			OrderID:     orderID,
			Kind:        input.Kind,
			PartID:      input.PartID,
			Description: input.Description,
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
		})
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		added = item
		if item.IsPart() {
			part, err := s.adjuster.Deduct(ctx, tx.Parts(), *item.PartID, item.Quantity)
			if err != nil {
				return err
			}
			uow.deducted(part, item.Quantity)
		}
		order, err = tx.Load(ctx, orderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, uow, shared.AuditEntry{
		Action:   shared.AuditItemAdded,
		Entity:   "service_order",
		EntityID: orderID,
		Meta:     itemMeta(added, added.Quantity),
	})
	return order, nil
}

// UpdateItem edits a line. A quantity change on a part line moves the
// difference in or out of stock.
func (s *Service) UpdateItem(ctx context.Context, orderID, itemID int64, patch ItemPatch) (Order, error) {
	if err := patch.validate(); err != nil {
		return Order{}, err
	}
	var (
		order    Order
		uow      unitOfWork
		updated  Item
		qtyDelta int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetOrderForUpdate(ctx, orderID); err != nil {
			return err
		}
		item, err := tx.GetItemForUpdate(ctx, orderID, itemID)
		if err != nil {
			return err
		}
		delta := int64(0)
		if patch.Quantity != nil {
			delta = *patch.Quantity - item.Quantity
			item.Quantity = *patch.Quantity
		}
		if patch.Description != nil {
			item.Description = *patch.Description
		}
		if patch.UnitPrice != nil {
			item.UnitPrice = *patch.UnitPrice
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		updated, qtyDelta = item, delta
		if item.IsPart() {
			switch {
			case delta > 0:
				part, err := s.adjuster.Deduct(ctx, tx.Parts(), *item.PartID, delta)
				if err != nil {
					return err
				}
				uow.deducted(part, delta)
			case delta < 0:
				part, err := s.adjuster.Restore(ctx, tx.Parts(), *item.PartID, -delta)
				if err != nil {
					return err
				}
				uow.restored(part, -delta)
			}
		}
		order, err = tx.Load(ctx, orderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, uow, shared.AuditEntry{
		Action:   shared.AuditItemUpdated,
		Entity:   "service_order",
		EntityID: orderID,
		Meta:     itemMeta(updated, qtyDelta),
	})
	return order, nil
}

// RemoveItem deletes a line and, for parts, restores its stock.
func (s *Service) RemoveItem(ctx context.Context, orderID, itemID int64) (Order, error) {
	var (
		order   Order
		uow     unitOfWork
		removed Item
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetOrderForUpdate(ctx, orderID); err != nil {
			return err
		}
		item, err := tx.GetItemForUpdate(ctx, orderID, itemID)
		if err != nil {
			return err
		}
		removed = item
		if err := tx.DeleteItem(ctx, orderID, itemID); err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		if item.IsPart() {
			part, err := s.adjuster.Restore(ctx, tx.Parts(), *item.PartID, item.Quantity)
			if err != nil {
				return err
			}
			uow.restored(part, item.Quantity)
		}
		order, err = tx.Load(ctx, orderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, uow, shared.AuditEntry{
		Action:   shared.AuditItemRemoved,
		Entity:   "service_order",
		EntityID: orderID,
		Meta:     itemMeta(removed, -removed.Quantity),
	})
	return order, nil
}

// ReplaceChecklist swaps the whole checklist atomically.
func (s *Service) ReplaceChecklist(ctx context.Context, orderID int64, entries []ChecklistEntry) (Order, error) {
	for _, e := range entries {
		if e.Label == "" {
			return Order{}, fmt.Errorf("%w: checklist label is required", shared.ErrValidation)
		}
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetOrderForUpdate(ctx, orderID); err != nil {
			return err
		}
		if err := tx.DeleteChecklist(ctx, orderID); err != nil {
			return fmt.Errorf("clear checklist: %w", err)
		}
		for _, e := range entries {
			e.OrderID = orderID
			if _, err := tx.InsertChecklistEntry(ctx, e); err != nil {
				return fmt.Errorf("insert checklist entry: %w", err)
			}
		}
		var err error
		order, err = tx.Load(ctx, orderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, unitOfWork{}, shared.AuditEntry{
		Action:   shared.AuditChecklist,
		Entity:   "service_order",
		EntityID: orderID,
		Meta:     map[string]any{"entries": len(entries)},
	})
	return order, nil
}

// TransitionStatus moves an order to raw. The first entry into finalized
// stamps finalized_at and books the gross total as revenue.
func (s *Service) TransitionStatus(ctx context.Context, orderID int64, raw string) (Order, error) {
	to, err := ParseStatus(raw)
	if err != nil {
		return Order{}, err
	}
	var (
		order Order
		uow   unitOfWork
		from  Status
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from = current.Status
		switch PlanTransition(current.Status, to) {
		case EffectBookRevenue:
			now := s.now().UTC()
			if err := tx.UpdateStatus(ctx, orderID, to, &now); err != nil {
				return err
			}
			if err := s.bookRevenue(ctx, tx, current, now, &uow); err != nil {
				return err
			}
		default:
			if err := tx.UpdateStatus(ctx, orderID, to, nil); err != nil {
				return err
			}
		}
		order, err = tx.Load(ctx, orderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, uow, shared.AuditEntry{
		Action:   shared.AuditOrderStatus,
		Entity:   "service_order",
		EntityID: orderID,
		Meta:     map[string]any{"from": string(from), "to": string(to)},
	})
	return order, nil
}

func (s *Service) bookRevenue(ctx context.Context, tx TxRepository, order Order, now time.Time, uow *unitOfWork) error {
	items, err := tx.ListItems(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	order.Items = items
	total := order.GrossTotal()
	if !total.IsPositive() {
		return nil
	}
	entry := ledger.PaidNow(ledger.TypeRevenue, ledger.CategoryOrderRevenue,
		fmt.Sprintf("Order #%d", order.Number), total, now)
	entry.LinkedOrderID = &order.ID
	entry.SourceKey = ledger.SourceKey("order-revenue", order.ID)
	saved, err := ledger.Append(ctx, tx.Ledger(), entry)
	if errors.Is(err, ledger.ErrDuplicateSource) {
		// Reopened and finalized again: the revenue is already on the books.
		s.logger.Info("order revenue already booked", slog.Int64("order_id", order.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("book revenue: %w", err)
	}
	uow.revenue = &saved
	return nil
}

// DeleteOrder restores stock for every part line and removes the order, in
// one transaction.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64) error {
	var uow unitOfWork
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetOrderForUpdate(ctx, orderID); err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, orderID)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		for _, it := range items {
			if !it.IsPart() {
				continue
			}
			part, err := s.adjuster.Restore(ctx, tx.Parts(), *it.PartID, it.Quantity)
			if err != nil {
				return fmt.Errorf("restore item %d: %w", it.ID, err)
			}
			uow.restored(part, it.Quantity)
		}
		return tx.DeleteOrder(ctx, orderID)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, uow, shared.AuditEntry{
		Action:   shared.AuditOrderDeleted,
		Entity:   "service_order",
		EntityID: orderID,
	})
	return nil
}

// Get returns a rehydrated order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	if id <= 0 {
		return Order{}, ErrOrderNotFound
	}
	if s.cache == nil {
		return s.repo.Get(ctx, id)
	}
	return s.cache.Order(ctx, id, func(ctx context.Context) (Order, error) {
		return s.repo.Get(ctx, id)
	})
}

// List returns orders newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Page.Limit <= 0 || filter.Page.Limit > shared.MaxPageSize {
		filter.Page.Limit = shared.DefaultPageSize
	}
	if filter.Page.Offset < 0 {
		filter.Page.Offset = 0
	}
	if s.cache == nil {
		return s.repo.List(ctx, filter)
	}
	return s.cache.List(ctx, filter, func(ctx context.Context) ([]Order, error) {
		return s.repo.List(ctx, filter)
	})
}

// itemMeta describes a line change for the audit trail. delta is the signed
// quantity change applied to the line.
func itemMeta(it Item, delta int64) map[string]any {
	meta := map[string]any{
		"item_id":   it.ID,
		"kind":      string(it.Kind),
		"qty_delta": delta,
	}
	if it.PartID != nil {
		meta["part_id"] = *it.PartID
	}
	return meta
}

// afterCommit runs the non-transactional follow-ups of a committed change.
// Failures here are logged; the change itself already stands.
func (s *Service) afterCommit(ctx context.Context, uow unitOfWork, entry shared.AuditEntry) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate order cache", slog.Any("error", err))
		}
	}
	at := s.now().UTC()
	for _, m := range uow.moves {
		if s.metrics != nil {
			s.metrics.StockMoved(m.direction, m.qty)
		}
		if m.direction != inventory.DirectionOut || s.notifier == nil {
			continue
		}
		if evt, ok := inventory.LowStockEventFor(m.part, at); ok {
			if err := s.notifier.NotifyLowStock(ctx, evt); err != nil {
				s.logger.Warn("low stock notification", slog.Int64("part_id", evt.PartID), slog.Any("error", err))
			}
		}
	}
	if uow.revenue != nil {
		if s.metrics != nil {
			s.metrics.LedgerEntryBooked(string(ledger.TypeRevenue), ledger.CategoryOrderRevenue)
		}
		s.logger.Info("order revenue booked",
			slog.Int64("order_id", *uow.revenue.LinkedOrderID),
			slog.String("amount", uow.revenue.Amount.String()))
	}
	if s.audit != nil && entry.Action != "" {
		entry.At = at
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn("audit record", slog.String("action", entry.Action), slog.Any("error", err))
		}
	}
}
