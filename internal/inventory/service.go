package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-workshop/internal/ledger"
	"github.com/odyssey-erp/odyssey-workshop/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.Store) error) error
	GetPart(ctx context.Context, id int64) (Part, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditEntry) error
}

// IdempotencyPort guards against double submission of receipts.
type IdempotencyPort interface {
	Claim(ctx context.Context, scope, key string) error
	Release(ctx context.Context, scope, key string) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

const receiveScope = "inventory.receive"

// Service coordinates stock receipts and price changes.
type Service struct {
	repo        RepositoryPort
	adjuster    *Adjuster
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     shared.MetricsRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service. audit, idem and metrics may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig, metrics shared.MetricsRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		adjuster:    NewAdjuster(cfg),
		audit:       audit,
		idempotency: idem,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Adjuster returns the stock adjuster configured with the service policy.
func (s *Service) Adjuster() *Adjuster {
	return s.adjuster
}

// GetPart returns a part by id.
func (s *Service) GetPart(ctx context.Context, id int64) (Part, error) {
	if id <= 0 {
		return Part{}, ErrPartNotFound
	}
	return s.repo.GetPart(ctx, id)
}

// Receive books purchased stock: quantity, prices, a price history row and
// an expense entry commit together or not at all.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (ReceiveResult, error) {
	if input.Qty <= 0 {
		return ReceiveResult{}, ErrInvalidQuantity
	}
	if input.TotalPaid.IsNegative() {
		return ReceiveResult{}, ErrInvalidAmount
	}
	if input.PurchasePrice.IsNegative() || input.SalePrice.IsNegative() {
		return ReceiveResult{}, ErrInvalidPrice
	}
	var release func()
	if input.IdempotencyKey != "" && s.idempotency != nil {
		key := fmt.Sprintf("%d:%s", input.PartID, input.IdempotencyKey)
		if err := s.idempotency.Claim(ctx, receiveScope, key); err != nil {
			return ReceiveResult{}, err
		}
		release = func() {
			if err := s.idempotency.Release(context.WithoutCancel(ctx), receiveScope, key); err != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", err))
			}
		}
	}

	now := s.now().UTC()
	var result ReceiveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, book ledger.Store) error {
		part, err := tx.GetPartForUpdate(ctx, input.PartID)
		if err != nil {
			return err
		}
		part.QuantityOnHand += input.Qty
		if err := tx.UpdateStock(ctx, part); err != nil {
			return fmt.Errorf("update stock: %w", err)
		}
		if err := tx.UpdatePricing(ctx, part.ID, input.PurchasePrice, input.SalePrice); err != nil {
			return fmt.Errorf("update pricing: %w", err)
		}
		part.PurchasePrice = input.PurchasePrice
		part.SalePrice = input.SalePrice

		history, err := tx.InsertPriceHistory(ctx, PriceHistoryEntry{
			PartID:           part.ID,
			RecordedAt:       now,
			PurchasePrice:    input.PurchasePrice,
			Supplier:         input.Supplier,
			QuantityReceived: input.Qty,
			TotalPaid:        input.TotalPaid,
			SalePriceAtTime:  input.SalePrice,
		})
		if err != nil {
			return fmt.Errorf("insert price history: %w", err)
		}
		result = ReceiveResult{Part: part, History: history}

		// Free stock books no expense: ledger entries must be positive.
		if !input.TotalPaid.IsPositive() {
			return nil
		}
		entry := ledger.PaidNow(ledger.TypeExpense, ledger.CategoryPartPurchase,
			fmt.Sprintf("Purchase: %s (%d un.)", part.Name, input.Qty), input.TotalPaid, now)
		entry.SourceKey = ledger.SourceKey("part-receipt", history.ID)
		saved, err := ledger.Append(ctx, book, entry)
		if err != nil {
			return fmt.Errorf("book expense: %w", err)
		}
		result.Expense = &saved
		return nil
	})
	if err != nil {
		if release != nil {
			release()
		}
		return ReceiveResult{}, err
	}

	if s.metrics != nil {
		s.metrics.StockMoved(DirectionReceive, input.Qty)
		if result.Expense != nil {
			s.metrics.LedgerEntryBooked(string(ledger.TypeExpense), ledger.CategoryPartPurchase)
		}
	}
	s.record(ctx, shared.AuditEntry{
		Action:   shared.AuditInventoryReceive,
		Entity:   "part",
		EntityID: input.PartID,
		Meta: map[string]any{
			"qty":        input.Qty,
			"total_paid": input.TotalPaid.String(),
			"supplier":   input.Supplier,
		},
		At: now,
	})
	s.logger.Info("stock received",
		slog.Int64("part_id", input.PartID),
		slog.Int64("qty", input.Qty),
		slog.Int64("on_hand", result.Part.QuantityOnHand),
		slog.String("total_paid", input.TotalPaid.String()))
	return result, nil
}

// RecordPrice changes the purchase price outside a receipt and logs it in
// the price history. Quantity and the ledger are untouched.
func (s *Service) RecordPrice(ctx context.Context, input PriceInput) (PriceHistoryEntry, error) {
	if input.Price.IsNegative() {
		return PriceHistoryEntry{}, ErrInvalidPrice
	}
	now := s.now().UTC()
	var history PriceHistoryEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.Store) error {
		part, err := tx.GetPartForUpdate(ctx, input.PartID)
		if err != nil {
			return err
		}
		if err := tx.UpdatePricing(ctx, part.ID, input.Price, part.SalePrice); err != nil {
			return fmt.Errorf("update pricing: %w", err)
		}
		history, err = tx.InsertPriceHistory(ctx, PriceHistoryEntry{
			PartID:          part.ID,
			RecordedAt:      now,
			PurchasePrice:   input.Price,
			Supplier:        input.Supplier,
			SalePriceAtTime: part.SalePrice,
		})
		if err != nil {
			return fmt.Errorf("insert price history: %w", err)
		}
		return nil
	})
	if err != nil {
		return PriceHistoryEntry{}, err
	}
	s.record(ctx, shared.AuditEntry{
		Action:   shared.AuditInventoryPrice,
		Entity:   "part",
		EntityID: input.PartID,
		Meta:     map[string]any{"price": input.Price.String(), "supplier": input.Supplier},
		At:       now,
	})
	return history, nil
}

func (s *Service) record(ctx context.Context, entry shared.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
