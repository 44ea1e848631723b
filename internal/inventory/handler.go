package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-workshop/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-workshop/internal/shared"
)

// Servicer is the slice of Service the HTTP layer needs.
type Servicer interface {
	GetPart(ctx context.Context, id int64) (Part, error)
	Receive(ctx context.Context, input ReceiveInput) (ReceiveResult, error)
	RecordPrice(ctx context.Context, input PriceInput) (PriceHistoryEntry, error)
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   Servicer
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service Servicer) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Post("/receive", h.receive)
		r.Post("/price-history", h.recordPrice)
	})
}

type receiveRequest struct {
	Quantity      int64           `json:"quantity" validate:"required,gt=0"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Supplier      string          `json:"supplier" validate:"max=120"`
}

type priceRequest struct {
	Price    decimal.Decimal `json:"price"`
	Supplier string          `json:"supplier" validate:"max=120"`
}

type partResponse struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Brand          string          `json:"brand"`
	QuantityOnHand int64           `json:"quantity_on_hand"`
	MinThreshold   int64           `json:"min_threshold"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	Location       string          `json:"location"`
	TotalUsed      int64           `json:"total_used"`
	BelowThreshold bool            `json:"below_threshold"`
}

type priceHistoryResponse struct {
	ID               int64           `json:"id"`
	PartID           int64           `json:"part_id"`
	RecordedAt       time.Time       `json:"recorded_at"`
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	Supplier         string          `json:"supplier"`
	QuantityReceived int64           `json:"quantity_received"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	SalePriceAtTime  decimal.Decimal `json:"sale_price_at_time"`
}

type receiveResponse struct {
	Part           partResponse         `json:"part"`
	History        priceHistoryResponse `json:"price_history"`
	ExpenseEntryID *int64               `json:"expense_entry_id"`
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := partID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	part, err := h.service.GetPart(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPartResponse(part))
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := partID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req receiveRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.Receive(r.Context(), ReceiveInput{
		PartID:         id,
		Qty:            req.Quantity,
		TotalPaid:      req.TotalPaid,
		PurchasePrice:  req.PurchasePrice,
		SalePrice:      req.SalePrice,
		Supplier:       req.Supplier,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := receiveResponse{Part: toPartResponse(result.Part), History: toHistoryResponse(result.History)}
	if result.Expense != nil {
		resp.ExpenseEntryID = &result.Expense.ID
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) recordPrice(w http.ResponseWriter, r *http.Request) {
	id, err := partID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req priceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	history, err := h.service.RecordPrice(r.Context(), PriceInput{PartID: id, Price: req.Price, Supplier: req.Supplier})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toHistoryResponse(history))
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	if err := h.validator.Struct(target); err != nil {
		return fmt.Errorf("%w: %s", shared.ErrValidation, err.Error())
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func partID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid part id", shared.ErrValidation)
	}
	return id, nil
}

func toPartResponse(p Part) partResponse {
	return partResponse{
		ID:             p.ID,
		Name:           p.Name,
		Category:       p.Category,
		Brand:          p.Brand,
		QuantityOnHand: p.QuantityOnHand,
		MinThreshold:   p.MinThreshold,
		PurchasePrice:  p.PurchasePrice,
		SalePrice:      p.SalePrice,
		Location:       p.Location,
		TotalUsed:      p.TotalUsed,
		BelowThreshold: p.BelowThreshold(),
	}
}

func toHistoryResponse(e PriceHistoryEntry) priceHistoryResponse {
	return priceHistoryResponse{
		ID:               e.ID,
		PartID:           e.PartID,
		RecordedAt:       e.RecordedAt,
		PurchasePrice:    e.PurchasePrice,
		Supplier:         e.Supplier,
		QuantityReceived: e.QuantityReceived,
		TotalPaid:        e.TotalPaid,
		SalePriceAtTime:  e.SalePriceAtTime,
	}
}
