package workorders

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-workshop/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-workshop/internal/shared"
)

// Servicer is the slice of Service the HTTP layer needs.
type Servicer interface {
	Create(ctx context.Context, input CreateInput) (Order, error)
	UpdateFields(ctx context.Context, id int64, patch FieldPatch) (Order, error)
	AddItem(ctx context.Context, orderID int64, input ItemInput) (Order, error)
	UpdateItem(ctx context.Context, orderID, itemID int64, patch ItemPatch) (Order, error)
	RemoveItem(ctx context.Context, orderID, itemID int64) (Order, error)
	ReplaceChecklist(ctx context.Context, orderID int64, entries []ChecklistEntry) (Order, error)
	TransitionStatus(ctx context.Context, orderID int64, status string) (Order, error)
	DeleteOrder(ctx context.Context, orderID int64) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
}

// Handler exposes the order lifecycle over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   Servicer
	validator *validator.Validate
}

// NewHandler constructs the order handler.
func NewHandler(logger *slog.Logger, service Servicer) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ListFilter{Page: shared.PageFromQuery(query.Get)}
	if raw := query.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.Status = &status
	}
	orders, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.Create(r.Context(), CreateInput{
		CustomerID:       req.CustomerID,
		VehicleID:        req.VehicleID,
		Description:      req.Description,
		EntryMileage:     req.EntryMileage,
		DeliveryEstimate: req.DeliveryEstimate,
		DiscountPercent:  req.DiscountPercent,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateOrderRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.UpdateFields(r.Context(), id, FieldPatch{
		Description:      req.Description,
		EntryMileage:     req.EntryMileage,
		CustomerID:       req.CustomerID,
		VehicleID:        req.VehicleID,
		DeliveryEstimate: req.DeliveryEstimate,
		DiscountPercent:  req.DiscountPercent,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req statusRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.TransitionStatus(r.Context(), id, req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req itemRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.AddItem(r.Context(), id, ItemInput{
		Kind:        ItemKind(req.Kind),
		PartID:      req.PartID,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, itemID, err := itemPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req itemPatchRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.UpdateItem(r.Context(), id, itemID, ItemPatch{
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, itemID, err := itemPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.RemoveItem(r.Context(), id, itemID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) replaceChecklist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req checklistRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	entries := make([]ChecklistEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, ChecklistEntry{Label: e.Label, Checked: e.Checked, Notes: e.Notes})
	}
	order, err := h.service.ReplaceChecklist(r.Context(), id, entries)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
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
		h.logger.Error("order request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", shared.ErrValidation, name)
	}
	return id, nil
}

func itemPath(r *http.Request) (int64, int64, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		return 0, 0, err
	}
	return id, itemID, nil
}
