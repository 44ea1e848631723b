package workorders

import (
	"time"

	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	CustomerID       *int64          `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	VehicleID        *int64          `json:"vehicle_id,omitempty" validate:"omitempty,gt=0"`
	Description      string          `json:"description" validate:"required,max=2000"`
	EntryMileage     int64           `json:"entry_mileage" validate:"gte=0"`
	DeliveryEstimate *time.Time      `json:"delivery_estimate,omitempty"`
	DiscountPercent  decimal.Decimal `json:"discount_percent"`
}

type updateOrderRequest struct {
	CustomerID       *int64           `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	VehicleID        *int64           `json:"vehicle_id,omitempty" validate:"omitempty,gt=0"`
	Description      *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	EntryMileage     *int64           `json:"entry_mileage,omitempty" validate:"omitempty,gte=0"`
	DeliveryEstimate *time.Time       `json:"delivery_estimate,omitempty"`
	DiscountPercent  *decimal.Decimal `json:"discount_percent,omitempty"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type itemRequest struct {
	Kind        string          `json:"kind" validate:"required,oneof=part service"`
	PartID      *int64          `json:"part_id,omitempty" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"max=500"`
	Quantity    int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type itemPatchRequest struct {
	Description *string          `json:"description,omitempty" validate:"omitempty,max=500"`
	Quantity    *int64           `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
}

type checklistEntryRequest struct {
	Label   string `json:"label" validate:"required,max=200"`
	Checked bool   `json:"checked"`
	Notes   string `json:"notes" validate:"max=1000"`
}

type checklistRequest struct {
	Entries []checklistEntryRequest `json:"entries" validate:"dive"`
}

type orderResponse struct {
	ID               int64                    `json:"id"`
	Number           int64                    `json:"number"`
	CustomerID       *int64                   `json:"customer_id"`
	VehicleID        *int64                   `json:"vehicle_id"`
	Status           Status                   `json:"status"`
	OpenedAt         time.Time                `json:"opened_at"`
	FinalizedAt      *time.Time               `json:"finalized_at"`
	DeliveryEstimate *time.Time               `json:"delivery_estimate"`
	Description      string                   `json:"description"`
	EntryMileage     int64                    `json:"entry_mileage"`
	DiscountPercent  decimal.Decimal          `json:"discount_percent"`
	GrossTotal       decimal.Decimal          `json:"gross_total"`
	NetTotal         decimal.Decimal          `json:"net_total"`
	Items            []itemResponse           `json:"items"`
	Checklist        []checklistEntryResponse `json:"checklist"`
}

type itemResponse struct {
	ID          int64           `json:"id"`
	Kind        ItemKind        `json:"kind"`
	PartID      *int64          `json:"part_id"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type checklistEntryResponse struct {
	ID      int64  `json:"id"`
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
	Notes   string `json:"notes"`
}

func toOrderResponse(o Order) orderResponse {
	resp := orderResponse{
		ID:               o.ID,
		Number:           o.Number,
		CustomerID:       o.CustomerID,
		VehicleID:        o.VehicleID,
		Status:           o.Status,
		OpenedAt:         o.OpenedAt,
		FinalizedAt:      o.FinalizedAt,
		DeliveryEstimate: o.DeliveryEstimate,
		Description:      o.Description,
		EntryMileage:     o.EntryMileage,
		DiscountPercent:  o.DiscountPercent,
		GrossTotal:       o.GrossTotal(),
		NetTotal:         o.NetTotal(),
		Items:            make([]itemResponse, 0, len(o.Items)),
		Checklist:        make([]checklistEntryResponse, 0, len(o.Checklist)),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, itemResponse{
			ID:          it.ID,
			Kind:        it.Kind,
			PartID:      it.PartID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal(),
		})
	}
	for _, e := range o.Checklist {
		resp.Checklist = append(resp.Checklist, checklistEntryResponse{ID: e.ID, Label: e.Label, Checked: e.Checked, Notes: e.Notes})
	}
	return resp
}

func toOrderResponses(orders []Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}
