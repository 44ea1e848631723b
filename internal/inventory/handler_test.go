package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-workshop/internal/ledger"
)

type stubServicer struct {
	part     Part
	received ReceiveInput
	price    PriceInput
	err      error
}

func (s *stubServicer) GetPart(_ context.Context, id int64) (Part, error) {
	if s.err != nil {
		return Part{}, s.err
	}
	p := s.part
	p.ID = id
	return p, nil
}

func (s *stubServicer) Receive(_ context.Context, input ReceiveInput) (ReceiveResult, error) {
	s.received = input
	if s.err != nil {
		return ReceiveResult{}, s.err
	}
	p := s.part
	p.QuantityOnHand += input.Qty
	return ReceiveResult{
		Part:    p,
		History: PriceHistoryEntry{ID: 3, PartID: input.PartID, QuantityReceived: input.Qty, TotalPaid: input.TotalPaid},
		Expense: &ledger.Entry{ID: 42},
	}, nil
}

func (s *stubServicer) RecordPrice(_ context.Context, input PriceInput) (PriceHistoryEntry, error) {
	s.price = input
	if s.err != nil {
		return PriceHistoryEntry{}, s.err
	}
	return PriceHistoryEntry{ID: 8, PartID: input.PartID, PurchasePrice: input.Price}, nil
}

func newTestRouter(svc Servicer) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	return r
}

func TestHandlerReceive(t *testing.T) {
	svc := &stubServicer{part: Part{ID: 1, Name: "Oil filter", QuantityOnHand: 10}}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/inventory/1/receive",
		strings.NewReader(`{"quantity":5,"total_paid":"100","purchase_price":"18","sale_price":"36","supplier":"Auto Supply Co"}`))
	req.Header.Set("Idempotency-Key", "grn-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(1), svc.received.PartID)
	require.Equal(t, int64(5), svc.received.Qty)
	require.True(t, svc.received.TotalPaid.Equal(decimal.NewFromInt(100)))
	require.Equal(t, "grn-1", svc.received.IdempotencyKey)

	var body receiveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(15), body.Part.QuantityOnHand)
	require.NotNil(t, body.ExpenseEntryID)
	require.Equal(t, int64(42), *body.ExpenseEntryID)
}

func TestHandlerReceiveRejectsBadInput(t *testing.T) {
	router := newTestRouter(&stubServicer{})
	cases := map[string]string{
		"zero quantity": `{"quantity":0,"total_paid":"10"}`,
		"unknown field": `{"quantity":1,"total_paid":"10","discount":"3"}`,
		"malformed":     `{"quantity":`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inventory/1/receive", strings.NewReader(payload)))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestHandlerRecordPrice(t *testing.T) {
	svc := &stubServicer{}
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inventory/7/price-history",
		strings.NewReader(`{"price":"12.40","supplier":"Parts Hub"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, int64(7), svc.price.PartID)
	require.True(t, svc.price.Price.Equal(decimal.RequireFromString("12.40")))
}

func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: ErrPartNotFound, status: http.StatusNotFound},
		{name: "oversell", err: ErrInsufficientStock, status: http.StatusBadRequest},
		{name: "internal", err: errors.New("connection reset"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubServicer{err: tc.err})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/1", nil))
			require.Equal(t, tc.status, rec.Code)
			require.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestHandlerInvalidPartID(t *testing.T) {
	router := newTestRouter(&stubServicer{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
