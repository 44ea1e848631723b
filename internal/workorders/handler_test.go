package workorders

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-workshop/internal/inventory"
)

// newHTTPFixture serves a real Service over in-memory stores.
func newHTTPFixture(t *testing.T, parts ...inventory.Part) (http.Handler, fixture) {
	t.Helper()
	f := newFixture(t, true, parts...)
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes(r)
	return r, f
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) orderResponse {
	t.Helper()
	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	h, f := newHTTPFixture(t, part(1, 10, 0))

	rec := do(t, h, http.MethodPost, "/orders", `{"description":"Clutch slipping","entry_mileage":120500,"discount_percent":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeOrder(t, rec)
	require.Equal(t, StatusAwaitingApproval, created.Status)
	require.NotNil(t, created.Items)
	path := "/orders/" + itoa(created.ID)

	rec = do(t, h, http.MethodPost, path+"/items", `{"kind":"part","part_id":1,"description":"Clutch kit","quantity":2,"unit_price":"300"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	withItem := decodeOrder(t, rec)
	require.Len(t, withItem.Items, 1)
	require.Equal(t, int64(8), f.repo.part(1).QuantityOnHand)

	itemPath := path + "/items/" + itoa(withItem.Items[0].ID)
	rec = do(t, h, http.MethodPut, itemPath, `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(7), f.repo.part(1).QuantityOnHand)

	rec = do(t, h, http.MethodPut, path+"/checklist", `{"entries":[{"label":"Road test","checked":true}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeOrder(t, rec).Checklist, 1)

	rec = do(t, h, http.MethodPatch, path+"/status", `{"status":"finalized"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	final := decodeOrder(t, rec)
	require.Equal(t, StatusFinalized, final.Status)
	require.NotNil(t, final.FinalizedAt)
	require.True(t, final.GrossTotal.Equal(decimal.NewFromInt(900)))
	require.True(t, final.NetTotal.Equal(decimal.NewFromInt(810)))
	require.Len(t, f.repo.ledgerEntries(), 1)

	rec = do(t, h, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/orders?status=finalized", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	rec = do(t, h, http.MethodDelete, itemPath, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeOrder(t, rec).Items)
	require.Equal(t, int64(10), f.repo.part(1).QuantityOnHand)

	rec = do(t, h, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, path, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestOrderHandlerValidation(t *testing.T) {
	h, f := newHTTPFixture(t)
	o := f.order(t)
	path := "/orders/" + itoa(o.ID)

	cases := []struct {
		name, method, path, body string
	}{
		{"missing description", http.MethodPost, "/orders", `{"entry_mileage":1}`},
		{"unknown field", http.MethodPost, "/orders", `{"description":"x","colour":"red"}`},
		{"bad status", http.MethodPatch, path + "/status", `{"status":"archived"}`},
		{"bad item kind", http.MethodPost, path + "/items", `{"kind":"fee","quantity":1}`},
		{"zero quantity", http.MethodPost, path + "/items", `{"kind":"service","quantity":0}`},
		{"empty patch", http.MethodPut, path, `{}`},
		{"bad id", http.MethodGet, "/orders/abc", ""},
		{"bad list status", http.MethodGet, "/orders?status=lost", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestOrderHandlerNotFound(t *testing.T) {
	h, _ := newHTTPFixture(t)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPatch, "/orders/9/status", `{"status":"in_progress"}`).Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/orders/9", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/orders/9/items/1", "").Code)
}

func TestOrderHandlerHidesInternalErrors(t *testing.T) {
	h, f := newHTTPFixture(t)
	o := f.order(t)
	f.repo.failOn = "UpdateStatus"

	rec := do(t, h, http.MethodPatch, "/orders/"+itoa(o.ID)+"/status", `{"status":"in_progress"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), errInjected.Error())
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

