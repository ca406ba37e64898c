package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
	"github.com/osama-dev255/kilango1v1-sub000/internal/numbering"
	"github.com/osama-dev255/kilango1v1-sub000/internal/service"
	"github.com/osama-dev255/kilango1v1-sub000/internal/settlement"
	"github.com/osama-dev255/kilango1v1-sub000/internal/stockguard"
	"github.com/osama-dev255/kilango1v1-sub000/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	engine := settlement.NewEngine(repo)
	taxRate := decimal.RequireFromString("0.18")
	flows := []settlement.Flow{
		settlement.SalesFlow("INV", taxRate),
		settlement.PurchaseFlow("PO", taxRate),
	}
	deliveryNotes := numbering.NewDayCounter(repo, numbering.DeliveryNoteSeries, "DN", numbering.WithStoreAtomic(true))
	svc := service.New(repo, engine, flows, deliveryNotes, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", nil)
}

func loginToken(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: expected 200, got %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) settlement.View {
	t.Helper()
	var view settlement.View
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode session view: %v", err)
	}
	return view
}

func openSession(t *testing.T, handler http.Handler, token string, flow string) settlement.View {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sessions", token, map[string]string{"flow": flow})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	return decodeView(t, rec)
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestListProductsRequiresToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token := loginToken(t, handler, "cashier", "cashier123")
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Items []domain.Product `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(body.Items) != 5 {
		t.Fatalf("expected 5 seeded products, got %d", len(body.Items))
	}
}

func TestCashSaleOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	view := openSession(t, handler, token, settlement.FlowSales)
	base := "/api/v1/sessions/" + view.ID

	rec := doJSON(t, handler, http.MethodPost, base+"/lines", token, map[string]string{"product_id": "prd-sugar"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add line: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPatch, base+"/lines/prd-sugar", token, map[string]int{"quantity": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("set quantity: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var qty struct {
		Adjustment stockguard.Adjustment `json:"adjustment"`
		Session    settlement.View       `json:"session"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&qty); err != nil {
		t.Fatalf("decode quantity response: %v", err)
	}
	if qty.Adjustment.Quantity != 2 || qty.Adjustment.Capped {
		t.Fatalf("unexpected adjustment: %+v", qty.Adjustment)
	}
	if !qty.Session.Totals.Total.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected total 20, got %s", qty.Session.Totals.Total)
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/checkout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/settle", token, settlement.Payment{Method: domain.PaymentCash, Tendered: decimal.NewFromInt(50)})
	if rec.Code != http.StatusOK {
		t.Fatalf("settle: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var result domain.SettlementResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Header.Change.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected change 30, got %s", result.Header.Change)
	}

	rec = doJSON(t, handler, http.MethodGet, base+"/receipt", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("receipt: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/receipts/"+result.Header.DocumentNumber, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reprint: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var reprint domain.Receipt
	if err := json.NewDecoder(rec.Body).Decode(&reprint); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if reprint.DocumentNumber != result.Header.DocumentNumber || len(reprint.Lines) != 1 {
		t.Fatalf("unexpected reprint: %+v", reprint)
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/acknowledge", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("acknowledge: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if after := decodeView(t, rec); after.State != settlement.StateBuilding || len(after.Lines) != 0 {
		t.Fatalf("expected an empty building cart after acknowledge, got %s with %d lines", after.State, len(after.Lines))
	}
}

func TestDebtOverCreditLimitReturns422(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	view := openSession(t, handler, token, settlement.FlowSales)
	base := "/api/v1/sessions/" + view.ID

	doJSON(t, handler, http.MethodPost, base+"/lines", token, map[string]string{"product_id": "prd-rice"})
	doJSON(t, handler, http.MethodPatch, base+"/lines/prd-rice", token, map[string]int{"quantity": 8})
	rec := doJSON(t, handler, http.MethodPut, base+"/counterparty", token, map[string]string{"id": "cus-walkin"})
	if rec.Code != http.StatusOK {
		t.Fatalf("select counterparty: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	doJSON(t, handler, http.MethodPost, base+"/checkout", token, nil)

	rec = doJSON(t, handler, http.MethodPost, base+"/settle", token, map[string]string{"method": "debt"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, base, token, nil)
	if got := decodeView(t, rec); got.State != settlement.StateAwaitingPayment {
		t.Fatalf("expected session to stay awaiting payment, got %s", got.State)
	}
}

func TestCheckoutOnEmptyCartReturns422AndSettleBeforeCheckoutReturns409(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	view := openSession(t, handler, token, settlement.FlowSales)
	base := "/api/v1/sessions/" + view.ID

	rec := doJSON(t, handler, http.MethodPost, base+"/checkout", token, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty cart, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/settle", token, map[string]string{"method": "card"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 when settling from building, got %d", rec.Code)
	}
}

func TestUnknownSessionAndFlow(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sessions/sess-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sessions", token, map[string]string{"flow": "layaway"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown flow, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/receipts/INV-0", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown receipt, got %d", rec.Code)
	}
}

func TestPurchaseOverHTTPAddsStock(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "admin", "admin123")

	view := openSession(t, handler, token, settlement.FlowPurchases)
	base := "/api/v1/sessions/" + view.ID

	doJSON(t, handler, http.MethodPost, base+"/lines", token, map[string]string{"product_id": "prd-soap"})
	doJSON(t, handler, http.MethodPatch, base+"/lines/prd-soap", token, map[string]int{"quantity": 10})

	rec := doJSON(t, handler, http.MethodPost, base+"/checkout", token, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without supplier, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	doJSON(t, handler, http.MethodPut, base+"/counterparty", token, map[string]string{"id": "sup-mill"})
	rec = doJSON(t, handler, http.MethodPost, base+"/checkout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, base+"/settle", token, map[string]string{"method": "debt"})
	if rec.Code != http.StatusOK {
		t.Fatalf("settle: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var result domain.SettlementResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.StockOutcomes) != 1 || result.StockOutcomes[0].NewQuantity != 13 {
		t.Fatalf("expected soap stock 3 -> 13, got %+v", result.StockOutcomes)
	}
	if result.Debt == nil || result.Debt.CounterpartyID != "sup-mill" {
		t.Fatalf("expected debt against sup-mill, got %+v", result.Debt)
	}
}

func TestDeliveryNoteNumberEndpoint(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/delivery-notes/number", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	day, seq, ok := numbering.Parse("DN", body["document_number"])
	if !ok || seq != 1 || day == "" {
		t.Fatalf("unexpected delivery note number %q", body["document_number"])
	}
}

func TestCloseSessionOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "cashier", "cashier123")

	view := openSession(t, handler, token, settlement.FlowSales)
	rec := doJSON(t, handler, http.MethodDelete, "/api/v1/sessions/"+view.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sessions/"+view.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", rec.Code)
	}
}
