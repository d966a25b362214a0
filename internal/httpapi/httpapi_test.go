package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tiendaluna/backend/internal/cache"
	"tiendaluna/backend/internal/domain"
	"tiendaluna/backend/internal/notify"
	"tiendaluna/backend/internal/service"
	"tiendaluna/backend/internal/store/memory"
)

func newTestAPI() *API {
	repo := memory.New()
	repo.SeedProducts(
		domain.Product{ID: 1, Description: "Linen shirt", UnitPrice: decimal.NewFromInt(45), OnHand: 5},
	)
	svc := service.New(repo, cache.NoopTrackingCache{}, notify.NoopNotifier{}, 5*time.Second)
	tokens := NewTrackingTokenManager("test-secret-at-least-32-characters!!", time.Hour)
	return New(svc, tokens, "http://127.0.0.1:3000")
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Staff-Actor", "clerk-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func getPath(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createOrderPayload() map[string]any {
	return map[string]any{
		"customer_name":    "Ana Torres",
		"customer_phone":   "+34-600-111-222",
		"channel":          "web",
		"payment_method":   "card",
		"delivery_address": "Calle Mayor 12, Madrid",
		"delivery_window":  "2026-09-03 10:00-14:00",
		"items": []map[string]any{
			{"product_id": 1, "quantity": 2, "unit_price": "45.00"},
		},
	}
}

type createdOrder struct {
	Order         domain.OrderConfirmation `json:"order"`
	TrackingToken string                   `json:"tracking_token"`
}

func mustCreateOrder(t *testing.T, handler http.Handler) createdOrder {
	t.Helper()
	rec := postJSON(t, handler, "/api/v1/orders", createOrderPayload())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order returned %d: %s", rec.Code, rec.Body.String())
	}
	var created createdOrder
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return created
}

func TestHealthz(t *testing.T) {
	handler := newTestAPI().Handler()
	rec := getPath(handler, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", rec.Code)
	}
}

func TestCreateAndFetchOrder(t *testing.T) {
	handler := newTestAPI().Handler()
	created := mustCreateOrder(t, handler)

	if created.Order.OrderNumber == "" || created.TrackingToken == "" {
		t.Fatalf("expected order number and tracking token, got %+v", created)
	}

	rec := getPath(handler, "/api/v1/orders/"+created.Order.OrderID)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch order returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateOrderValidationError(t *testing.T) {
	handler := newTestAPI().Handler()

	payload := createOrderPayload()
	payload["channel"] = "carrier-pigeon"
	rec := postJSON(t, handler, "/api/v1/orders", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["code"] != "validation" {
		t.Fatalf("expected validation code, got %v", body["code"])
	}
}

func TestCreateOrderStockConflict(t *testing.T) {
	handler := newTestAPI().Handler()

	payload := createOrderPayload()
	payload["items"] = []map[string]any{
		{"product_id": 1, "quantity": 99, "unit_price": "45.00"},
	}
	rec := postJSON(t, handler, "/api/v1/orders", payload)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["code"] != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock code, got %v", body["code"])
	}
}

func TestTransitionEndpoint(t *testing.T) {
	handler := newTestAPI().Handler()
	created := mustCreateOrder(t, handler)

	rec := postJSON(t, handler, "/api/v1/orders/"+created.Order.OrderID+"/transition", map[string]any{
		"target_status": "processing",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("transition returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.TransitionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode transition response: %v", err)
	}
	if resp.PreviousStatus != "pending" || resp.NewStatus != "processing" {
		t.Fatalf("unexpected transition response: %+v", resp)
	}

	// Skipping straight to delivered is illegal.
	rec = postJSON(t, handler, "/api/v1/orders/"+created.Order.OrderID+"/transition", map[string]any{
		"target_status": "delivered",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["code"] != "illegal_transition" {
		t.Fatalf("expected illegal_transition code, got %v", body["code"])
	}
}

func TestTransitionUnknownOrder(t *testing.T) {
	handler := newTestAPI().Handler()

	rec := postJSON(t, handler, "/api/v1/orders/ord-missing/transition", map[string]any{
		"target_status": "processing",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTrackByToken(t *testing.T) {
	handler := newTestAPI().Handler()
	created := mustCreateOrder(t, handler)

	rec := getPath(handler, "/api/v1/track?token="+created.TrackingToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("track by token returned %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode track response: %v", err)
	}
	if body["order_number"] != created.Order.OrderNumber {
		t.Fatalf("expected order %s, got %v", created.Order.OrderNumber, body["order_number"])
	}
	if _, exposed := body["customer_phone"]; exposed {
		t.Fatalf("tracking response must not expose customer details")
	}
}

func TestTrackByPhone(t *testing.T) {
	handler := newTestAPI().Handler()
	created := mustCreateOrder(t, handler)

	path := fmt.Sprintf("/api/v1/track?order_number=%s&phone=%s", created.Order.OrderNumber, "%2B34-600-111-222")
	rec := getPath(handler, path)
	if rec.Code != http.StatusOK {
		t.Fatalf("track by phone returned %d: %s", rec.Code, rec.Body.String())
	}

	// Wrong phone is indistinguishable from a missing order.
	path = fmt.Sprintf("/api/v1/track?order_number=%s&phone=000", created.Order.OrderNumber)
	rec = getPath(handler, path)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for wrong phone, got %d", rec.Code)
	}
}

func TestTrackRejectsBadToken(t *testing.T) {
	handler := newTestAPI().Handler()

	rec := getPath(handler, "/api/v1/track?token=not-a-real-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSequenceResyncEndpoint(t *testing.T) {
	handler := newTestAPI().Handler()

	rec := postJSON(t, handler, "/api/v1/sequences/order_number/resync", map[string]any{"floor": 250})
	if rec.Code != http.StatusOK {
		t.Fatalf("resync returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.ResyncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode resync response: %v", err)
	}
	if resp.Sequence != "order_number" || resp.LastValue != 250 {
		t.Fatalf("unexpected resync response: %+v", resp)
	}

	rec = postJSON(t, handler, "/api/v1/sequences/customer_number/resync", map[string]any{"floor": 10})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown sequence, got %d", rec.Code)
	}
}

func TestOrderStatsEndpoint(t *testing.T) {
	handler := newTestAPI().Handler()
	mustCreateOrder(t, handler)

	rec := getPath(handler, "/api/v1/orders/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats returned %d: %s", rec.Code, rec.Body.String())
	}

	var counts domain.StatusCounts
	if err := json.Unmarshal(rec.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if counts.Pending != 1 || counts.Total != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestAuditLogsEndpoint(t *testing.T) {
	handler := newTestAPI().Handler()
	mustCreateOrder(t, handler)

	rec := getPath(handler, "/api/v1/audit-logs")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit-logs returned %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		AuditLogs []domain.AuditLog `json:"audit_logs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode audit logs: %v", err)
	}
	if len(body.AuditLogs) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(body.AuditLogs))
	}
	if body.AuditLogs[0].Actor != "clerk-1" {
		t.Fatalf("expected actor clerk-1, got %s", body.AuditLogs[0].Actor)
	}
}

func TestOrderListRequiresCustomerID(t *testing.T) {
	handler := newTestAPI().Handler()

	rec := getPath(handler, "/api/v1/orders")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without customer_id, got %d", rec.Code)
	}
	rec = getPath(handler, "/api/v1/orders?customer_id=abc")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad customer_id, got %d", rec.Code)
	}
}

func TestTrackingTokenRoundTrip(t *testing.T) {
	manager := NewTrackingTokenManager("test-secret-at-least-32-characters!!", time.Hour)

	token, err := manager.Issue("ORD-00000042")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	orderNumber, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if orderNumber != "ORD-00000042" {
		t.Fatalf("expected ORD-00000042, got %s", orderNumber)
	}

	other := NewTrackingTokenManager("another-secret-also-32-characters!!!", time.Hour)
	if _, err := other.Verify(token); err == nil {
		t.Fatalf("token signed with a different secret must not verify")
	}
}
