package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tiendaluna/backend/internal/domain"
	"tiendaluna/backend/internal/service"
	"tiendaluna/backend/internal/store"
)

type API struct {
	service       *service.Service
	tokens        *TrackingTokenManager
	allowedOrigin string
}

func New(svc *service.Service, tokens *TrackingTokenManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		tokens:        tokens,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/track", a.handleTrack)

	mux.HandleFunc("/api/v1/orders", a.handleOrders)
	mux.HandleFunc("/api/v1/orders/stats", a.handleOrderStats)
	mux.HandleFunc("/api/v1/orders/", a.handleOrderActions)
	mux.HandleFunc("/api/v1/sequences/", a.handleSequenceActions)
	mux.HandleFunc("/api/v1/audit-logs", a.handleAuditLogs)

	return a.withMiddleware(mux)
}

// withActor records the staff identity asserted by the upstream gateway.
// Anonymous calls run as "system".
func withActor(r *http.Request) *http.Request {
	name := strings.TrimSpace(r.Header.Get("X-Staff-Actor"))
	if name == "" {
		return r
	}
	return r.WithContext(service.WithActor(r.Context(), domain.Actor{Name: name}))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleOrderCreate(w, withActor(r))
	case http.MethodGet:
		a.handleOrderList(w, r)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOrderCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	confirmation, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token, err := a.tokens.Issue(confirmation.OrderNumber)
	if err != nil {
		log.Printf("[httpapi] WARN: failed to issue tracking token order=%s: %v", confirmation.OrderNumber, err)
		token = ""
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"order":          confirmation,
		"tracking_token": token,
	})
}

func (a *API) handleOrderList(w http.ResponseWriter, r *http.Request) {
	rawCustomerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))
	if rawCustomerID == "" {
		writeError(w, http.StatusBadRequest, errors.New("customer_id required"))
		return
	}
	customerID, err := strconv.ParseInt(rawCustomerID, 10, 64)
	if err != nil || customerID < 1 {
		writeError(w, http.StatusBadRequest, errors.New("customer_id must be a positive integer"))
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)

	orders, err := a.service.ListOrdersByCustomer(r.Context(), customerID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleOrderStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	counts, err := a.service.CountOrdersByStatus(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/orders/"
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("order id required"))
		return
	}

	if strings.HasSuffix(tail, "/transition") {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		orderID := strings.Trim(strings.TrimSuffix(tail, "/transition"), "/")
		if orderID == "" {
			writeError(w, http.StatusBadRequest, errors.New("order id required"))
			return
		}

		var req domain.TransitionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		resp, err := a.service.TransitionOrder(withActor(r).Context(), orderID, req.TargetStatus)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	order, err := a.service.GetOrderByID(r.Context(), tail)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	token := strings.TrimSpace(query.Get("token"))

	var order *domain.Order
	var err error
	if token != "" {
		orderNumber, verifyErr := a.tokens.Verify(token)
		if verifyErr != nil {
			writeError(w, http.StatusUnauthorized, verifyErr)
			return
		}
		order, err = a.service.TrackOrderByNumber(r.Context(), orderNumber)
	} else {
		orderNumber := strings.TrimSpace(query.Get("order_number"))
		phone := strings.TrimSpace(query.Get("phone"))
		if orderNumber == "" || phone == "" {
			writeError(w, http.StatusBadRequest, errors.New("token or order_number+phone required"))
			return
		}
		order, err = a.service.TrackOrderByPhone(r.Context(), orderNumber, phone)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// Public view: customer-safe subset only.
	writeJSON(w, http.StatusOK, map[string]any{
		"order_number":    order.Number,
		"status":          order.Status,
		"invoice_number":  order.InvoiceNumber,
		"invoice_status":  order.InvoiceStatus,
		"total":           order.Total,
		"delivery_window": order.DeliveryWindow,
		"created_at":      order.CreatedAt.Format(time.RFC3339),
	})
}

func (a *API) handleSequenceActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/sequences/"
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")

	name, action, found := strings.Cut(tail, "/")
	if !found || action != "resync" {
		writeError(w, http.StatusBadRequest, errors.New("invalid sequence action path"))
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ResyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ResyncSequence(withActor(r).Context(), name, req.Floor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), r.URL.Query().Get("date"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Staff-Actor")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// writeServiceError maps domain sentinels to status codes and machine
// readable error codes. Stock and transition conflicts both map to 409
// so retrying clients can distinguish them from validation errors.
func writeServiceError(w http.ResponseWriter, err error) {
	var shortfall *store.StockShortfallError
	if errors.As(err, &shortfall) {
		writeErrorCode(w, http.StatusConflict, "insufficient_stock", err)
		return
	}
	var transition *store.TransitionError
	if errors.As(err, &transition) {
		writeErrorCode(w, http.StatusConflict, "illegal_transition", err)
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, store.ErrInsufficientStock):
		writeErrorCode(w, http.StatusConflict, "insufficient_stock", err)
	case errors.Is(err, store.ErrIllegalTransition):
		writeErrorCode(w, http.StatusConflict, "illegal_transition", err)
	case errors.Is(err, store.ErrInvalidRequest):
		writeErrorCode(w, http.StatusBadRequest, "validation", err)
	default:
		writeErrorCode(w, http.StatusInternalServerError, "internal", err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeErrorCode(w, status, "", err)
}

func writeErrorCode(w http.ResponseWriter, status int, code string, err error) {
	// 5xx responses return a generic message so internal details (SQL
	// errors, file paths) never reach clients. 4xx are user-facing.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	payload := map[string]any{"error": msg}
	if code != "" {
		payload["code"] = code
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
