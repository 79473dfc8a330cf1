package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/KoushikPanda1729/client-ui/internal/services"
)

// AccountHandlers serve the signed-in shopper's orders, wallet and coupons.
type AccountHandlers struct{}

// NewAccountHandlers constructs account routes.
func NewAccountHandlers() *AccountHandlers {
	return &AccountHandlers{}
}

// Routes wires /orders, /wallet and /coupons.
func (h *AccountHandlers) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Get("/{orderID}", h.getOrder)
		r.Get("/{orderID}/refunds", h.listRefunds)
		r.Post("/{orderID}/cancel", h.cancelOrder)
	})
	r.Route("/wallet", func(r chi.Router) {
		r.Get("/", h.getWallet)
		r.Get("/transactions", h.listTransactions)
		r.Post("/cashback", h.previewCashback)
	})
	r.Get("/coupons", h.listCoupons)
}

func (h *AccountHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	orders, err := sess.Billing().MyOrders(r.Context(), queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orders)
}

func (h *AccountHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	order, err := sess.Billing().Order(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": order})
}

func (h *AccountHandlers) listRefunds(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	refunds, err := sess.Billing().Refunds(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"refunds": refunds})
}

func (h *AccountHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	order, err := sess.Billing().CancelOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": order})
}

func (h *AccountHandlers) getWallet(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	wallet, err := sess.Billing().Wallet(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, wallet)
}

func (h *AccountHandlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	txs, err := sess.Billing().WalletTransactions(r.Context(), queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, txs)
}

type cashbackRequest struct {
	OrderAmount      float64 `json:"orderAmount"`
	WalletAmountUsed float64 `json:"walletAmountUsed"`
}

func (h *AccountHandlers) previewCashback(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	var in cashbackRequest
	if !decodeBody(w, r, &in) {
		return
	}
	preview, err := sess.Billing().CalculateCashback(r.Context(), in.OrderAmount, in.WalletAmountUsed)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, preview)
}

// listCoupons lists the selected (or requested) restaurant's coupons. The list is
// public, so no sign in is required.
func (h *AccountHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenantId"))
	if tenant := sess.Cart().Snapshot().Tenant; tenantID == "" && tenant != nil {
		tenantID = tenant.ID
	}
	if tenantID == "" {
		writeServiceError(r.Context(), w, services.ErrTenantRequired)
		return
	}
	coupons, err := sess.Billing().Coupons(r.Context(), tenantID, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"data": coupons})
}
