package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/KoushikPanda1729/client-ui/internal/billing"
	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/platform/format"
	"github.com/KoushikPanda1729/client-ui/internal/services"
)

// CheckoutHandlers drive the session's checkout orchestrator.
type CheckoutHandlers struct {
	money format.Money
}

// NewCheckoutHandlers constructs checkout routes.
func NewCheckoutHandlers(money format.Money) *CheckoutHandlers {
	return &CheckoutHandlers{money: money}
}

// Routes wires /checkout and /payments.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	r.Route("/checkout", func(r chi.Router) {
		r.Get("/", h.prepare)
		r.Post("/addresses", h.addAddress)
		r.Put("/addresses/{addressID}", h.updateAddress)
		r.Delete("/addresses/{addressID}", h.deleteAddress)
		r.Put("/address", h.selectAddress)
		r.Post("/coupon", h.applyCoupon)
		r.Delete("/coupon", h.removeCoupon)
		r.Put("/wallet", h.setWallet)
		r.Post("/orders", h.placeOrder)
	})
	r.Get("/payments/{sessionID}", h.paymentResult)
}

type totalsDisplay struct {
	Subtotal          string `json:"subtotal"`
	Discount          string `json:"discount"`
	Taxes             string `json:"taxes"`
	Delivery          string `json:"delivery"`
	TotalBeforeWallet string `json:"totalBeforeWallet"`
	Wallet            string `json:"wallet"`
	Total             string `json:"total"`
}

type quoteView struct {
	services.Quote
	Currency string        `json:"currency"`
	Display  totalsDisplay `json:"display"`
}

func (h *CheckoutHandlers) view(q services.Quote) quoteView {
	b := q.Breakdown
	if q.Items == nil {
		q.Items = []domain.CartItem{}
	}
	if q.Taxes == nil {
		q.Taxes = []domain.Tax{}
	}
	return quoteView{
		Quote:    q,
		Currency: h.money.Code(),
		Display: totalsDisplay{
			Subtotal:          h.money.Format(b.Subtotal),
			Discount:          h.money.Format(b.DiscountAmount),
			Taxes:             h.money.Format(b.Taxes),
			Delivery:          h.money.Format(b.DeliveryCharge),
			TotalBeforeWallet: h.money.Format(b.TotalBeforeWallet),
			Wallet:            h.money.Format(b.WalletApplied),
			Total:             h.money.Format(b.FinalTotal),
		},
	}
}

func (h *CheckoutHandlers) prepare(w http.ResponseWriter, r *http.Request) {
	sess, user, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	q, err := sess.Checkout().Prepare(r.Context(), user)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.view(q))
}

func (h *CheckoutHandlers) addAddress(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	var in billing.AddressInput
	if !decodeBody(w, r, &in) {
		return
	}
	q, err := sess.Checkout().AddAddress(r.Context(), in)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, h.view(q))
}

func (h *CheckoutHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	var in billing.AddressInput
	if !decodeBody(w, r, &in) {
		return
	}
	q, err := sess.Checkout().UpdateAddress(r.Context(), chi.URLParam(r, "addressID"), in)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.view(q))
}

func (h *CheckoutHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	q, err := sess.Checkout().DeleteAddress(r.Context(), chi.URLParam(r, "addressID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.view(q))
}

type selectAddressRequest struct {
	AddressID string `json:"addressId"`
}

func (h *CheckoutHandlers) selectAddress(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	var in selectAddressRequest
	if !decodeBody(w, r, &in) {
		return
	}
	q, err := sess.Checkout().SelectAddress(in.AddressID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.view(q))
}

type couponRequest struct {
	Code string `json:"code"`
}

func (h *CheckoutHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	var in couponRequest
	if !decodeBody(w, r, &in) {
		return
	}
	q, err := sess.Checkout().ApplyCoupon(r.Context(), strings.ToUpper(strings.TrimSpace(in.Code)))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.view(q))
}

func (h *CheckoutHandlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	sess, _, _, ok := signedIn(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, h.view(sess.Checkout().RemoveCoupon()))
}

type walletRequest struct {
	Amount float64 `json:"amount"`
}

func (h *CheckoutHandlers) setWallet(w http.ResponseWriter, r *http.Request) {
	sess, _, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	var in walletRequest
	if !decodeBody(w, r, &in) {
		return
	}
	writeJSONResponse(w, http.StatusOK, h.view(sess.Checkout().SetWallet(in.Amount)))
}

type placeOrderRequest struct {
	PaymentType domain.PaymentType `json:"paymentType"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	sess, user, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	var in placeOrderRequest
	if err := decodeOptionalBody(r, &in); err != nil {
		writeBodyError(w, r, err)
		return
	}
	res, err := sess.Checkout().PlaceOrder(r.Context(), user, services.PlaceOrderCommand{PaymentType: in.PaymentType})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, res)
}

func (h *CheckoutHandlers) paymentResult(w http.ResponseWriter, r *http.Request) {
	sess, user, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	payment, err := sess.Checkout().PaymentResult(r.Context(), user, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"payment": payment, "paid": payment.Paid()})
}
