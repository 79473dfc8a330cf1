package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/KoushikPanda1729/client-ui/internal/auth"
	"github.com/KoushikPanda1729/client-ui/internal/billing"
	"github.com/KoushikPanda1729/client-ui/internal/cart"
	"github.com/KoushikPanda1729/client-ui/internal/catalog"
	"github.com/KoushikPanda1729/client-ui/internal/platform/httpx"
	"github.com/KoushikPanda1729/client-ui/internal/platform/observability"
	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
	"github.com/KoushikPanda1729/client-ui/internal/services"
)

const (
	genericMessage = "Something went wrong. Please try again."
	loginRedirect  = "/login"
)

var errUnauthenticated = httpx.NewError("unauthenticated", "Please log in to continue.", http.StatusUnauthorized)

type errorMapping struct {
	target  error
	code    string
	message string
	status  int
}

// Validation and conflict errors raised before any backend call. A blank message
// keeps the error's own text.
var knownErrors = []errorMapping{
	{services.ErrCustomerNotLoaded, "customer_not_loaded", "Your customer profile is still loading.", http.StatusUnprocessableEntity},
	{services.ErrAddressRequired, "address_required", "Please select a delivery address.", http.StatusUnprocessableEntity},
	{services.ErrCartEmpty, "cart_empty", "Your cart is empty.", http.StatusUnprocessableEntity},
	{services.ErrTenantRequired, "tenant_required", "Please select a restaurant.", http.StatusUnprocessableEntity},
	{services.ErrCheckoutInProgress, "checkout_in_progress", "Your order is already being placed.", http.StatusConflict},
	{services.ErrCouponRateLimited, "rate_limited", "Too many coupon attempts. Please wait a minute.", http.StatusTooManyRequests},
	{services.ErrAddressNotFound, "address_not_found", "Address not found.", http.StatusNotFound},
	{services.ErrInvalidPaymentType, "invalid_payment_type", "Payment type must be Online or COD.", http.StatusBadRequest},
	{cart.ErrInvalidItem, "invalid_item", "", http.StatusBadRequest},
	{catalog.ErrUnknownOption, "invalid_option", "", http.StatusUnprocessableEntity},
	{catalog.ErrTenantNotFound, "tenant_not_found", "Restaurant not found.", http.StatusNotFound},
	{catalog.ErrInvalidInput, "invalid_request", "", http.StatusBadRequest},
	{billing.ErrInvalidInput, "invalid_request", "", http.StatusBadRequest},
	{auth.ErrInvalidCredentials, "invalid_credentials", "Please enter a valid email and password.", http.StatusBadRequest},
	{auth.ErrNoToken, "unauthenticated", "Please log in to continue.", http.StatusUnauthorized},
}

// writeServiceError maps a service or upstream failure to the JSON envelope.
// Backend business messages are shown verbatim; transport failures are not.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, upstream.ErrSessionExpired) {
		httpx.WriteError(ctx, w, httpx.NewError("session_expired", "Your session has expired. Please log in again.", http.StatusUnauthorized).
			WithDetails(map[string]any{"redirect": loginRedirect}))
		return
	}
	if errors.Is(err, billing.ErrCouponRejected) {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", couponMessage(err), http.StatusUnprocessableEntity))
		return
	}
	for _, m := range knownErrors {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			httpx.WriteError(ctx, w, httpx.NewError(m.code, msg, m.status))
			return
		}
	}
	if errors.Is(err, upstream.ErrUnavailable) {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "The service is temporarily unavailable. Please try again shortly.", http.StatusServiceUnavailable))
		return
	}
	if status := upstream.StatusCode(err); status != 0 {
		if status == http.StatusUnauthorized {
			httpx.WriteError(ctx, w, errUnauthenticated)
			return
		}
		msg := upstream.Message(err)
		if msg == "" {
			msg = genericMessage
		}
		if status >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		httpx.WriteError(ctx, w, httpx.NewError("upstream_error", msg, status))
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	observability.FromContext(ctx).Error("request failed", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", genericMessage, http.StatusInternalServerError))
}

func couponMessage(err error) string {
	if msg := upstream.Message(err); msg != "" {
		return msg
	}
	_, detail, found := strings.Cut(err.Error(), billing.ErrCouponRejected.Error()+": ")
	if found && strings.TrimSpace(detail) != "" {
		return detail
	}
	return "This coupon is not valid."
}
