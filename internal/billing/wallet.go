package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/KoushikPanda1729/client-ui/internal/domain"
)

// Wallet returns the caller's balance.
func (c *Client) Wallet(ctx context.Context) (domain.Wallet, error) {
	var out domain.Wallet
	if err := c.api.Get(ctx, "/billing/wallets/balance", nil, &out); err != nil {
		return domain.Wallet{}, fmt.Errorf("billing: wallet balance: %w", err)
	}
	return out, nil
}

// WalletTransactions lists wallet movements.
func (c *Client) WalletTransactions(ctx context.Context, page, limit int) (domain.WalletTransactions, error) {
	var out domain.WalletTransactions
	if err := c.api.Get(ctx, "/billing/wallets/transactions", pageQuery(page, limit, 20), &out); err != nil {
		return domain.WalletTransactions{}, fmt.Errorf("billing: wallet transactions: %w", err)
	}
	if out.Transactions == nil {
		out.Transactions = []domain.WalletTransaction{}
	}
	return out, nil
}

// CalculateCashback previews the cashback billing would award for an order.
func (c *Client) CalculateCashback(ctx context.Context, orderAmount, walletUsed float64) (domain.CashbackPreview, error) {
	if orderAmount < 0 || walletUsed < 0 {
		return domain.CashbackPreview{}, fmt.Errorf("%w: amounts must not be negative", ErrInvalidInput)
	}
	body := map[string]float64{"orderAmount": orderAmount, "walletAmountUsed": walletUsed}
	var out domain.CashbackPreview
	if err := c.api.Post(ctx, "/billing/wallets/calculate-cashback", body, &out); err != nil {
		return domain.CashbackPreview{}, fmt.Errorf("billing: calculate cashback: %w", err)
	}
	return out, nil
}

// Coupons lists the coupons offered by a tenant.
func (c *Client) Coupons(ctx context.Context, tenantID string, page, limit int) ([]domain.Coupon, error) {
	tenantID, err := requireID("tenant", tenantID)
	if err != nil {
		return nil, err
	}
	q := pageQuery(page, limit, 10)
	q.Set("tenantId", tenantID)
	var out struct {
		Data []domain.Coupon `json:"data"`
	}
	if err := c.api.Get(ctx, "/billing/coupons", q, &out); err != nil {
		return nil, fmt.Errorf("billing: list coupons: %w", err)
	}
	if out.Data == nil {
		out.Data = []domain.Coupon{}
	}
	return out.Data, nil
}

// VerifyCoupon asks billing to validate a code for a tenant. A rejection by the
// service surfaces as an *upstream.Error carrying the service message, or as
// ErrCouponRejected when the service answers 200 with valid=false.
func (c *Client) VerifyCoupon(ctx context.Context, code, tenantID string) (domain.VerifiedCoupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.VerifiedCoupon{}, fmt.Errorf("%w: coupon code is required", ErrInvalidInput)
	}
	tenantID, err := requireID("tenant", tenantID)
	if err != nil {
		return domain.VerifiedCoupon{}, err
	}
	var out struct {
		Valid    bool    `json:"valid"`
		Message  string  `json:"message"`
		Code     string  `json:"code"`
		Title    string  `json:"title"`
		Discount float64 `json:"discount"`
	}
	body := map[string]string{"code": code, "tenantId": tenantID}
	if err := c.api.Post(ctx, "/billing/coupons/verify", body, &out); err != nil {
		return domain.VerifiedCoupon{}, fmt.Errorf("billing: verify coupon: %w", err)
	}
	if !out.Valid {
		if out.Message != "" {
			return domain.VerifiedCoupon{}, fmt.Errorf("%w: %s", ErrCouponRejected, out.Message)
		}
		return domain.VerifiedCoupon{}, ErrCouponRejected
	}
	verified := domain.VerifiedCoupon{Code: out.Code, Title: out.Title, Discount: out.Discount}
	if verified.Code == "" {
		verified.Code = code
	}
	return verified, nil
}
