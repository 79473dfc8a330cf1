// Package pricing derives checkout totals from the cart subtotal, a verified
// coupon, tenant tax rates, the delivery quote and requested wallet credits.
//
// Every intermediate amount is rounded to two decimals before it feeds the next
// step, so each figure equals the value shown to the shopper at that stage.
package pricing

import (
	"math"

	"github.com/KoushikPanda1729/client-ui/internal/domain"
)

// Input carries everything the calculator needs. Zero values mean "none".
type Input struct {
	Subtotal        float64
	DiscountPercent float64
	Taxes           []domain.Tax
	DeliveryCharge  float64
	WalletBalance   float64
	WalletRequested float64
}

// TaxLine is the display amount for one active tax.
type TaxLine struct {
	Name   string  `json:"name"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

// Breakdown is the result of Calculate.
type Breakdown struct {
	Subtotal          float64   `json:"subtotal"`
	DiscountPercent   float64   `json:"discountPercent"`
	DiscountAmount    float64   `json:"discountAmount"`
	TaxableAmount     float64   `json:"taxableAmount"`
	TotalTaxRate      float64   `json:"totalTaxRate"`
	TaxLines          []TaxLine `json:"taxLines"`
	Taxes             float64   `json:"taxes"`
	DeliveryCharge    float64   `json:"deliveryCharge"`
	TotalBeforeWallet float64   `json:"totalBeforeWallet"`
	MaxWallet         float64   `json:"maxWallet"`
	WalletApplied     float64   `json:"walletApplied"`
	FinalTotal        float64   `json:"finalTotal"`
}

// PaidByWallet reports whether wallet credits cover the whole order.
func (b Breakdown) PaidByWallet() bool {
	return b.FinalTotal == 0
}

// Calculate computes the checkout totals.
func Calculate(in Input) Breakdown {
	subtotal := nonNegative(in.Subtotal)
	percent := math.Min(nonNegative(in.DiscountPercent), 100)

	discount := Round2(subtotal * percent / 100)
	taxable := subtotal - discount

	var totalRate float64
	lines := make([]TaxLine, 0, len(in.Taxes))
	for _, tax := range in.Taxes {
		if !tax.IsActive || tax.Rate <= 0 {
			continue
		}
		totalRate += tax.Rate
		lines = append(lines, TaxLine{Name: tax.Name, Rate: tax.Rate, Amount: Round2(taxable * tax.Rate / 100)})
	}
	taxes := Round2(taxable * totalRate / 100)

	delivery := nonNegative(in.DeliveryCharge)
	totalBeforeWallet := Round2(taxable + taxes + delivery)
	maxWallet := MaxWallet(in.WalletBalance, totalBeforeWallet)
	applied := ClampWallet(in.WalletRequested, in.WalletBalance, totalBeforeWallet)

	return Breakdown{
		Subtotal:          subtotal,
		DiscountPercent:   percent,
		DiscountAmount:    discount,
		TaxableAmount:     taxable,
		TotalTaxRate:      totalRate,
		TaxLines:          lines,
		Taxes:             taxes,
		DeliveryCharge:    delivery,
		TotalBeforeWallet: totalBeforeWallet,
		MaxWallet:         maxWallet,
		WalletApplied:     applied,
		FinalTotal:        math.Max(0, Round2(totalBeforeWallet-applied)),
	}
}

// MaxWallet is the most wallet credit an order can absorb: min(balance, total).
func MaxWallet(balance, totalBeforeWallet float64) float64 {
	return Round2(math.Min(nonNegative(balance), nonNegative(totalBeforeWallet)))
}

// ClampWallet caps a requested wallet amount to [0, MaxWallet].
func ClampWallet(requested, balance, totalBeforeWallet float64) float64 {
	return Round2(math.Min(nonNegative(requested), MaxWallet(balance, totalBeforeWallet)))
}

// Subtotal sums Price*Quantity over the cart lines.
func Subtotal(items []domain.CartItem) float64 {
	var sum float64
	for _, item := range items {
		sum += item.LineTotal()
	}
	return Round2(sum)
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
