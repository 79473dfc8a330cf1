package domain

import "time"

// Address is a free-text delivery address on a customer record.
type Address struct {
	ID        string `json:"_id"`
	Text      string `json:"text"`
	IsDefault bool   `json:"isDefault"`
}

// Customer is the billing-side record for a user.
type Customer struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"userId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Addresses []Address `json:"addresses"`
}

// DefaultAddress returns the default address, else the first, else false.
func (c Customer) DefaultAddress() (Address, bool) {
	for _, a := range c.Addresses {
		if a.IsDefault {
			return a, true
		}
	}
	if len(c.Addresses) > 0 {
		return c.Addresses[0], true
	}
	return Address{}, false
}

// Address looks up an address by id.
func (c Customer) Address(id string) (Address, bool) {
	for _, a := range c.Addresses {
		if a.ID == id {
			return a, true
		}
	}
	return Address{}, false
}

// Tax is one tax rate configured for a tenant. Rate is a percentage.
type Tax struct {
	Name     string  `json:"name"`
	Rate     float64 `json:"rate"`
	IsActive bool    `json:"isActive"`
}

// DeliveryQuote is the delivery charge billing computed for a subtotal.
type DeliveryQuote struct {
	Charge            float64 `json:"deliveryCharge"`
	IsFree            bool    `json:"isFreeDelivery"`
	FreeDeliveryAbove float64 `json:"freeDeliveryThreshold,omitempty"`
}

// DiscountType distinguishes coupon kinds.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is a coupon as listed for a tenant.
type Coupon struct {
	ID                string       `json:"_id"`
	Code              string       `json:"code"`
	Title             string       `json:"title"`
	Description       string       `json:"description,omitempty"`
	DiscountType      DiscountType `json:"discountType"`
	DiscountValue     float64      `json:"discountValue"`
	MinOrderValue     float64      `json:"minOrderValue,omitempty"`
	MaxDiscountAmount float64      `json:"maxDiscountAmount,omitempty"`
	ValidUntil        string       `json:"validUntil,omitempty"`
	IsActive          bool         `json:"isActive"`
}

// VerifiedCoupon is a coupon the billing service accepted for the current tenant.
type VerifiedCoupon struct {
	Code     string  `json:"code"`
	Title    string  `json:"title"`
	Discount float64 `json:"discount"`
}

// PaymentType selects how an order is paid.
type PaymentType string

const (
	PaymentOnline PaymentType = "Online"
	PaymentCOD    PaymentType = "COD"
)

// Order statuses and payment statuses reported by billing.
const (
	OrderStatusPending   = "pending"
	OrderStatusCancelled = "cancelled"

	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// PriceConfiguration records the options a line was configured with.
type PriceConfiguration struct {
	Size  string `json:"Size"`
	Crust string `json:"Crust,omitempty"`
}

// OrderLine is one line in the order creation payload.
type OrderLine struct {
	ProductID          string             `json:"productId"`
	Name               string             `json:"name"`
	Image              string             `json:"image"`
	Qty                int                `json:"qty"`
	UnitPrice          float64            `json:"unitPrice"`
	PriceConfiguration PriceConfiguration `json:"priceConfiguration"`
	Toppings           []Topping          `json:"toppings"`
	TotalPrice         float64            `json:"totalPrice"`
}

// OrderPayload is the body of POST /billing/orders.
type OrderPayload struct {
	CustomerID        string      `json:"customerId"`
	TenantID          string      `json:"tenantId"`
	Address           string      `json:"address"`
	Items             []OrderLine `json:"items"`
	SubTotal          float64     `json:"subTotal"`
	CouponCode        string      `json:"couponCode,omitempty"`
	Discount          float64     `json:"discount"`
	TaxTotal          float64     `json:"taxTotal"`
	DeliveryCharge    float64     `json:"deliveryCharge"`
	WalletCreditsUsed float64     `json:"walletCreditsUsed"`
	Total             float64     `json:"total"`
	FinalTotal        float64     `json:"finalTotal"`
	PaymentMode       PaymentType `json:"paymentMode"`
}

// Order is an order as returned by billing.
type Order struct {
	ID                string      `json:"_id"`
	CustomerID        string      `json:"customerId"`
	TenantID          string      `json:"tenantId"`
	Address           string      `json:"address"`
	Items             []OrderLine `json:"items"`
	SubTotal          float64     `json:"subTotal"`
	Discount          float64     `json:"discount"`
	TaxTotal          float64     `json:"taxTotal"`
	DeliveryCharge    float64     `json:"deliveryCharge"`
	WalletCreditsUsed float64     `json:"walletCreditsUsed"`
	Total             float64     `json:"total"`
	FinalTotal        float64     `json:"finalTotal"`
	PaymentMode       PaymentType `json:"paymentMode"`
	Status            string      `json:"orderStatus"`
	PaymentStatus     string      `json:"paymentStatus"`
	CreatedAt         time.Time   `json:"createdAt"`
}

// Pagination describes a page of billing results.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// OrderList is a page of the caller's orders.
type OrderList struct {
	Orders     []Order    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// PaymentSession is a hosted payment page created for an order.
type PaymentSession struct {
	SessionID     string `json:"sessionId"`
	PaymentURL    string `json:"paymentUrl"`
	OrderID       string `json:"orderId"`
	PaymentStatus string `json:"paymentStatus"`
}

// Paid reports whether the provider confirmed payment.
func (p PaymentSession) Paid() bool {
	return p.PaymentStatus == PaymentStatusPaid
}

// Refund is a refund recorded against an order.
type Refund struct {
	ID        string    `json:"_id"`
	OrderID   string    `json:"orderId"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
