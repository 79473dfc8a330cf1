package domain

import "time"

// Wallet is the caller's stored credit.
type Wallet struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// TransactionType classifies wallet movements.
type TransactionType string

const (
	TransactionCashback   TransactionType = "cashback"
	TransactionRedemption TransactionType = "redemption"
	TransactionRefund     TransactionType = "refund"
)

// WalletTransaction is one wallet movement.
type WalletTransaction struct {
	ID            string          `json:"_id"`
	Type          TransactionType `json:"type"`
	Amount        float64         `json:"amount"`
	OrderID       string          `json:"orderId"`
	BalanceBefore float64         `json:"balanceBefore"`
	BalanceAfter  float64         `json:"balanceAfter"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// WalletTransactions is a page of wallet movements.
type WalletTransactions struct {
	Transactions []WalletTransaction `json:"transactions"`
	Pagination   Pagination          `json:"pagination"`
}

// CashbackPreview is billing's estimate of cashback for an order.
type CashbackPreview struct {
	OrderAmount      float64 `json:"orderAmount"`
	WalletAmountUsed float64 `json:"walletAmountUsed"`
	CashbackAmount   float64 `json:"cashbackAmount"`
}
