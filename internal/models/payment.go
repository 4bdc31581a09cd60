package models

import "time"

const (
	PurposeGifPurchase  = "gif_purchase"
	PurposeAdminUpgrade = "admin-upgrade"
)

// Payment is a completed Pi payment kept in the local ledger.
type Payment struct {
	PaymentID string    `json:"payment_id"`
	TxID      string    `json:"txid"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	Memo      string    `json:"memo"`
	Purpose   string    `json:"purpose"`
	CreatedAt time.Time `json:"created_at"`
}
