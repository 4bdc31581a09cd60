// Package payment turns the Pi SDK's callback-driven payment flow into a
// single blocking call.
package payment

import (
	"context"
	"fmt"

	"github.com/decimalcoins/broom-chat/internal/models"
)

// Intent is what the user is asked to pay. Amount is in Pi.
type Intent struct {
	Amount   float64        `json:"amount"`
	Memo     string         `json:"memo"`
	Metadata map[string]any `json:"metadata"`
}

func (i Intent) Validate() error {
	if !(i.Amount > 0) {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidIntent)
	}
	return nil
}

// Purpose returns metadata["type"], which every intent built here carries.
func (i Intent) Purpose() string {
	s, _ := i.Metadata["type"].(string)
	return s
}

type Result struct {
	PaymentID string `json:"payment_id"`
	TxID      string `json:"txid"`
}

// PaymentDTO is the payment object the SDK hands to onError, when it has one.
type PaymentDTO struct {
	Identifier string         `json:"identifier"`
	Amount     float64        `json:"amount"`
	Memo       string         `json:"memo"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	TxID       string         `json:"txid,omitempty"`
}

// Callbacks mirror the four callbacks of Pi.createPayment.
type Callbacks struct {
	OnReadyForServerApproval   func(paymentID string)
	OnReadyForServerCompletion func(paymentID, txid string)
	OnCancel                   func(paymentID string)
	OnError                    func(err error, payment *PaymentDTO)
}

// SDK starts a payment and reports progress through the callbacks, possibly
// from another goroutine and possibly after CreatePayment has returned.
type SDK interface {
	CreatePayment(ctx context.Context, intent Intent, cb Callbacks) error
}

// Availability is implemented by SDKs that may or may not be present at
// runtime, such as one relayed from a browser.
type Availability interface {
	Available() bool
}

func GifPurchase(gif models.Gif) Intent {
	return Intent{
		Amount:   gif.Cost,
		Memo:     "GIF: " + gif.Title,
		Metadata: map[string]any{"gifId": gif.ID, "type": models.PurposeGifPurchase},
	}
}

const AdminUpgradePrice = 0.001

func AdminUpgrade() Intent {
	return Intent{
		Amount:   AdminUpgradePrice,
		Memo:     "Upgrade to admin in Broom Marketplace",
		Metadata: map[string]any{"type": models.PurposeAdminUpgrade},
	}
}
