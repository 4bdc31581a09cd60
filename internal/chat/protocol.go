package chat

import (
	"encoding/json"

	"github.com/decimalcoins/broom-chat/internal/models"
)

const (
	TypeHello             = "hello"
	TypeRoomSelect        = "room.select"
	TypeMessageSend       = "message.send"
	TypeVideoSend         = "video.send"
	TypeGifSend           = "gif.send"
	TypeRoleUpgrade       = "role.upgrade"
	TypePaymentApproval   = "payment.approval"
	TypePaymentCompletion = "payment.completion"
	TypePaymentCancel     = "payment.cancel"
	TypePaymentError      = "payment.error"
	TypePing              = "ping"

	TypeRoomHistory    = "room.history"
	TypeMessageNew     = "message.new"
	TypeNotification   = "notification"
	TypePaymentCreate  = "payment.create"
	TypePresenceUpdate = "presence.update"
	TypeRoleUpdated    = "role.updated"
	TypeError          = "error"
	TypePong           = "pong"
)

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HelloPayload is sent once the page knows whether window.Pi exists.
type HelloPayload struct {
	PiAvailable bool `json:"pi_available"`
	Sandbox     bool `json:"sandbox"`
}

type RoomPayload struct {
	RoomID string `json:"room_id"`
}

type SendMessagePayload struct {
	Content string `json:"content"`
}

type VideoPayload struct {
	URL string `json:"url"`
}

type GifPayload struct {
	GifID string `json:"gif_id"`
}

// PaymentCallbackPayload carries one Pi SDK callback relayed by the browser.
type PaymentCallbackPayload struct {
	RequestID string `json:"request_id"`
	PaymentID string `json:"payment_id,omitempty"`
	TxID      string `json:"txid,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PaymentCreatePayload asks the browser to call Pi.createPayment.
type PaymentCreatePayload struct {
	RequestID string         `json:"request_id"`
	Amount    float64        `json:"amount"`
	Memo      string         `json:"memo"`
	Metadata  map[string]any `json:"metadata"`
}

type RoomHistoryPayload struct {
	Room     models.Room      `json:"room"`
	Messages []models.Message `json:"messages"`
}

type PresenceUpdatePayload struct {
	RoomID string `json:"room_id"`
	Online int64  `json:"online"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func NewWSMessage(msgType string, payload interface{}) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		p, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	msg := WSMessage{Type: msgType, Payload: p}
	return json.Marshal(msg)
}
