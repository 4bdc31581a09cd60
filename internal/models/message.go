package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageKind is the message_type column of the messages table.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindVideo MessageKind = "video"
	KindGif   MessageKind = "gif"
)

// DefaultGifPrice is charged for a gif when the sender does not name a price.
const DefaultGifPrice = 0.001

var ErrInvalidMessage = errors.New("invalid message")

func (k MessageKind) String() string {
	return string(k)
}

func (k MessageKind) IsValid() bool {
	return k == KindText || k == KindVideo || k == KindGif
}

// HasMedia reports whether messages of this kind carry a media URL.
func (k MessageKind) HasMedia() bool {
	return k == KindVideo || k == KindGif
}

type Message struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"room_id"`
	UserID    string      `json:"user_id"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"message_type"`
	VideoURL  string      `json:"video_url,omitempty"`
	GifURL    string      `json:"gif_url,omitempty"`
	PiCost    float64     `json:"pi_cost"`
	PaymentID string      `json:"payment_id,omitempty"`
	TxID      string      `json:"txid,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// MediaURL returns whichever of VideoURL or GifURL the kind populates.
func (m Message) MediaURL() string {
	switch m.Kind {
	case KindVideo:
		return m.VideoURL
	case KindGif:
		return m.GifURL
	}
	return ""
}

// NewMessage is the payload accepted by the message store.
// PiCost nil means "use the default for the kind".
type NewMessage struct {
	RoomID    string      `json:"room_id"`
	UserID    string      `json:"user_id"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"message_type"`
	MediaURL  string      `json:"media_url,omitempty"`
	PiCost    *float64    `json:"pi_cost,omitempty"`
	PaymentID string      `json:"payment_id,omitempty"`
	TxID      string      `json:"txid,omitempty"`
}

// Cost returns the effective cost after kind defaults are applied.
func (p NewMessage) Cost() float64 {
	if p.PiCost != nil {
		return *p.PiCost
	}
	if p.Kind == KindGif {
		return DefaultGifPrice
	}
	return 0
}

// Validate checks required-field presence and the kind/media/cost invariant.
func (p NewMessage) Validate() error {
	switch {
	case strings.TrimSpace(p.RoomID) == "":
		return fmt.Errorf("%w: room_id is required", ErrInvalidMessage)
	case strings.TrimSpace(p.UserID) == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidMessage)
	case strings.TrimSpace(p.Content) == "":
		return fmt.Errorf("%w: content is required", ErrInvalidMessage)
	case !p.Kind.IsValid():
		return fmt.Errorf("%w: unknown message_type %q", ErrInvalidMessage, p.Kind)
	}

	if p.Kind.HasMedia() && strings.TrimSpace(p.MediaURL) == "" {
		return fmt.Errorf("%w: media_url is required for %s messages", ErrInvalidMessage, p.Kind)
	}
	if !p.Kind.HasMedia() && p.MediaURL != "" {
		return fmt.Errorf("%w: text messages carry no media_url", ErrInvalidMessage)
	}

	cost := p.Cost()
	if cost < 0 {
		return fmt.Errorf("%w: pi_cost must not be negative", ErrInvalidMessage)
	}
	if p.Kind == KindText && cost != 0 {
		return fmt.Errorf("%w: text messages are free", ErrInvalidMessage)
	}
	return nil
}

// Message builds the row that the store will insert, minus id and timestamp.
func (p NewMessage) Message() Message {
	m := Message{
		RoomID:    p.RoomID,
		UserID:    p.UserID,
		Content:   p.Content,
		Kind:      p.Kind,
		PiCost:    p.Cost(),
		PaymentID: p.PaymentID,
		TxID:      p.TxID,
	}
	switch p.Kind {
	case KindVideo:
		m.VideoURL = p.MediaURL
	case KindGif:
		m.GifURL = p.MediaURL
	}
	return m
}
