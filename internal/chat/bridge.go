package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/decimalcoins/broom-chat/internal/payment"
)

var ErrBridgeClosed = errors.New("browser connection closed")

// Bridge is the Pi SDK as seen from the server: payment requests go to the
// browser as payment.create frames and the SDK callbacks come back as
// payment.* frames, matched by request id.
type Bridge struct {
	send func([]byte) bool

	mu        sync.Mutex
	available bool
	sandbox   bool
	closed    bool
	pending   map[string]payment.Callbacks
}

func NewBridge(send func([]byte) bool) *Bridge {
	return &Bridge{send: send, pending: make(map[string]payment.Callbacks)}
}

// SetAvailable records what the browser reported in its hello frame.
func (b *Bridge) SetAvailable(available, sandbox bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = available
	b.sandbox = sandbox
}

func (b *Bridge) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

func (b *Bridge) Sandbox() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sandbox
}

// CreatePayment forwards the request to the browser. The pending entry lives
// until a terminal callback arrives or ctx is done, whichever comes first;
// callbacks after that are answered as unknown.
func (b *Bridge) CreatePayment(ctx context.Context, intent payment.Intent, cb payment.Callbacks) error {
	id := uuid.NewString()
	data, err := NewWSMessage(TypePaymentCreate, PaymentCreatePayload{
		RequestID: id,
		Amount:    intent.Amount,
		Memo:      intent.Memo,
		Metadata:  intent.Metadata,
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	b.pending[id] = cb
	b.mu.Unlock()
	context.AfterFunc(ctx, func() { b.forget(id) })

	if !b.send(data) {
		b.forget(id)
		return ErrBridgeClosed
	}
	return nil
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Pending reports how many payment requests still await a terminal callback.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Dispatch routes a relayed callback. It reports false for unknown request ids.
func (b *Bridge) Dispatch(msgType string, p PaymentCallbackPayload) bool {
	b.mu.Lock()
	cb, ok := b.pending[p.RequestID]
	if ok && msgType != TypePaymentApproval {
		delete(b.pending, p.RequestID)
	}
	b.mu.Unlock()
	if !ok {
		slog.Warn("payment callback for unknown request", "request_id", p.RequestID, "type", msgType)
		return false
	}

	switch msgType {
	case TypePaymentApproval:
		if cb.OnReadyForServerApproval != nil {
			cb.OnReadyForServerApproval(p.PaymentID)
		}
	case TypePaymentCompletion:
		if cb.OnReadyForServerCompletion != nil {
			cb.OnReadyForServerCompletion(p.PaymentID, p.TxID)
		}
	case TypePaymentCancel:
		if cb.OnCancel != nil {
			cb.OnCancel(p.PaymentID)
		}
	case TypePaymentError:
		msg := p.Message
		if msg == "" {
			msg = "pi sdk error"
		}
		if cb.OnError != nil {
			cb.OnError(errors.New(msg), &payment.PaymentDTO{Identifier: p.PaymentID})
		}
	default:
		return false
	}
	return true
}

// Close fails every pending payment so waiting handshakes settle immediately.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	pending := b.pending
	b.pending = make(map[string]payment.Callbacks)
	b.mu.Unlock()

	for _, cb := range pending {
		if cb.OnError != nil {
			cb.OnError(ErrBridgeClosed, nil)
		}
	}
}
