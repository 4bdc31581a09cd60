package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/decimalcoins/broom-chat/internal/metrics"
)

// DefaultTimeout bounds how long Pay waits for the SDK to settle.
const DefaultTimeout = 60 * time.Second

type State int

const (
	StateIdle State = iota
	StateRequested
	StateAwaitingServerApproval
	StateAwaitingServerCompletion
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequested:
		return "requested"
	case StateAwaitingServerApproval:
		return "awaiting_server_approval"
	case StateAwaitingServerCompletion:
		return "awaiting_server_completion"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Adapter runs at most one payment handshake at a time against an SDK.
type Adapter struct {
	sdk     SDK
	timeout time.Duration

	mu       sync.Mutex
	state    State
	inFlight bool
}

type Option func(*Adapter)

func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAdapter wraps sdk. A nil sdk makes every payment simulated.
func NewAdapter(sdk SDK, opts ...Option) *Adapter {
	a := &Adapter{sdk: sdk, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Simulating reports whether the next payment would use the fallback.
func (a *Adapter) Simulating() bool {
	_, ok := a.activeSDK().(Simulated)
	return ok
}

func (a *Adapter) activeSDK() SDK {
	if a.sdk == nil {
		return Simulated{}
	}
	if av, ok := a.sdk.(Availability); ok && !av.Available() {
		return Simulated{}
	}
	return a.sdk
}

type outcome struct {
	result *Result
	err    error
}

// attempt is one handshake. Callbacks that arrive after it settled are dropped.
type attempt struct {
	settled bool
	done    chan outcome
}

func (a *Adapter) advance(att *attempt, s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if att.settled {
		return
	}
	// Completion can be reported without a prior approval but never the reverse.
	if s > a.state {
		a.state = s
	}
}

func (a *Adapter) settle(att *attempt, s State, o outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if att.settled {
		return
	}
	att.settled = true
	a.state = s
	att.done <- o
}

// Pay asks the SDK for a payment and blocks until it completes, is cancelled,
// fails, times out or ctx is done.
func (a *Adapter) Pay(ctx context.Context, intent Intent) (*Result, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.inFlight {
		a.mu.Unlock()
		metrics.PaymentsSettled.WithLabelValues("rejected").Inc()
		return nil, ErrPaymentAlreadyInProgress
	}
	a.inFlight = true
	a.state = StateRequested
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inFlight = false
		a.mu.Unlock()
	}()

	start := time.Now()
	sdk := a.activeSDK()
	if _, ok := sdk.(Simulated); ok {
		slog.Warn("pi sdk unavailable, simulating payment", "memo", intent.Memo, "amount", intent.Amount)
	}

	att := &attempt{done: make(chan outcome, 1)}
	cb := Callbacks{
		OnReadyForServerApproval: func(paymentID string) {
			slog.Info("payment ready for server approval", "payment_id", paymentID)
			a.advance(att, StateAwaitingServerApproval)
		},
		OnReadyForServerCompletion: func(paymentID, txid string) {
			if paymentID == "" || txid == "" {
				a.settle(att, StateFailed, outcome{err: &FailedError{Err: ErrIncompleteCompletion,
					Payment: &PaymentDTO{Identifier: paymentID, TxID: txid}}})
				return
			}
			a.advance(att, StateAwaitingServerCompletion)
			a.settle(att, StateCompleted, outcome{result: &Result{PaymentID: paymentID, TxID: txid}})
		},
		OnCancel: func(paymentID string) {
			a.settle(att, StateCancelled, outcome{err: &CancelledError{PaymentID: paymentID}})
		},
		OnError: func(err error, p *PaymentDTO) {
			if err == nil {
				err = errSDKUnspecified
			}
			a.settle(att, StateFailed, outcome{err: &FailedError{Err: err, Payment: p}})
		},
	}

	// The SDK sees the attempt's own deadline, so it can drop its state once
	// Pay has given up.
	attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := sdk.CreatePayment(attemptCtx, intent, cb); err != nil {
		a.settle(att, StateFailed, outcome{err: &FailedError{Err: err}})
	}

	select {
	case o := <-att.done:
		return a.finish(o, start)
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			a.settle(att, StateFailed, outcome{err: &FailedError{Err: err}})
		} else {
			a.settle(att, StateFailed, outcome{err: ErrPaymentTimeout})
		}
	}
	// A callback may have won the race against the deadline; take whichever settled.
	return a.finish(<-att.done, start)
}

func (a *Adapter) finish(o outcome, start time.Time) (*Result, error) {
	metrics.PaymentDuration.Observe(time.Since(start).Seconds())
	label := "completed"
	switch a.State() {
	case StateCancelled:
		label = "cancelled"
	case StateFailed:
		label = "failed"
		if o.err == ErrPaymentTimeout {
			label = "timeout"
		}
	}
	metrics.PaymentsSettled.WithLabelValues(label).Inc()

	if o.err != nil {
		slog.Info("payment not completed", "outcome", label, "error", o.err)
		return nil, o.err
	}
	slog.Info("payment completed", "payment_id", o.result.PaymentID, "txid", o.result.TxID)
	return o.result, nil
}
