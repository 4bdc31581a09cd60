package payment

import "context"

// SimulatedID is used for both identifiers of a simulated payment.
const SimulatedID = "simulated"

// Simulated stands in for the Pi SDK outside the Pi Browser. It approves and
// completes every payment before CreatePayment returns.
type Simulated struct{}

func (Simulated) CreatePayment(_ context.Context, _ Intent, cb Callbacks) error {
	if cb.OnReadyForServerApproval != nil {
		cb.OnReadyForServerApproval(SimulatedID)
	}
	if cb.OnReadyForServerCompletion != nil {
		cb.OnReadyForServerCompletion(SimulatedID, SimulatedID)
	}
	return nil
}

func (Simulated) Available() bool { return true }
