package confirmation

import "time"

// State is one of Idle, Initiating, Pending, Completed or Failed.
type State interface {
	Name() string
	isState()
}

// Idle accepts a submission. Err holds the reason the last attempt returned here.
type Idle struct {
	Err error
}

type Initiating struct{}

// Pending waits for a terminal status until Deadline.
type Pending struct {
	Token    string
	Deadline time.Time
}

type Completed struct {
	Token       string
	Receipt     string
	Description string
}

// Failed is terminal for the session. Timeout is set when the deadline passed
// before the ledger reported an outcome.
type Failed struct {
	Token   string
	Reason  string
	Timeout bool
}

func (Idle) Name() string       { return "idle" }
func (Initiating) Name() string { return "initiating" }
func (Pending) Name() string    { return "pending" }
func (Completed) Name() string  { return "completed" }
func (Failed) Name() string     { return "failed" }

func (Idle) isState()       {}
func (Initiating) isState() {}
func (Pending) isState()    {}
func (Completed) isState()  {}
func (Failed) isState()     {}

const (
	ReasonTimeout  = "We did not receive a payment confirmation in time. If you entered your PIN, check your M-PESA messages before trying again."
	ReasonNotFound = "This payment could not be found. Please try again."
	ReasonFailed   = "Payment was not completed. Please try again."
)
