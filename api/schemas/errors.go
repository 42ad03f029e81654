package schemas

import "errors"

// Sentinel errors shared across package boundaries. The HTTP layer maps these
// onto status codes; workers map the element-scoped ones onto TestResults.
var (
	// ErrRunInProgress rejects a run started while another is in flight.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrNoReport signals that no run has ever published a report.
	ErrNoReport = errors.New("no report available")

	// ErrElementNotFound signals that the locator exhausted every strategy.
	ErrElementNotFound = errors.New("element could not be located")

	// ErrNotClickable signals an element that is present but hidden, disabled
	// or has no rendered size.
	ErrNotClickable = errors.New("element is not clickable")
)

// ProvisionError wraps a failure to create a browser session.
type ProvisionError struct {
	Err error
}

func (e *ProvisionError) Error() string {
	return "browser provisioning failed: " + e.Err.Error()
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// InteractionError wraps a failure raised while dispatching the click or
// observing its effects. It is recorded per element and never aborts the run.
type InteractionError struct {
	Op  string
	Err error
}

func (e *InteractionError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *InteractionError) Unwrap() error { return e.Err }

// RunAbortedError is surfaced to the caller when provisioning or another
// non-recoverable environment failure prevents the run from completing. No
// report is published for the attempt; the prior report stays current.
type RunAbortedError struct {
	Err error
}

func (e *RunAbortedError) Error() string {
	return "run aborted: " + e.Err.Error()
}

func (e *RunAbortedError) Unwrap() error { return e.Err }
