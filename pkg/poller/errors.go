package poller

import (
	"errors"
	"fmt"
)

var (
	// ErrThresholdExceeded matches any *ThresholdError via errors.Is.
	ErrThresholdExceeded = errors.New("poller: threshold exceeded")

	// ErrStopped is reported to the failure callback after Stop.
	ErrStopped = errors.New("Manually stopped")

	// ErrNoTask is reported when Start is called before Poll.
	ErrNoTask = errors.New("poller: no task registered")

	// ErrNotStarted is returned by Wait on a poller that never ran.
	ErrNotStarted = errors.New("poller: not started")
)

// ThresholdError is reported when the task did not finish within the
// configured number of attempts. Its message is part of the public contract.
type ThresholdError struct {
	Threshold int
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("Exceed polling threshold %d", e.Threshold)
}

func (e *ThresholdError) Is(target error) bool {
	return target == ErrThresholdExceeded
}
