package simulation

import "errors"

// Fatal run errors. None of them are retried and no partial result is
// returned alongside them.
var (
	// ErrSchedulingTimeout is returned when the submitted batches do not all
	// finish within the configured timeout.
	ErrSchedulingTimeout = errors.New("scheduling timeout")

	// ErrAggregationMismatch is returned when the merged tally does not add
	// up to the number of trials that were executed.
	ErrAggregationMismatch = errors.New("aggregation mismatch")

	// ErrInterruptedWait is returned when the caller's context ends while
	// waiting for the batches to finish.
	ErrInterruptedWait = errors.New("interrupted while awaiting completion")

	// ErrInvalidWinner is returned when a trial function reports a winner
	// outside [0, participants).
	ErrInvalidWinner = errors.New("trial returned invalid winner")

	// ErrAlreadyRun is returned by Run on a tournament that has left the
	// created state.
	ErrAlreadyRun = errors.New("tournament already run")
)
