package sync

import "time"

// Window bounds the pass relative to its start instant.
type Window struct {
	DaysPast   int
	DaysFuture int
}

// PassResult is the outcome tally of one reconciliation pass.
type PassResult struct {
	Created           int
	Updated           int
	Deleted           int
	Skipped           int
	MetadataSaves     int
	SuppressedDeletes int

	// Errors holds item-level failures that did not stop the pass.
	Errors []error

	Duration time.Duration
}
