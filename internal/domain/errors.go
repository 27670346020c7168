package domain

import "errors"

var (
	// ErrProbeFailure is returned when the latency/loss probe could not complete.
	ErrProbeFailure = errors.New("probe failure")

	// ErrCounterRead is returned when interface byte counters are unavailable.
	ErrCounterRead = errors.New("counter read failure")

	// ErrWriteFailure wraps every Store.Append failure.
	ErrWriteFailure = errors.New("store write failure")

	// ErrOutOfOrder is returned when a sample does not advance the timestamp series.
	ErrOutOfOrder = errors.New("sample timestamp not after latest")

	// ErrStoreClosed is returned by a Store after Close.
	ErrStoreClosed = errors.New("store closed")
)
