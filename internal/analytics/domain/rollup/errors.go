package rollup

import "errors"

var (
	// ErrInvalidBucket is returned for a bucket key with missing fields.
	ErrInvalidBucket = errors.New("rollup: invalid bucket key")

	// ErrLockHeld is returned when another rollup run holds the run lock.
	ErrLockHeld = errors.New("rollup: run already in flight")
)
