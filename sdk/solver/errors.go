package solver

import "errors"

// Sentinel errors the coordinator and its callers can match against with
// errors.Is, rather than string-matching error text.
var (
	// ErrConfiguration wraps a rejected TrainingConfig/AbstractionConfig.
	ErrConfiguration = errors.New("solver: invalid configuration")
	// ErrAbstractionMismatch is returned when a checkpoint or blueprint's
	// recorded abstraction hash does not match the abstraction it claims to
	// describe, or the abstraction a resume was requested against.
	ErrAbstractionMismatch = errors.New("solver: abstraction mismatch")
	// ErrCheckpointIncomplete is returned when a component of a checkpoint
	// triple is missing or cannot be read back completely (interrupted
	// mid-encode, truncated).
	ErrCheckpointIncomplete = errors.New("solver: checkpoint incomplete")
	// ErrWorkerFailure wraps a training worker goroutine's panic or terminal
	// error, recovered by the coordinator so one bad batch does not take
	// down the whole run.
	ErrWorkerFailure = errors.New("solver: worker failure")
	// ErrInvariantViolation marks a defensive check that should never fire in
	// correct code (e.g. a negative regret table size) but is worth failing
	// loudly on rather than silently continuing.
	ErrInvariantViolation = errors.New("solver: invariant violation")
)
