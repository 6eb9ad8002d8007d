package align

import "errors"

var (
	// ErrInvalidInput is returned when there are no positions to align.
	ErrInvalidInput = errors.New("invalid input: position list is empty")

	// ErrRangeTooLarge is returned when max-min exceeds MaxSpan or max is math.MaxInt.
	ErrRangeTooLarge = errors.New("position range too large")

	// ErrUnknownCostModel is returned by ParseCostModel for unrecognised names.
	ErrUnknownCostModel = errors.New("unknown cost model")

	// ErrUnknownStrategy is returned by ParseStrategy for unrecognised names.
	ErrUnknownStrategy = errors.New("unknown strategy")
)
