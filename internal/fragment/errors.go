package fragment

import "errors"

var (
	// ErrMerge indicates two fragments could not be merged
	ErrMerge = errors.New("fragment merge failed")
	// ErrRuleNotFound indicates no rule matched the predicate of a positional edit
	ErrRuleNotFound = errors.New("no matching rule")
)
