package dedupe

import "fmt"

// DisambiguationError means the model gave no usable verdict for a
// pair. Policy treats it as "no opinion" and leaves the pair flagged;
// it never aborts a pass.
type DisambiguationError struct {
	PairA string
	PairB string
	Err   error
}

func (e *DisambiguationError) Error() string {
	return fmt.Sprintf("disambiguation failed for pair (%s, %s): %v", e.PairA, e.PairB, e.Err)
}

func (e *DisambiguationError) Unwrap() error { return e.Err }
