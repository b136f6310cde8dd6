package merge

import (
	"fmt"
	"strings"
)

// ConflictError aborts a single merge: the superseded-by chain loops,
// or a terminal entity was retired underneath us. The pass records it
// and moves on.
type ConflictError struct {
	UUID   string
	Reason string
	Chain  []string
}

func (e *ConflictError) Error() string {
	if len(e.Chain) > 0 {
		return fmt.Sprintf("merge conflict on %s: %s (chain %s)", e.UUID, e.Reason, strings.Join(e.Chain, " -> "))
	}
	return fmt.Sprintf("merge conflict on %s: %s", e.UUID, e.Reason)
}
