package model

import "errors"

var (
	// ErrMissingDisplayName marks a malformed entity. Such entities are
	// skipped and counted, never scored as zero-similarity.
	ErrMissingDisplayName = errors.New("entity has no display name")

	// ErrKindMismatch guards against cross-kind comparisons; people and
	// organizations never merge.
	ErrKindMismatch = errors.New("entities have different kinds")

	ErrUnknownKind    = errors.New("unknown entity kind")
	ErrUnknownRunKind = errors.New("unknown run kind")
)
