package driver

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrUnavailable wraps store connectivity loss. A pass seeing it is
// skipped and recorded as failed; it never panics the service.
var ErrUnavailable = errors.New("graph store unavailable")

type GraphDriver interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error)
	BuildIndices(ctx context.Context) error
	Connected(ctx context.Context) bool
	Close(ctx context.Context) error
}
