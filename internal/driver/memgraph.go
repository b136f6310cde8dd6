package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

type MemgraphDriver struct {
	driver neo4j.DriverWithContext
	log    *zap.Logger
}

func NewMemgraphDriver(uri, username, password string, log *zap.Logger) (*MemgraphDriver, error) {
	d, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := d.VerifyConnectivity(context.Background()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Info("connected to graph store", zap.String("uri", uri))
	return &MemgraphDriver{driver: d, log: log.Named("driver")}, nil
}

func (d *MemgraphDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

func (d *MemgraphDriver) Connected(ctx context.Context) bool {
	return d.driver.VerifyConnectivity(ctx) == nil
}

func (d *MemgraphDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, d.driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

func (d *MemgraphDriver) BuildIndices(ctx context.Context) error {
	// Memgraph takes plain Cypher index creation; failures usually mean
	// the index already exists, so they only warn.
	queries := []string{
		"CREATE INDEX ON :Entity(uuid);",
		"CREATE INDEX ON :Entity(group_id);",
		"CREATE INDEX ON :Entity(kind);",
		"CREATE INDEX ON :Entity(name_key);",
		"CREATE INDEX ON :Entity(initials_key);",
		"CREATE INDEX ON :Entity(domain_key);",
		"CREATE INDEX ON :Entity(confidence);",
		"CREATE INDEX ON :Merged(uuid);",
		"CREATE INDEX ON :ReviewFlag(uuid);",
		"CREATE INDEX ON :ReviewFlag(pair_key);",
		"CREATE INDEX ON :ReviewFlag(group_id);",
	}

	for _, q := range queries {
		if _, err := d.ExecuteQuery(ctx, q, nil); err != nil {
			d.log.Warn("failed to create index", zap.String("query", q), zap.Error(err))
		}
	}
	return nil
}
