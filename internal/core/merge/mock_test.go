package merge

import (
	"context"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/driver"
)

// MockDriver answers the executor's queries from in-memory maps so
// merge behavior is testable without a graph store.
type MockDriver struct {
	Entities map[string]model.EntityRecord
	Merged   map[string]string // uuid -> merged_into
	Rewired  map[string]int    // query -> count to report
	Queries  []string
	Err      error
	FailOn   string // only queries containing this substring fail
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		Entities: make(map[string]model.EntityRecord),
		Merged:   make(map[string]string),
		Rewired:  make(map[string]int),
	}
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Queries = append(m.Queries, query)
	if m.Err != nil && (m.FailOn == "" || strings.Contains(query, m.FailOn)) {
		return neo4j.EagerResult{}, m.Err
	}

	switch query {
	case driver.ResolvePointerQuery:
		uuid := params["uuid"].(string)
		var live interface{}
		if rec, ok := m.Entities[uuid]; ok {
			live = neo4j.Node{Props: driver.EntityProps(rec)}
		}
		var mergedInto interface{}
		if target, ok := m.Merged[uuid]; ok {
			mergedInto = target
		}
		return result([]string{"e", "merged_into"}, live, mergedInto), nil

	case driver.GetEntityQuery:
		uuid := params["uuid"].(string)
		rec, ok := m.Entities[uuid]
		if !ok {
			return neo4j.EagerResult{}, nil
		}
		return result([]string{"n"}, neo4j.Node{Props: driver.EntityProps(rec)}), nil

	case driver.SetEntityPropsQuery:
		uuid := params["uuid"].(string)
		props := params["props"].(map[string]interface{})
		m.Entities[uuid] = driver.EntityFromProps(props)
		return result([]string{"uuid"}, uuid), nil

	case driver.DropPairEdgesQuery:
		return result([]string{"dropped"}, int64(0)), nil

	case driver.RewireOutgoingRelatesQuery, driver.RewireIncomingRelatesQuery, driver.RewireMentionsQuery:
		return result([]string{"rewired"}, int64(m.Rewired[query])), nil

	case driver.RetireEntityQuery:
		uuid := params["uuid"].(string)
		delete(m.Entities, uuid)
		m.Merged[uuid] = params["merged_into"].(string)
		return result([]string{"uuid"}, uuid), nil
	}

	return neo4j.EagerResult{}, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error { return nil }
func (m *MockDriver) Connected(ctx context.Context) bool     { return true }
func (m *MockDriver) Close(ctx context.Context) error        { return nil }

func result(keys []string, values ...interface{}) neo4j.EagerResult {
	return neo4j.EagerResult{
		Keys:    keys,
		Records: []*neo4j.Record{{Keys: keys, Values: values}},
	}
}
