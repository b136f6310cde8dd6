package confidence

import (
	"context"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/driver"
)

type MockDriver struct {
	Entities map[string]model.EntityRecord
	Err      error
}

func NewMockDriver() *MockDriver {
	return &MockDriver{Entities: make(map[string]model.EntityRecord)}
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	if m.Err != nil {
		return neo4j.EagerResult{}, m.Err
	}

	switch query {
	case driver.GetConfidenceQuery:
		rec, ok := m.Entities[params["uuid"].(string)]
		if !ok {
			return neo4j.EagerResult{}, nil
		}
		keys := []string{"confidence", "corroborations"}
		return neo4j.EagerResult{
			Keys:    keys,
			Records: []*neo4j.Record{{Keys: keys, Values: []interface{}{rec.Confidence, int64(rec.Corroborations)}}},
		}, nil

	case driver.SetConfidenceQuery:
		uuid := params["uuid"].(string)
		rec := m.Entities[uuid]
		rec.Confidence = params["confidence"].(float64)
		rec.Corroborations = params["corroborations"].(int)
		m.Entities[uuid] = rec
		return neo4j.EagerResult{}, nil

	case driver.LowConfidenceQuery:
		group := params["group_id"].(string)
		threshold := params["threshold"].(float64)
		limit := params["limit"].(int)

		var matched []model.EntityRecord
		for _, rec := range m.Entities {
			if rec.Confidence < threshold && (group == "" || rec.GroupID == group) {
				matched = append(matched, rec)
			}
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].Confidence < matched[j].Confidence })
		if len(matched) > limit {
			matched = matched[:limit]
		}

		out := neo4j.EagerResult{Keys: []string{"n"}}
		for _, rec := range matched {
			out.Records = append(out.Records, &neo4j.Record{
				Keys:   []string{"n"},
				Values: []interface{}{neo4j.Node{Props: driver.EntityProps(rec)}},
			})
		}
		return out, nil
	}

	return neo4j.EagerResult{}, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error { return nil }
func (m *MockDriver) Connected(ctx context.Context) bool     { return true }
func (m *MockDriver) Close(ctx context.Context) error        { return nil }
